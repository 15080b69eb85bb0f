package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"math_practice_backend/internal/config"
	"math_practice_backend/internal/model"
	"math_practice_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{Secret: "unit-test-secret", ExpireTime: time.Hour},
	}
}

func newAuthRouter(cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/private", AuthMiddleware(cfg), func(c *gin.Context) {
		claims := util.GetUserFromContext(c)
		c.JSON(http.StatusOK, gin.H{"user_id": claims.UserID})
	})
	return r
}

func mintToken(t *testing.T, cfg *config.Config, role model.UserRole) string {
	t.Helper()
	user := &model.User{Email: "t@example.com", Role: role}
	user.ID = 9
	token, err := util.GenerateJWT(user, cfg.JWT.Secret, cfg.JWT.ExpireTime)
	require.NoError(t, err)
	return token
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	r := newAuthRouter(testConfig())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_BearerHeader(t *testing.T) {
	cfg := testConfig()
	r := newAuthRouter(cfg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, cfg, model.Teacher))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":9`)
}

func TestAuthMiddleware_QueryTokenFallback(t *testing.T) {
	// WebSocket 握手带不了请求头，走 token 查询参数
	cfg := testConfig()
	r := newAuthRouter(cfg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/private?token="+mintToken(t, cfg, model.Teacher), nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	r := newAuthRouter(testConfig())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer bad.token.here")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func newRoleRouter(claims *util.Claims, required ...model.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	inject := func(c *gin.Context) {
		if claims != nil {
			c.Set("user", claims)
		}
		c.Next()
	}
	r.GET("/guarded", inject, RoleMiddleware(required...), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestRoleMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		claims   *util.Claims
		required []model.UserRole
		want     int
	}{
		{"角色匹配", &util.Claims{UserID: 1, Role: model.Teacher}, []model.UserRole{model.Teacher}, http.StatusOK},
		{"角色不匹配", &util.Claims{UserID: 1, Role: model.Teacher}, []model.UserRole{model.Admin}, http.StatusForbidden},
		{"管理员放行", &util.Claims{UserID: 1, Role: model.Admin}, []model.UserRole{model.Teacher}, http.StatusOK},
		{"未登录", nil, []model.UserRole{model.Teacher}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRoleRouter(tt.claims, tt.required...)
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
