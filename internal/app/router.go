package app

import (
	"math_practice_backend/docs"
	"math_practice_backend/internal/config"
	"math_practice_backend/internal/middleware"
	"math_practice_backend/internal/model"

	"math_practice_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		a.registerTeacherRoutes(authGroup, c)
	}
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}
}

func (a *App) registerTeacherRoutes(rg *gin.RouterGroup, c *controllers) {
	rg.GET("/profile", c.auth.GetProfile)

	// 知识点目录
	rg.GET("/knowledge-points", c.knowledgePoint.List)
	rg.POST("/knowledge-points/match", c.knowledgePoint.Match)

	// 出题与批改
	teacher := rg.Group("/")
	teacher.Use(middleware.RoleMiddleware(model.Teacher, model.Admin))
	{
		teacher.POST("/practice/generate", c.practice.Generate)
		teacher.POST("/practice/:id/regenerate", c.practice.Regenerate)

		teacher.POST("/grading/:id/images", c.grading.ProcessImages)
		teacher.POST("/grading/:id/analysis", c.grading.AnalyzeErrors)
		teacher.GET("/grading/progress/ws", c.grading.HandleWS)

		teacher.GET("/sessions", c.session.List)
		teacher.GET("/sessions/:id", c.session.Get)
		teacher.DELETE("/sessions/:id", c.session.Delete)
		teacher.GET("/sessions/:id/markdown", c.session.Markdown)
		teacher.GET("/sessions/:id/report", c.session.Report)
	}
}
