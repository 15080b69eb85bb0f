package app

import (
	"context"
	"log"
	"math/rand"
	"math_practice_backend/internal/config"
	"math_practice_backend/internal/controller"
	"math_practice_backend/internal/marker"
	"math_practice_backend/internal/practice"
	"math_practice_backend/internal/question"
	"math_practice_backend/internal/repository"
	"math_practice_backend/internal/service"
	"math_practice_backend/pkg/database"
	"math_practice_backend/pkg/logger"
	"math_practice_backend/pkg/monitoring"
	"math_practice_backend/pkg/security"
	"math_practice_backend/pkg/tracing"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	tracerProvider  *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user    *repository.UserRepository
	session *repository.SessionRepository
}

type services struct {
	auth        *service.AuthService
	storage     *service.StorageService
	ai          *service.AIService
	practice    *service.PracticeService
	grading     *service.GradingService
	session     *service.SessionService
	progressHub *service.ProgressHub
}

type controllers struct {
	auth           *controller.AuthController
	knowledgePoint *controller.KnowledgePointController
	practice       *controller.PracticeController
	grading        *controller.GradingController
	session        *controller.SessionController
	health         *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

// ApplyConfig 配置热更新入口，configwatcher 检测到文件变更后调用
func (a *App) ApplyConfig(newCfg *config.Config) {
	for _, callback := range a.configCallbacks {
		callback(newCfg)
	}
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:    repository.NewUserRepository(db),
		session: repository.NewSessionRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	bank, err := question.NewBank()
	if err != nil {
		logger.Log.Fatal("Failed to load question bank", zap.Error(err))
	}
	assembler := practice.NewAssembler(bank)

	s.storage = service.NewStorageService(cfg)
	s.auth = service.NewAuthService(repos.user, cfg)
	s.ai = service.NewAIService(cfg.AI, rdb)

	// 组卷与标注各持独立随机源，避免跨服务锁竞争
	s.practice = service.NewPracticeService(assembler, s.ai, repos.session, cfg,
		rand.New(rand.NewSource(time.Now().UnixNano())))

	s.progressHub = service.NewProgressHub(rdb)
	go s.progressHub.Run()

	s.grading = service.NewGradingService(s.ai, s.storage, repos.session, marker.New(), s.progressHub, cfg,
		rand.New(rand.NewSource(time.Now().UnixNano())))

	s.session = service.NewSessionService(repos.session)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:           controller.NewAuthController(s.auth),
		knowledgePoint: controller.NewKnowledgePointController(),
		practice:       controller.NewPracticeController(s.practice),
		grading:        controller.NewGradingController(s.grading, s.progressHub),
		session:        controller.NewSessionController(s.session),
		health:         controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, rdb)
	app.services = services
	controllers := app.initControllers(services, db, rdb)

	// AI 网关地址与密钥支持热更新
	app.RegisterConfigCallback(func(c *config.Config) {
		services.ai.Reload(c.AI)
	})

	// 监控初始化
	monitoring.Init()

	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("math-practice", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		// 进程退出时在 Run 里统一关闭
		app.tracerProvider = tp
	}

	app.registerRoutes(router, controllers, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
		router.Static("/api/uploads", cfg.Storage.LocalPath)
	}

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// 断开进度推送的 WebSocket 连接
	if a.services != nil && a.services.progressHub != nil {
		a.services.progressHub.Stop()
	}

	// 关闭服务
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}

	log.Println("Server exiting")
}
