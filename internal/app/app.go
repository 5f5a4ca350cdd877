package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"frubric_backend/internal/config"
	"frubric_backend/internal/controller"
	"frubric_backend/internal/repository"
	"frubric_backend/internal/service"
	"frubric_backend/internal/util"
	"frubric_backend/pkg/configwatcher"
	"frubric_backend/pkg/database"
	"frubric_backend/pkg/logger"
	"frubric_backend/pkg/monitoring"
	"frubric_backend/pkg/security"
	"frubric_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	ConfigDir       string
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	limiter         *security.Limiter
	tracer          *sdktrace.TracerProvider
	cancelTasks     context.CancelFunc
	configCallbacks []func(*config.Config)
}

type repositories struct {
	area          *repository.AreaRepository
	definition    *repository.DefinitionRepository
	criterion     *repository.CriterionRepository
	instance      *repository.InstanceRepository
	outcome       *repository.OutcomeRepository
	gradeCategory *repository.GradeCategoryRepository
}

type services struct {
	settings   *service.GradingSettings
	definition *service.DefinitionService
	editor     *service.EditorService
	grading    *service.GradingService
	backup     *service.BackupService
	outcome    *service.OutcomeService
	gradebook  *service.GradebookService
}

type controllers struct {
	definition *controller.DefinitionController
	editor     *controller.EditorController
	grading    *controller.GradingController
	backup     *controller.BackupController
	outcome    *controller.OutcomeController
	health     *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		area:          repository.NewAreaRepository(db),
		definition:    repository.NewDefinitionRepository(db),
		criterion:     repository.NewCriterionRepository(db),
		instance:      repository.NewInstanceRepository(db),
		outcome:       repository.NewOutcomeRepository(db),
		gradeCategory: repository.NewGradeCategoryRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, db *gorm.DB, rdb *redis.Client) *services {
	settings := service.NewGradingSettings(cfg.Grading)
	definitions := service.NewDefinitionService(db, rdb,
		repos.area, repos.definition, repos.criterion,
		service.NewDefinitionReconciler(), settings)

	return &services{
		settings:   settings,
		definition: definitions,
		editor:     service.NewEditorService(rdb, definitions, &cfg.Editor),
		grading:    service.NewGradingService(db, repos.instance, definitions, settings),
		backup:     service.NewBackupService(db, definitions, repos.instance, service.NewArchiveStore(&cfg.Storage)),
		outcome:    service.NewOutcomeService(repos.outcome, repos.instance, definitions),
		gradebook:  service.NewGradebookService(repos.area, repos.gradeCategory),
	}
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		definition: controller.NewDefinitionController(s.definition),
		editor:     controller.NewEditorController(s.editor),
		grading:    controller.NewGradingController(s.grading),
		backup:     controller.NewBackupController(s.backup),
		outcome:    controller.NewOutcomeController(s.outcome),
		health:     controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	a.limiter = security.NewLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute)
	router.Use(a.limiter.Middleware())

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// runEvery 按分钟间隔执行维护任务，minutes<=0 时不启动
func runEvery(ctx context.Context, name string, minutes int, task func(context.Context) (int, error)) {
	if minutes <= 0 {
		logger.Log.Info("Background task disabled", zap.String("task", name))
		return
	}
	go func() {
		ticker := time.NewTicker(time.Duration(minutes) * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := task(ctx)
				if err != nil {
					logger.Log.Error("background task error", zap.String("task", name), zap.Error(err))
					continue
				}
				logger.Log.Debug("background task done", zap.String("task", name), zap.Int("affected", n))
			}
		}
	}()
}

func (a *App) startBackgroundTasks(ctx context.Context, s *services) {
	runEvery(ctx, "outcome_sync", a.Config.Tasks.OutcomeSyncMinutes, s.outcome.SyncOutcomes)
	runEvery(ctx, "gradebook_sync", a.Config.Tasks.GradebookSyncMinutes, s.gradebook.BootstrapCategories)

	if a.ConfigDir == "" {
		return
	}
	go func() {
		err := configwatcher.Watch(ctx, a.ConfigDir, func(newCfg *config.Config) {
			for _, cb := range a.configCallbacks {
				cb(newCfg)
			}
		})
		if err != nil {
			logger.Log.Warn("Config watcher stopped", zap.Error(err))
		}
	}()
}

// registerReloadables 仅评分默认值与限流参数支持热更新，其余配置需要重启
func (a *App) registerReloadables(s *services) {
	a.RegisterConfigCallback(func(newCfg *config.Config) {
		s.settings.Update(newCfg.Grading)
		logger.Log.Info("Grading settings reloaded",
			zap.String("defaultPolicy", newCfg.Grading.DefaultPolicy),
			zap.Int("defaultDecimals", newCfg.Grading.DefaultDecimals))
	})
	a.RegisterConfigCallback(func(newCfg *config.Config) {
		a.limiter.Update(newCfg.RateLimit.MaxRequests, time.Duration(newCfg.RateLimit.WindowMinutes)*time.Minute)
	})
}

func NewApp(cfg *config.Config, configDir string) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode == "debug")
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// release 模式默认不自动迁移，需显式 -migrate
	if cfg.Server.Mode != "release" || cfg.ForceMigrate {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}
	if cfg.MigrateOnly {
		return &App{Config: cfg, DB: db}
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}

	if err := util.RegisterValidators(); err != nil {
		logger.Log.Fatal("Failed to register validators", zap.Error(err))
	}

	app := &App{
		Config:    cfg,
		ConfigDir: configDir,
		DB:        db,
		Redis:     rdb,
	}

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, db, rdb)
	app.services = services
	controllers := app.initControllers(services, db, rdb)

	// 监控初始化
	monitoring.Init()

	gin.SetMode(cfg.Server.Mode)
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("frubric", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	app.registerRoutes(router, controllers, cfg)
	app.registerReloadables(services)

	ctx, cancel := context.WithCancel(context.Background())
	app.cancelTasks = cancel
	app.startBackgroundTasks(ctx, services)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	if a.cancelTasks != nil {
		a.cancelTasks()
	}
	if a.limiter != nil {
		a.limiter.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}

	logger.Log.Info("Server exiting")
}
