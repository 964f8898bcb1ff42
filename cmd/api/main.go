package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/SergeiKhy/urlefy/internal/config"
	"github.com/SergeiKhy/urlefy/internal/handler"
	"github.com/SergeiKhy/urlefy/internal/metrics"
	"github.com/SergeiKhy/urlefy/internal/repository"
	"github.com/SergeiKhy/urlefy/internal/service"
	"github.com/SergeiKhy/urlefy/internal/shortcode"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const redisPingTimeout = 5 * time.Second

func main() {
	// Загрузка конфига
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	logger, err := newLogger(cfg.App.Env)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Миграции схемы
	if err := repository.Migrate(cfg.DB.DSN()); err != nil {
		logger.Fatal("Failed to apply migrations", zap.Error(err))
	}

	// Подключение к БД (postgres)
	db, err := repository.NewPostgresDB(cfg.DB)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	// Подключение к Redis
	redis := connectRedis(cfg.Redis, logger)
	defer redis.Close()

	m := metrics.New()

	// Инициализация уровней хранения
	urlRepo := repository.NewURLRepository(db)
	cacheRepo := repository.NewCacheRepository(redis)
	localCache := repository.NewLocalCache(cfg.Cache.LocalSize, cfg.Cache.LocalTTL)

	// Очередь фоновых задач (Worker Pool)
	tasks := service.NewTaskQueue(service.TaskQueueConfig{
		Workers:     cfg.Tasks.Workers,
		QueueSize:   cfg.Tasks.QueueSize,
		Timeout:     cfg.Tasks.Timeout,
		MaxAttempts: cfg.Tasks.MaxAttempts,
	}, logger, m)
	tasks.Start()

	// Инициализация сервиса
	urlService := service.NewURLService(
		urlRepo,
		cacheRepo,
		localCache,
		shortcode.NewGenerator(),
		tasks,
		m,
		logger,
		service.Options{
			LinkTTL:      cfg.Link.TTL,
			CacheTTL:     cfg.Cache.TTL,
			CacheTimeout: cfg.Cache.Timeout,
			StoreTimeout: cfg.DB.Timeout,
			Durability:   cfg.Link.Durability,
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Прогрев кэша не задерживает старт сервера
	if cfg.Warmup.Enabled {
		warmer := service.NewCacheWarmer(urlRepo, cacheRepo, localCache, m, logger, service.WarmerConfig{
			Limit:        cfg.Warmup.Limit,
			Rate:         cfg.Warmup.Rate,
			CacheTTL:     cfg.Cache.TTL,
			CacheTimeout: cfg.Cache.Timeout,
		})
		warmer.Start(ctx)
	}

	if cfg.App.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Настройка роутера
	router := handler.NewRouter(urlService, tasks, m, logger, handler.RouterConfig{
		BaseURL:        cfg.App.BaseURL,
		RedirectStatus: cfg.Link.RedirectStatus,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  cfg.App.ReadTimeout,
		WriteTimeout: cfg.App.WriteTimeout,
		IdleTimeout:  cfg.App.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Server starting", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Graceful Shutdown: сначала HTTP, затем дожидаемся фоновых задач
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if qerr := tasks.Stop(shutdownCtx); qerr != nil {
			logger.Warn("Background tasks not drained", zap.Error(qerr))
		}
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		return
	}

	logger.Info("Server exited")
}

// connectRedis: недоступный при старте Redis только предупреждение, клиент переподключится сам
func connectRedis(cfg config.RedisConfig, logger *zap.Logger) *repository.RedisDB {
	redis := repository.NewRedisClient(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()

	if err := redis.Ping(ctx); err != nil {
		logger.Warn("Redis unavailable, serving from the database", zap.Error(err))
		return redis
	}

	logger.Info("Connected to Redis")
	return redis
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
