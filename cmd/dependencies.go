package cmd

import (
	"catalog-validation/config"
	"catalog-validation/internal/engine"
	"catalog-validation/internal/queue"
	"catalog-validation/internal/repository"
	"catalog-validation/internal/service"
	"catalog-validation/pkg/cache"
	"catalog-validation/pkg/database"
	"catalog-validation/pkg/logger"
	"context"
	"fmt"

	goValidator "github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// sourceRequestsPerSecond bounds engine downloads per host.
const sourceRequestsPerSecond = 10

type AppDependency struct {
	db        *database.DB
	cfg       *config.Config
	log       *logger.Logger
	validator *goValidator.Validate
	echo      *echo.Echo
	cache     cache.Cache
	redis     *redis.Client
	queue     queue.Queue
	engine    engine.Engine
}

func NewAppDependency(ctx context.Context) (*AppDependency, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		return nil, err
	}
	if cfg.Log.AlertWebhookURL != "" {
		log = log.WithAlertWebhook(cfg.Log.AlertWebhookURL)
	}

	db, err := database.NewDB(cfg.DB, log)
	if err != nil {
		log.Error("Failed to connect to database", zap.Error(err))
		return nil, err
	}

	dep := &AppDependency{
		cfg:       cfg,
		log:       log,
		validator: goValidator.New(),
		db:        db,
		echo:      echo.New(),
		cache:     cache.NewCache(cfg.Cache.DefaultExpiration, cfg.Cache.CleanupInterval),
		engine:    engine.NewBuiltin(cfg.Validation.SourceTimeout, rate.Limit(sourceRequestsPerSecond), sourceRequestsPerSecond, log),
	}

	switch cfg.Queue.Driver {
	case "memory":
		dep.queue = queue.NewMemoryQueue()
	default:
		dep.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := dep.redis.Ping(ctx).Err(); err != nil {
			log.Error("Failed to connect to redis", zap.Error(err))
			_ = dep.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		dep.queue = queue.NewRedisQueue(dep.redis, log)
	}

	return dep, nil
}

// NewServices builds the repository and service layers on top of the dependencies.
func (d *AppDependency) NewServices(ctx context.Context) (*service.Service, error) {
	repo, err := repository.NewRepository(ctx, d.cfg, d.cache, d.db.DB, d.log)
	if err != nil {
		return nil, err
	}
	return service.NewService(d.cfg, d.log, repo, d.engine, d.queue), nil
}

func (d *AppDependency) Close() error {
	d.log.Info("Closing app dependency")
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			d.log.Warn("Failed to close redis client", zap.Error(err))
		}
	}
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}
