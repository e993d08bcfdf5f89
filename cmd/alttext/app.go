package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/user/alttext-service/internal/adapter/chromedp_renderer"
	"github.com/user/alttext-service/internal/adapter/memory"
	"github.com/user/alttext-service/internal/adapter/postgres"
	redis_adapter "github.com/user/alttext-service/internal/adapter/redis"
	"github.com/user/alttext-service/internal/adapter/sqlite"
	"github.com/user/alttext-service/internal/aiclient"
	"github.com/user/alttext-service/internal/alttext"
	"github.com/user/alttext-service/internal/breaker"
	"github.com/user/alttext-service/internal/entity"
	"github.com/user/alttext-service/internal/repository"
	"github.com/user/alttext-service/internal/usecase"
	"github.com/user/alttext-service/pkg/config"
	"github.com/user/alttext-service/pkg/logger"
	"github.com/user/alttext-service/pkg/metrics"
)

const pageLoadTimeout = 30 * time.Second

type appOptions struct {
	// preview starts a headless browser renderer for live page previews.
	preview bool
}

// app holds the wired use cases for one process.
type app struct {
	cfg      *config.Config
	settings config.Settings
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	health   map[string]func(context.Context) error

	changelog *usecase.ChangeLog
	renderer  *usecase.Renderer
	documents *usecase.DocumentProcessor
	bulk      *usecase.BulkOrchestrator
	previewer *usecase.Previewer

	closers []func()
}

type stores struct {
	images repository.ImageRepository
	docs   repository.DocumentRepository
	logs   repository.ChangeLogRepository
}

func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (a *app, err error) {
	settings, err := cfg.Settings()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.AppLogLevel)
	if err != nil {
		return nil, err
	}

	a = &app{
		cfg:      cfg,
		settings: settings,
		logger:   log,
		registry: prometheus.NewRegistry(),
		health:   make(map[string]func(context.Context) error),
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	st, err := a.openStorage(ctx)
	if err != nil {
		return nil, err
	}
	transient, err := a.openTransient(ctx)
	if err != nil {
		return nil, err
	}

	b := breaker.New(transient, log)
	ai := aiclient.NewClient(aiclient.Config{
		Endpoint:        settings.AI.Endpoint,
		Method:          settings.AI.Method,
		Headers:         settings.AI.Headers,
		APIKey:          settings.AI.Key,
		RequestTemplate: settings.AI.RequestTemplate,
		ResponsePath:    settings.AI.ResponsePath,
		Model:           settings.AI.Model,
		TimeoutSeconds:  settings.AI.TimeoutSeconds,
	}, b, aiclient.WithLogger(log), aiclient.WithMetrics(a.metrics))
	if settings.AltSource == entity.AltSourceAI && !ai.Configured() {
		log.Warn("ALT_SOURCE is ai but AI_ENDPOINT is empty; generation requests will fail")
	}
	engine := alttext.NewEngine(ai, log)

	a.changelog = usecase.NewChangeLog(st.logs, st.images, settings, log)
	a.renderer = usecase.NewRenderer(settings, engine, st.images, a.changelog, a.metrics, log)
	a.documents = usecase.NewDocumentProcessor(settings, engine, st.images, st.docs, transient, a.changelog, a.metrics, log)
	a.bulk = usecase.NewBulkOrchestrator(settings, engine, st.images, st.docs, transient, a.changelog, a.metrics, log)

	if opts.preview {
		pages := chromedp_renderer.NewChromedpRenderer(pageLoadTimeout, log)
		a.closers = append(a.closers, pages.Close)
		a.previewer = usecase.NewPreviewer(pages, a.renderer, log)
	}

	log.Debug("application wired",
		zap.String("storage_driver", cfg.StorageDriver),
		zap.Bool("redis", cfg.RedisAddr != ""),
		zap.String("alt_source", string(settings.AltSource)),
	)
	return a, nil
}

func (a *app) openStorage(ctx context.Context) (*stores, error) {
	switch strings.ToLower(strings.TrimSpace(a.cfg.StorageDriver)) {
	case "postgres":
		if a.cfg.PostgresURL == "" {
			return nil, fmt.Errorf("%w: POSTGRES_URL is required for the postgres storage driver", config.ErrInvalidConfig)
		}
		pool, err := postgres.Connect(ctx, a.cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		a.health["postgres"] = pool.Ping
		a.logger.Info("PostgreSQL connection pool established")
		return &stores{
			images: postgres.NewImageRepo(pool),
			docs:   postgres.NewDocumentRepo(pool),
			logs:   postgres.NewChangeLogRepo(pool),
		}, nil
	case "", "sqlite":
		db, err := sqlite.Open(ctx, a.cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		a.health["sqlite"] = db.PingContext
		a.logger.Info("SQLite database opened", zap.String("path", a.cfg.SQLitePath))
		return &stores{
			images: sqlite.NewImageRepo(db),
			docs:   sqlite.NewDocumentRepo(db),
			logs:   sqlite.NewChangeLogRepo(db),
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown STORAGE_DRIVER %q", config.ErrInvalidConfig, a.cfg.StorageDriver)
}

// openTransient connects to Redis, or falls back to an in-process store
// when REDIS_ADDR is empty.
func (a *app) openTransient(ctx context.Context) (repository.TransientRepository, error) {
	if a.cfg.RedisAddr == "" {
		a.logger.Info("REDIS_ADDR not set, using in-process transient store")
		return memory.NewTransientRepo(), nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.closers = append(a.closers, func() { _ = rdb.Close() })
	repo := redis_adapter.NewTransientRepo(rdb)
	a.health["redis"] = repo.Ping
	a.logger.Info("Redis connection established", zap.String("addr", a.cfg.RedisAddr))
	return repo, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	_ = a.logger.Sync()
}
