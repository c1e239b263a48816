package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/osvaldoandrade/formfill/internal/answers"
	"github.com/osvaldoandrade/formfill/internal/metrics"
	"github.com/osvaldoandrade/formfill/internal/middleware"
	"github.com/osvaldoandrade/formfill/internal/providers"
	"github.com/osvaldoandrade/formfill/internal/ratelimit"
	"github.com/osvaldoandrade/formfill/internal/services"
	"github.com/osvaldoandrade/formfill/internal/tracing"
	"github.com/osvaldoandrade/formfill/pkg/config"
	"github.com/osvaldoandrade/formfill/pkg/persistence"
	_ "github.com/osvaldoandrade/formfill/pkg/persistence/memory"
	_ "github.com/osvaldoandrade/formfill/pkg/persistence/redis"

	"github.com/gin-gonic/gin"
)

type Application struct {
	Config          *config.Config
	Engine          *gin.Engine
	Jobs            services.JobService
	Queries         services.JobQueryService
	Store           persistence.PluginPersistence
	Logger          *slog.Logger
	TZ              *time.Location
	RateLimiter     ratelimit.Limiter
	TracingShutdown func(context.Context) error

	forms     providers.FormProvider
	generator answers.GeneratorFactory
	now       func() time.Time
}

// ApplicationOption configures the Application
type ApplicationOption func(*Application) error

// WithFormProvider replaces the form backend selected by formProvider.
func WithFormProvider(fp providers.FormProvider) ApplicationOption {
	return func(app *Application) error {
		app.forms = fp
		return nil
	}
}

// WithGeneratorFactory replaces the Gemini-backed generator factory.
func WithGeneratorFactory(f answers.GeneratorFactory) ApplicationOption {
	return func(app *Application) error {
		app.generator = f
		return nil
	}
}

// WithClock sets the clock used for log timestamps and retention.
func WithClock(now func() time.Time) ApplicationOption {
	return func(app *Application) error {
		app.now = now
		return nil
	}
}

func NewApplication(cfg *config.Config, opts ...ApplicationOption) (*Application, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.FixedZone("UTC", 0)
	}

	level := new(slog.LevelVar)
	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(handler).With("service", "formfill", "env", cfg.Env)
	slog.SetDefault(logger)

	app := &Application{
		Config: cfg,
		Logger: logger,
		TZ:     loc,
	}
	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}
	if app.now == nil {
		app.now = func() time.Time { return time.Now().In(loc) }
	}

	shutdown, err := tracing.Setup(context.Background(), tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
		SampleRatio:  cfg.Tracing.SampleRatio,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("tracing setup: %w", err)
	}
	app.TracingShutdown = shutdown

	store, err := openStore(cfg, app.now)
	if err != nil {
		return nil, err
	}
	app.Store = store

	if cfg.StorageProvider == "redis" {
		redisClient := providers.NewRedisProvider(cfg.RedisAddr, cfg.RedisPassword)
		app.RateLimiter = ratelimit.NewTokenBucketLimiter(redisClient)
		metrics.RegisterRedisCollector(redisClient, logger)
	}

	if app.forms == nil {
		if app.forms, err = openForms(cfg); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	if app.generator == nil {
		app.generator = providers.NewGeminiGeneratorFactory(providers.GeminiOptions{
			MinInterval: time.Duration(cfg.GenerationMinIntervalMillis) * time.Millisecond,
			Timeout:     time.Duration(cfg.GenerationTimeoutSeconds) * time.Second,
		})
	}

	notifier := services.NewCompletionNotifier(
		logger,
		&http.Client{Timeout: 10 * time.Second},
		cfg.CallbackHmacSecret,
		cfg.CallbackMaxAttempts,
		time.Duration(cfg.CallbackBaseBackoffSeconds)*time.Second,
		time.Duration(cfg.CallbackMaxBackoffSeconds)*time.Second,
		app.RateLimiter,
		ratelimit.Bucket(cfg.RateLimit.Callback),
	)
	app.Jobs = services.NewJobService(
		store.JobStorage(),
		store.LockStorage(),
		services.NewSubmissionService(app.forms),
		app.generator,
		notifier,
		logger,
		app.now,
		services.JobServiceConfig{
			MaxSubmissions: cfg.MaxSubmissions,
			LockScope:      cfg.LockScope,
			LockWait:       time.Duration(cfg.LockWaitSeconds) * time.Second,
			LockLease:      time.Duration(cfg.LockLeaseSeconds) * time.Second,
			DefaultModel:   cfg.DefaultGeminiModel,
		},
	)
	app.Queries = services.NewJobQueryService(store.JobStorage())

	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware(),
		middleware.LoggerMiddleware(logger),
		middleware.TracingMiddleware(cfg.Tracing.ServiceName),
	)
	app.Engine = engine

	return app, nil
}

// Close releases the storage backend and flushes the trace exporter.
func (a *Application) Close(ctx context.Context) error {
	var firstErr error
	if a.Store != nil {
		firstErr = a.Store.Close()
	}
	if a.TracingShutdown != nil {
		if err := a.TracingShutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func openStore(cfg *config.Config, now func() time.Time) (persistence.PluginPersistence, error) {
	var raw json.RawMessage
	if cfg.StorageProvider == "redis" {
		b, err := json.Marshal(map[string]string{"addr": cfg.RedisAddr, "password": cfg.RedisPassword})
		if err != nil {
			return nil, err
		}
		raw = b
	}
	store, err := persistence.NewPersistence(
		persistence.ProviderConfig{Type: cfg.StorageProvider, Config: raw},
		persistence.PluginConfig{
			LogTTL: time.Duration(cfg.LogTTLSeconds) * time.Second,
			Now:    now,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.StorageProvider, err)
	}
	return store, nil
}

func openForms(cfg *config.Config) (providers.FormProvider, error) {
	switch cfg.FormProvider {
	case "catalog":
		return providers.NewCatalogFormProvider(cfg.FormCatalogPath, providers.NewLocalUploader(cfg.LocalArtifactsDir), time.Now)
	case "http", "":
		return providers.NewHTTPFormProvider(cfg.FormBackendURL, &http.Client{Timeout: 30 * time.Second}), nil
	default:
		return nil, fmt.Errorf("unknown form provider %q", cfg.FormProvider)
	}
}
