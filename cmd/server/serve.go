package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopfloor/shopfloor/internal/access"
	"github.com/shopfloor/shopfloor/internal/api"
	"github.com/shopfloor/shopfloor/internal/api/handler"
	mw "github.com/shopfloor/shopfloor/internal/api/middleware"
	"github.com/shopfloor/shopfloor/internal/attachment"
	"github.com/shopfloor/shopfloor/internal/cache"
	"github.com/shopfloor/shopfloor/internal/config"
	"github.com/shopfloor/shopfloor/internal/metrics"
	"github.com/shopfloor/shopfloor/internal/production"
	"github.com/shopfloor/shopfloor/internal/store"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run migrations and start the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

// backend holds the long-lived connections every command needs.
type backend struct {
	pool    *pgxpool.Pool
	store   *store.PostgresStore
	cache   *cache.RedisCache
	files   *attachment.BreakerStore
	metrics *metrics.Metrics
	service *production.Service
}

func (b *backend) Close() {
	b.cache.Close()
	b.pool.Close()
}

func connect(ctx context.Context, cfg *config.Config) (*backend, error) {
	// 1. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	slog.Info("database connected")

	// 2. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create redis cache: %w", err)
	}
	if err := redisCache.Ping(ctx); err != nil {
		redisCache.Close()
		pool.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 3. Attachment store behind a circuit breaker
	files := attachment.NewBreakerStore(
		attachment.NewHTTPStore(cfg.Attachment.BaseURL, cfg.Attachment.APIKey, cfg.Attachment.UploadTimeout),
	)

	m := metrics.New()
	m.RegisterPool(pool)

	// 4. Store, visibility and service
	pg := store.NewPostgresStore(pool)
	filter := access.NewFilter(pg, access.DefaultPolicy(),
		access.WithAdminOwnJobs(cfg.Production.AdminOwnJobs))
	svc := production.New(pg, files, filter, production.Config{
		Folder:           cfg.Attachment.Folder,
		UploadTimeout:    cfg.Attachment.UploadTimeout,
		JobIDMaxAttempts: cfg.Production.JobIDMaxAttempts,
	},
		production.WithCache(redisCache),
		production.WithMetrics(m),
		production.WithLogger(slog.Default()),
	)

	return &backend{pool: pool, store: pg, cache: redisCache, files: files, metrics: m, service: svc}, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "admin_own_jobs", cfg.Production.AdminOwnJobs)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.RunMigrations(cfg.Database.URL, migrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	b, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	if cfg.Auth.JWTSecret == "" {
		slog.Warn("JWT_SECRET not set, only API keys are accepted")
	}

	router := api.NewRouter(newDependencies(cfg, b))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Attachment.UploadTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

func newDependencies(cfg *config.Config, b *backend) api.Dependencies {
	svc := b.service
	maxUpload := cfg.Attachment.MaxUploadBytes

	return api.Dependencies{
		Auth:      mw.NewAuth(b.store, cfg.Auth.JWTSecret),
		RateLimit: mw.NewRateLimit(b.cache, cfg.Server.RateLimitPerMinute),
		Metrics:   b.metrics,

		HealthHandler:  handler.NewHealthHandler(b.store, b.cache, b.files),
		MetricsHandler: b.metrics.Handler(),

		CreateJob:      handler.NewCreateJobHandler(svc),
		ListJobs:       handler.NewListJobsHandler(svc),
		JobSuggestions: handler.NewJobSuggestionsHandler(svc),
		JobsByCategory: handler.NewJobsByCategoryHandler(svc),
		GetJob:         handler.NewGetJobHandler(svc),
		JobStatus:      handler.NewJobStatusHandler(svc),
		UpdateJob:      handler.NewUpdateJobHandler(svc),

		CreateTask:      handler.NewCreateTaskHandler(svc, maxUpload),
		ListTasks:       handler.NewListTasksHandler(svc),
		TasksByJob:      handler.NewTasksByJobHandler(svc),
		TasksByCategory: handler.NewTasksByCategoryHandler(svc),
		GetTask:         handler.NewGetTaskHandler(svc),
		TaskHistory:     handler.NewTaskHistoryHandler(svc),
		UpdateTask:      handler.NewUpdateTaskHandler(svc, maxUpload),
		DeleteTask:      handler.NewDeleteTaskHandler(svc),
		AddVoiceMessage: handler.NewVoiceMessageHandler(svc, maxUpload),
		AddTextMessage:  handler.NewTextMessageHandler(svc),

		ListCategories: handler.NewListCategoriesHandler(svc),
	}
}
