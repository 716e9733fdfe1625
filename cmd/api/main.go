package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/shopfield/api/internal/di"
	"github.com/shopfield/api/internal/handlers"
	"github.com/shopfield/api/internal/platform/config"
	"github.com/shopfield/api/internal/platform/idempotency"
	"github.com/shopfield/api/internal/platform/observability"
	"github.com/shopfield/api/internal/platform/secrets"
	"github.com/shopfield/api/internal/services"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)))
	if err != nil {
		var vErr *config.ValidationError
		if errors.As(err, &vErr) {
			logger.Fatal("invalid configuration", zap.Strings("fields", vErr.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	container, err := di.NewContainer(ctx, cfg, logger, di.WithBuildInfo(buildInfoFromEnv(envValues, cfg, startedAt)))
	if err != nil {
		logger.Fatal("failed to build dependencies", zap.Error(err), zap.String("driver", cfg.Database.Driver))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("dependency close error", zap.Error(err))
		}
	}()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      newRouter(logger, cfg, container),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	serverErr := make(chan error, 1)
	go func() {
		serverLogger.Info("shopfield api listening",
			zap.String("environment", cfg.Environment),
			zap.String("driver", cfg.Database.Driver),
			zap.Bool("redis", cfg.Redis.Enabled()),
			zap.Bool("pubsub", cfg.PubSub.Enabled()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-shutdown:
		logger.Info("shutdown signal received; draining requests")
	case err := <-serverErr:
		logger.Error("http server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newRouter(logger *zap.Logger, cfg config.Config, c *di.Container) http.Handler {
	httpLogger := logger.Named("http")
	idempotencyMiddleware := idempotency.Middleware(
		c.Idempotency,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(logger.Named("idempotency")),
	)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(httpLogger),
		observability.TraceMiddleware(),
		observability.RecoveryMiddleware(httpLogger),
		observability.RequestLoggerMiddleware(),
	}
	if cfg.Server.RequestTimeout > 0 {
		middlewares = append(middlewares, middleware.Timeout(cfg.Server.RequestTimeout))
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(c.Build),
		handlers.WithHealthSystemService(c.Services.System),
	)
	orderHandlers := handlers.NewOrderHandlers(c.Authenticator, c.Services.Orders, idempotencyMiddleware)
	catalogHandlers := handlers.NewCatalogHandlers(c.Authenticator, c.Services.Catalog)
	customerHandlers := handlers.NewCustomerHandlers(c.Authenticator, c.Services.Customers)
	addressHandlers := handlers.NewAddressHandlers(c.Authenticator, c.Services.Addresses)

	return handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithCatalogRoutes(catalogHandlers.Routes),
		handlers.WithCustomerRoutes(customerHandlers.Routes),
		handlers.WithAddressRoutes(addressHandlers.Routes),
	)
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Environment,
		StartedAt:   started,
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIRESTORE_PROJECT_ID")
	}
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithDefaultProject(defaultProject),
	}
	if path, ok := env["API_SECRET_FALLBACK_FILE"]; ok {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	return secrets.NewFetcher(ctx, opts...)
}
