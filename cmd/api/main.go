package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/funding-auth/internal/api/http"
	"github.com/spec-kit/funding-auth/internal/api/http/handlers"
	"github.com/spec-kit/funding-auth/internal/auth"
	"github.com/spec-kit/funding-auth/internal/config"
	"github.com/spec-kit/funding-auth/internal/events"
	"github.com/spec-kit/funding-auth/internal/observability"
	"github.com/spec-kit/funding-auth/internal/persistence"
	"github.com/spec-kit/funding-auth/internal/repository"
	"github.com/spec-kit/funding-auth/internal/service"
	"github.com/spec-kit/funding-auth/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()

	dispatcher := events.NewInMemoryDispatcher()
	deps := service.TokenDependencies{
		Store:   persistence.NewCsrfStore(redis.Client, cfg.Redis.KeyPrefix, cfg.Redis.OpTimeout()),
		Events:  dispatcher,
		Metrics: metrics,
		Logger:  logger.Named("tokens"),
	}
	if pg.Enabled() {
		deps.Audit = repository.NewIssuanceRepository(pg.PoolHandle())
		worker.StartAuditWorker(dispatcher, deps.Audit, logger.Named("audit"))
	}

	tokenService, err := service.NewTokenService(*cfg, deps)
	if err != nil {
		logger.Fatal("invalid token configuration", zap.Error(err))
	}

	guard := auth.NewIssuanceGuard(cfg.Auth.IssuanceAPIKey)
	if guard == nil {
		logger.Warn("AUTH_ISSUANCE_API_KEY not set; issuance endpoints disabled")
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:        handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Tokens:        handlers.NewTokenHandler(tokenService),
		Metrics:       metrics.Handler(),
		IssuanceGuard: guard,
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
