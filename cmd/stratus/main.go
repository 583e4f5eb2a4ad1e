package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stratus-console/stratus/internal/ability"
	"github.com/stratus-console/stratus/internal/app"
	"github.com/stratus-console/stratus/internal/audit"
	"github.com/stratus-console/stratus/internal/bus"
	"github.com/stratus-console/stratus/internal/guard"
	"github.com/stratus-console/stratus/internal/observability"
	"github.com/stratus-console/stratus/internal/passport"
	"github.com/stratus-console/stratus/internal/platform/cache"
	"github.com/stratus-console/stratus/internal/platform/db"
	"github.com/stratus-console/stratus/internal/projection"
	"github.com/stratus-console/stratus/internal/roles"
	"github.com/stratus-console/stratus/internal/session"
	"github.com/stratus-console/stratus/internal/users"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	registry := ability.NewRegistry()
	registry.Register(ability.CoreAbilities())

	proj := projection.New(projection.NewRepository(pool), logger,
		projection.WithFetchTimeout(cfg.FetchTimeout),
		projection.WithObserver(metrics),
	)
	if err := proj.Refresh(ctx); err != nil {
		// Start anyway: the projection stays empty (deny-by-default) until
		// the first successful refresh.
		logger.Error("initial projection refresh", slog.Any("error", err))
	}

	changeBus := bus.New(redisClient, cfg.ChangeChannel, logger)
	auditWriter := audit.NewWriter(pool, logger)
	changeBus.Subscribe(ctx, func(ctx context.Context, ev bus.Event) {
		if err := proj.Refresh(ctx); err != nil {
			logger.Error("projection refresh", slog.Any("error", err))
		}
		auditWriter.HandleEvent(ctx, ev)
	})

	sessionStore := session.NewStore(redisClient, cfg.SessionTTL, cfg.SessionGrace)

	routeGuard := guard.New(guard.Config{
		Sessions:    sessionStore,
		Source:      proj,
		TokenHeader: cfg.TokenHeader,
		BypassPaths: cfg.BypassPaths,
		Logger:      logger,
		Observer:    metrics,
	})

	passportService := passport.NewService(passport.NewRepository(pool), sessionStore)
	rolesService := roles.NewService(roles.NewRepository(pool), changeBus, logger)
	usersService := users.NewService(users.NewRepository(pool), changeBus, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		Guard:           guard.Middleware{Guard: routeGuard},
		PassportHandler: passport.NewHandler(logger, passportService, cfg.TokenHeader),
		AbilityHandler:  ability.NewHandler(registry),
		RolesHandler:    roles.NewHandler(logger, rolesService),
		UsersHandler:    users.NewHandler(logger, usersService),
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", slog.Any("error", err))
	}
	logger.Info("server stopped")
}
