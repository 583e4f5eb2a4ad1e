package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/stratus-console/stratus/internal/app"
	"github.com/stratus-console/stratus/internal/audit"
	"github.com/stratus-console/stratus/internal/bus"
	jobmetrics "github.com/stratus-console/stratus/internal/jobs"
	"github.com/stratus-console/stratus/internal/platform/cache"
	"github.com/stratus-console/stratus/internal/platform/db"
	"github.com/stratus-console/stratus/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
	defer func() { _ = redisClient.Close() }()

	changeBus := bus.New(redisClient, cfg.ChangeChannel, logger)
	auditWriter := audit.NewWriter(pool, logger)
	metrics := jobmetrics.NewMetrics(nil)

	pruneTask, err := jobs.NewAuditPruneTask(jobs.AuditPrunePayload{Retention: cfg.AuditRetention})
	if err != nil {
		logger.Error("build audit prune task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeProjectionTick, Handler: jobs.ProjectionTickHandler(changeBus, metrics, logger)},
			{Type: jobs.TaskTypeAuditPrune, Handler: jobs.AuditPruneHandler(auditWriter, metrics, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.RefreshCron, Task: jobs.NewProjectionTickTask()},
			{Spec: "0 3 * * *", Task: pruneTask},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	go func() {
		if err := worker.Start(); err != nil {
			logger.Error("worker start", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	worker.Shutdown()
	logger.Info("worker stopped")
}
