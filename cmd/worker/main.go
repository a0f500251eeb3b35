package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/navimedi/credrotate/internal/app"
	"github.com/navimedi/credrotate/internal/platform/db"
	"github.com/navimedi/credrotate/internal/rotation"
	"github.com/navimedi/credrotate/jobs"
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

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	uow := rotation.NewPGUnitOfWork(pool)
	codec := rotation.NewHashCodec()
	audit := rotation.NewAuditWriter()
	orch := rotation.NewOrchestrator(
		uow,
		rotation.NewSelector(logger),
		rotation.NewRecorder(codec, logger),
		codec,
		audit,
		rotation.NewCachePurger(redisClient, logger),
		logger,
	)
	rotationJob := jobs.NewCredentialRotationJob(orch, logger)

	dryRunTask, err := jobs.NewCredentialRotationTask(jobs.CredentialRotationPayload{
		Mode:  string(rotation.ModeDryRun),
		Actor: "credential-rotation-scheduler",
	})
	if err != nil {
		logger.Error("build rotation task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeCredentialRotation, Handler: rotationJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			// Weekly scoping report; execute runs stay operator-triggered.
			{Spec: "0 6 * * 1", Task: dryRunTask, Options: []asynq.Option{asynq.Queue(jobs.QueueRotation), asynq.MaxRetry(0)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
