package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/navimedi/credrotate/internal/app"
	"github.com/navimedi/credrotate/internal/platform/db"
	"github.com/navimedi/credrotate/internal/rotation"
)

func main() {
	os.Exit(run())
}

func run() int {
	dryRun := flag.Bool("dry-run", false, "report what would be rotated without writing anything")
	execute := flag.Bool("execute", false, "perform the rotation")
	rollbackOp := flag.String("rollback", "", "roll back a prior operation by its operation id")
	flag.Parse()

	mode, target, err := resolveMode(*dryRun, *execute, *rollbackOp)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rotate: %v\n", err)
		flag.Usage()
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return 1
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping, session cache purge degraded", slog.Any("error", err))
		_ = redisClient.Close()
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
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
	driver := rotation.NewDriver(orch, rotation.NewRollbackExecutor(uow, codec, audit, logger))

	return driver.Run(ctx, rotation.Options{
		Mode:              mode,
		TargetOperationID: target,
		Actor:             cfg.RotateActor,
	})
}

func resolveMode(dryRun, execute bool, rollbackOp string) (rotation.Mode, string, error) {
	selected := 0
	if dryRun {
		selected++
	}
	if execute {
		selected++
	}
	if rollbackOp != "" {
		selected++
	}
	if selected != 1 {
		return "", "", fmt.Errorf("exactly one of --dry-run, --execute or --rollback <operationId> is required")
	}
	switch {
	case dryRun:
		return rotation.ModeDryRun, "", nil
	case execute:
		return rotation.ModeExecute, "", nil
	default:
		return rotation.ModeRollback, rollbackOp, nil
	}
}
