package main

import (
	"context"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"cashflow/internal/cli"
	applog "cashflow/internal/log"
	"cashflow/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	boot := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(boot)
	logger := cli.SetupLogger(cfg.LogLevel, applog.ComponentWorker)

	logger.Info("Starting alert-worker", "schedule", cfg.AlertCron, "horizon", cfg.AlertHorizonMonths)

	res := cli.InitBackend(context.Background(), logger, cfg)
	defer func() {
		if err := res.Close(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	}()

	scheduler := worker.NewAlertScheduler(res.Engine, res.Store, cfg.AlertOwners, cfg.AlertHorizonMonths)

	c := cron.New(cron.WithLocation(time.UTC))
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		stopped := c.Stop()
		select {
		case <-stopped.Done():
		case <-ctx.Done():
		}
	})

	if _, err := c.AddFunc(cfg.AlertCron, func() {
		if _, err := scheduler.RunOnce(ctx); err != nil {
			logger.Error("Scheduled alert run failed", "error", err)
		}
	}); err != nil {
		logger.Error("Invalid alert schedule", "error", err, "schedule", cfg.AlertCron)
		os.Exit(1)
	}

	// Run once at startup so alerts exist before the first tick.
	if _, err := scheduler.RunOnce(ctx); err != nil {
		logger.Error("Startup alert run failed", "error", err)
	}

	c.Start()
	cli.WaitForShutdown(ctx, done)
	logger.Info("Alert worker stopped")
}
