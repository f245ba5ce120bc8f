package main

import (
	"context"
	"errors"
	"os"
	"time"

	"cashflow/internal/amqp"
	"cashflow/internal/cli"
	applog "cashflow/internal/log"
	"cashflow/internal/sheets"
	gsheet "cashflow/internal/sheets/google"
	mem "cashflow/internal/sheets/memory"
	"cashflow/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	boot := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(boot)
	logger := cli.SetupLogger(cfg.LogLevel, applog.ComponentWorker)

	logger.Info("Starting export-worker")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the export worker")
		os.Exit(1)
	}

	res := cli.InitBackend(context.Background(), logger, cfg)
	defer func() {
		if err := res.Close(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	}()

	var exporter sheets.ForecastExporter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		exporter = client
		logger.Info("Google Sheets exporter initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		exporter = mem.New()
		logger.Info("Google Sheets disabled - exporting to memory")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	exportWorker := worker.NewExportWorker(res.Engine, exporter)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	// Cover refreshes published while the worker was down.
	owners, err := res.Store.Owners(ctx)
	if err != nil {
		logger.Error("Failed to list owners for startup export", "error", err)
	} else if err := exportWorker.ExportAll(ctx, owners, cfg.AlertHorizonMonths); err != nil {
		logger.Error("Startup export failed", "error", err)
	}

	go func() {
		err := amqpClient.ConsumeForecastRefreshed(ctx, func(msg *amqp.ForecastRefreshedMessage) error {
			return exportWorker.HandleForecastRefreshed(ctx, msg)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", "error", err)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Export worker stopped")
}
