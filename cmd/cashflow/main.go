package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"cashflow/internal/cache"
	"cashflow/internal/cli"
	apphttp "cashflow/internal/http"
	applog "cashflow/internal/log"
	"cashflow/internal/middleware/ratelimit"
)

func main() {
	cli.LoadEnvFile()

	boot := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(boot)
	logger := cli.SetupLogger(cfg.LogLevel, applog.ComponentApp)

	res := cli.InitBackend(context.Background(), logger, cfg)
	defer func() {
		if err := res.Close(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	}()

	if err := cli.ApplySeedFile(context.Background(), logger, res, cfg.SeedFile); err != nil {
		logger.Error("Failed to load seed file", "error", err, "path", cfg.SeedFile)
		os.Exit(1)
	}

	caches := cache.NewManager()
	caches.Register("exchange_rates", res.Converter.Cache())
	caches.StartCleanup(10 * time.Minute)
	defer caches.Stop()

	rl := ratelimit.DefaultConfig()
	rl.RequestsPerMinute = cfg.RateLimitRPM

	srv, err := apphttp.NewServer(cfg.HTTPAddr(), res.Engine, apphttp.Options{
		Logger:         logger.WithComponent(applog.ComponentHTTP),
		RateLimit:      rl,
		TrustedProxies: cfg.TrustedProxies,
		DefaultMonths:  cfg.AlertHorizonMonths,
	})
	if err != nil {
		logger.Error("Failed to build HTTP server", "error", err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	})

	logger.Info("Starting cashflow server",
		"addr", cfg.HTTPAddr(),
		"backend", cfg.DataBackend,
		"base_currency", cfg.BaseCurrency)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "addr", cfg.HTTPAddr())
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
