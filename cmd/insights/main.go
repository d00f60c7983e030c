package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"finsight/internal/cli"
	apphttp "finsight/internal/http"
	"finsight/internal/log"
	"finsight/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := cli.SignalContext()
	defer stop()

	engine, err := cli.BuildEngine(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize insight engine", log.FieldError, err)
		os.Exit(1)
	}
	defer engine.Close()

	// Events published here are consumed by insights-worker. The dispatcher
	// covers requests the broker cannot take.
	dispatcher := worker.NewDispatcher(engine.Insights, worker.DispatcherConfig{
		MaxConcurrent: int64(cfg.DispatchMaxConcurrent),
	}, logger)

	deps := apphttp.Deps{
		Generator: engine.Insights,
		ReadState: engine.ReadState,
		Dispatch:  dispatcher,
		Ready:     engine.Backend.Ready,
	}
	if amqpClient := cli.ConnectAMQP(cfg, logger); amqpClient != nil {
		defer amqpClient.Close()
		deps.Events = amqpClient
	}

	srv := apphttp.NewServer(":"+cfg.Port, deps, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		ListCacheTTL:       cfg.ListCacheTTL,
	}, logger)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting insights API",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"ledger", cfg.LedgerSource,
			"amqp_enabled", deps.Events != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", log.FieldError, err)
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		logger.Warn("Dispatcher did not drain", log.FieldError, err)
	}
	logger.Info("Server stopped gracefully")
}
