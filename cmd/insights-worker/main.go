package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"finsight/internal/cli"
	"finsight/internal/log"
	"finsight/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting insights-worker")

	ctx, stop := cli.SignalContext()
	defer stop()

	engine, err := cli.BuildEngine(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize insight engine", log.FieldError, err)
		os.Exit(1)
	}
	defer engine.Close()

	dispatcher := worker.NewDispatcher(engine.Insights, worker.DispatcherConfig{
		MaxConcurrent: int64(cfg.DispatchMaxConcurrent),
	}, logger)

	if cfg.AMQPURL == "" && cfg.SweepInterval == 0 {
		logger.Error("Nothing to do: set AMQP_URL or a non-zero SWEEP_INTERVAL")
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.AMQPURL != "" {
		amqpClient := cli.ConnectAMQP(cfg, logger)
		if amqpClient == nil {
			logger.Error("AMQP_URL is set but the broker is unreachable")
			os.Exit(1)
		}
		defer amqpClient.Close()

		events := worker.NewEventWorker(dispatcher, logger)
		g.Go(func() error {
			return amqpClient.ConsumeTransactionChanges(gctx, events.HandleTransactionChanged)
		})
	} else {
		logger.Info("Skipping AMQP message consumption - no AMQP_URL provided")
	}

	if cfg.SweepInterval > 0 {
		sweeper := worker.NewSweeper(engine.Backend.ActiveUsers, dispatcher, worker.SweeperConfig{
			Interval:   cfg.SweepInterval,
			WindowDays: cfg.InsightWindowDays,
		}, logger)
		g.Go(func() error {
			return sweeper.Run(gctx)
		})
	} else {
		logger.Info("Periodic sweep disabled")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", log.FieldError, err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("Shutting down worker...")
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		logger.Warn("Shutdown timeout reached", log.FieldError, err)
		return
	}
	logger.Info("Worker shutdown complete")
}
