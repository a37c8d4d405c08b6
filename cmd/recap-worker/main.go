package main

import (
	"context"
	"errors"
	"os"
	"time"

	"deplacements/internal/amqp"
	"deplacements/internal/cli"
	applog "deplacements/internal/log"
	"deplacements/internal/services"
	"deplacements/internal/valuation"
	"deplacements/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentWorker)
	logger.Info("Starting recap-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if !cfg.QueueEnabled() {
		logger.Error("AMQP_URL is required for the recap worker")
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	writer, err := cli.NewRecapWriter(context.Background(), cfg)
	cli.ExitOnError(logger, "Failed to initialize recap writer", err)

	aggregator := valuation.NewAggregator(repo, cfg.AggregatorConfig())
	// The worker generates recaps itself, so it has no publisher.
	recaps := services.NewRecapService(repo, aggregator, writer, nil)
	recapWorker := worker.NewRecapWorker(recaps, 5*cfg.RequestTimeout)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	cli.ExitOnError(logger, "Failed to initialize AMQP client", err)

	parent, stop := context.WithCancel(context.Background())
	defer stop()

	ctx, done := cli.GracefulShutdown(parent, logger, 30*time.Second, func(context.Context) {
		if err := amqpClient.Close(); err != nil {
			logger.Warn("AMQP close error", "error", err)
		}
	})

	go func() {
		err := amqpClient.ConsumeRecapRequests(ctx, recapWorker.HandleRecapRequest)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", "error", err)
		}
		stop()
	}()

	logger.Info("Recap worker started",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue,
		"recap_backend", cfg.RecapBackend,
		"workers", cfg.RecapWorkers)

	cli.WaitForShutdown(ctx, done)
	logger.Info("Recap worker stopped")
}
