package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"deplacements/internal/amqp"
	"deplacements/internal/cli"
	apphttp "deplacements/internal/http"
	applog "deplacements/internal/log"
	"deplacements/internal/services"
	"deplacements/internal/valuation"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	aggregator := valuation.NewAggregator(repo, cfg.AggregatorConfig())

	writer, err := cli.NewRecapWriter(context.Background(), cfg)
	cli.ExitOnError(logger, "Failed to initialize recap writer", err)
	logger.Info("Recap writer initialized", "backend", cfg.RecapBackend)

	// Without a queue, POST /api/recaps generates the recap inline.
	var publisher services.RecapPublisher
	if cfg.QueueEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		cli.ExitOnError(logger, "Failed to initialize AMQP client", err)
		defer client.Close()
		publisher = client
		logger.Info("AMQP publisher initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled, recaps are generated inline")
	}

	recaps := services.NewRecapService(repo, aggregator, writer, publisher)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Summaries:      aggregator,
		Users:          repo,
		Recaps:         recaps,
		Ready:          repo,
		Logger:         logger.WithComponent(applog.ComponentHTTP),
		RequestTimeout: cfg.RequestTimeout,
	})

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = cfg.RequestTimeout + 10*time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(context.Background(), logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	})

	logger.Info("Starting deplacements server",
		"port", cfg.Port,
		"recap_backend", cfg.RecapBackend,
		"queue", cfg.QueueEnabled(),
		"rule_policy", cfg.DefaultRulePolicy)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
