package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"several/internal/amqp"
	"several/internal/cli"
	"several/internal/log"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentNotifier)

	if !cfg.NoticesEnabled() {
		logger.Error("AMQP_URL is required")
		os.Exit(1)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.NewFields().
			WithComponent(log.ComponentAMQP).
			WithError(err, log.ErrorTypeNetwork).ToSlice()...)
		os.Exit(1)
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink := newNoticeSink(logger)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.ConsumeNotices(gctx, sink.Handle)
	})

	logger.Info("Notifier started", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Notice consumption failed", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Notifier stopped", "handled", sink.Handled())
}
