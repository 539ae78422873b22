package main

import (
	"context"
	"errors"
	"os"
	"time"

	"several/internal/amqp"
	"several/internal/cache"
	"several/internal/cli"
	"several/internal/core"
	apphttp "several/internal/http"
	"several/internal/log"
	"several/internal/ocr"
	"several/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentApp)

	ctx := context.Background()
	store, closeStore := cli.OpenStore(ctx, logger, cfg)

	var notifier services.Notifier
	var amqpClient *amqp.Client
	if cfg.NoticesEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, notices stay local", log.NewFields().
				WithComponent(log.ComponentAMQP).
				WithError(err, log.ErrorTypeNetwork).ToSlice()...)
		} else {
			amqpClient, notifier = client, client
			logger.Info("Publishing notices to AMQP", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	svc := services.NewBudgetService(store, services.Options{
		Notifier:    notifier,
		Logger:      logger,
		Version:     core.Version,
		SaveTimeout: cfg.SaveTimeout,
	})
	if err := svc.Load(ctx); err != nil {
		logger.Error("Failed to load state", log.NewFields().
			WithOperation(log.OpLoad).
			WithError(err, log.ErrorTypeDatabase).ToSlice()...)
		os.Exit(1)
	}

	extractor, cacheStats, stopOCR := setupOCR(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.OCRTimeout, cfg.OCRCacheSize, cfg.OCRCacheTTL, logger)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Service:            svc,
		Extractor:          extractor,
		Logger:             logger,
		Version:            core.Version,
		MaxUploadBytes:     cfg.MaxUploadBytes,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		CacheStats:         cacheStats,
	})

	shutdownCtx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		logger.Info("Shutting down", log.FieldOperation, log.OpShutdown)
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		var errs []error
		errs = append(errs, svc.Close(), stopOCR())
		if amqpClient != nil {
			errs = append(errs, amqpClient.Close())
		}
		errs = append(errs, closeStore())
		if err := errors.Join(errs...); err != nil {
			logger.Error("Cleanup error", log.FieldError, err)
		}
	})

	logger.Info("Starting several server",
		log.FieldOperation, log.OpStartup,
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"ocr", cfg.OCREnabled(),
		log.FieldVersion, core.Version)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}

// setupOCR returns the receipt extractor, the stats of its result cache
// and a stop function. Without an API key extraction is disabled.
func setupOCR(ctx context.Context, apiKey, model string, timeout time.Duration, cacheSize int, cacheTTL time.Duration, logger *log.Logger) (ocr.Extractor, func() cache.Stats, func() error) {
	noop := func() error { return nil }
	if apiKey == "" {
		logger.Info("OCR disabled - no GEMINI_API_KEY provided")
		return ocr.Disabled{}, nil, noop
	}

	gemini, err := ocr.NewGeminiExtractor(ctx, apiKey, model, timeout, logger)
	if err != nil {
		logger.Warn("OCR unavailable", log.NewFields().
			WithComponent(log.ComponentOCR).
			WithError(err, log.ErrorTypeConfiguration).ToSlice()...)
		return ocr.Disabled{}, nil, noop
	}
	if cacheSize == 0 {
		return gemini, nil, gemini.Close
	}

	results := cache.NewLRUCache[ocr.Result](cacheSize, cacheTTL)
	janitor := cache.NewJanitor(logger)
	janitor.Register(results)
	janitor.Start(10 * time.Minute)

	cached := ocr.NewCachedExtractor(gemini, results)
	return cached, cached.Stats, func() error {
		janitor.Stop()
		return gemini.Close()
	}
}
