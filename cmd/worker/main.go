package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/mercadoleve/mercadoleve/internal/app"
	"github.com/mercadoleve/mercadoleve/internal/catalog"
	jobmetrics "github.com/mercadoleve/mercadoleve/internal/jobs"
	"github.com/mercadoleve/mercadoleve/internal/ocr"
	"github.com/mercadoleve/mercadoleve/internal/platform/cache"
	"github.com/mercadoleve/mercadoleve/internal/platform/db"
	"github.com/mercadoleve/mercadoleve/internal/platform/storage"
	"github.com/mercadoleve/mercadoleve/internal/pricing"
	"github.com/mercadoleve/mercadoleve/internal/vision"
	"github.com/mercadoleve/mercadoleve/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	blobs, err := storage.NewS3Store(ctx, storage.Config{
		Endpoint:     cfg.S3Endpoint,
		Region:       cfg.S3Region,
		AccessKey:    cfg.S3AccessKey,
		SecretKey:    cfg.S3SecretKey,
		Bucket:       cfg.S3Bucket,
		UsePathStyle: cfg.S3UsePathStyle,
	})
	if err != nil {
		logger.Error("init blob store", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := jobmetrics.NewMetrics(nil)

	pricingRepo := pricing.NewRepository(pool)
	ocrService := ocr.NewService(ocr.ServiceConfig{
		Repository: ocr.NewRepository(pool),
		Blobs:      blobs,
		Extractor: vision.NewClient(vision.Config{
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.OpenAIModel,
			BaseURL:    cfg.OpenAIBaseURL,
			MaxTokens:  cfg.OpenAIMaxTokens,
			HTTPClient: &http.Client{Timeout: vision.CallTimeout},
			Logger:     logger,
		}),
		Reconciler: catalog.NewReconciler(catalog.NewRepository(pool), catalog.ReconcilerConfig{
			AutoCreateConfidence: &cfg.OCRAutoCreateConfidence,
			Logger:               logger,
		}),
		Prices: pricing.NewRecorder(pricingRepo,
			pricing.WithLogger(logger),
			pricing.WithObserver(func(pt pricing.PriceType) { metrics.PricesRecorded(string(pt), 1) }),
		),
		Invalidator: pricing.NewService(pricingRepo, pricing.NewCache(redisClient, cfg.PricingCacheTTL), logger),
		Metrics:     metrics,
		Logger:      logger,
	})

	batchJob := jobs.NewProcessBatchJob(ocrService, logger, metrics)
	sweepJob := jobs.NewSweepStaleJob(ocrService, logger, metrics)
	sweepTask, err := jobs.NewSweepStaleTask(cfg.OCRStaleAfter)
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskOCRProcessBatch, Handler: batchJob.Handle},
			{Type: jobs.TaskOCRSweepStale, Handler: sweepJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/15 * * * *", Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
