package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mercadoleve/mercadoleve/internal/app"
	"github.com/mercadoleve/mercadoleve/internal/catalog"
	jobmetrics "github.com/mercadoleve/mercadoleve/internal/jobs"
	"github.com/mercadoleve/mercadoleve/internal/observability"
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
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	metrics := observability.NewMetrics()
	pipelineMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	catalogRepo := catalog.NewRepository(dbpool)
	reconciler := catalog.NewReconciler(catalogRepo, catalog.ReconcilerConfig{
		AutoCreateConfidence: &cfg.OCRAutoCreateConfidence,
		Logger:               logger,
	})
	catalogHandler := catalog.NewHandler(logger, catalog.NewService(catalogRepo))

	pricingRepo := pricing.NewRepository(dbpool)
	pricingService := pricing.NewService(pricingRepo, pricing.NewCache(redisClient, cfg.PricingCacheTTL), logger)
	recorder := pricing.NewRecorder(pricingRepo,
		pricing.WithLogger(logger),
		pricing.WithObserver(func(pt pricing.PriceType) { pipelineMetrics.PricesRecorded(string(pt), 1) }),
	)

	ocrService := ocr.NewService(ocr.ServiceConfig{
		Repository: ocr.NewRepository(dbpool),
		Blobs:      blobs,
		Extractor: vision.NewClient(vision.Config{
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.OpenAIModel,
			BaseURL:    cfg.OpenAIBaseURL,
			MaxTokens:  cfg.OpenAIMaxTokens,
			HTTPClient: &http.Client{Timeout: vision.CallTimeout},
			Logger:     logger,
		}),
		Reconciler:  reconciler,
		Prices:      recorder,
		Invalidator: pricingService,
		Metrics:     pipelineMetrics,
		Logger:      logger,
	})
	if cfg.OpenAIAPIKey == "" {
		logger.Warn("OPENAI_API_KEY not set, OCR processing requests will fail")
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		OCRHandler:     ocr.NewHandler(logger, ocrService, jobClient),
		CatalogHandler: catalogHandler,
		PricingHandler: pricing.NewHandler(logger, pricingService),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        metrics,
		Ready: func(r *http.Request) error {
			return errors.Join(dbpool.Ping(r.Context()), cache.Ping(r.Context(), redisClient))
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
