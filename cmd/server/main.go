package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zombar/feedbackanalyzer/internal/analyzer"
	"github.com/zombar/feedbackanalyzer/internal/api"
	"github.com/zombar/feedbackanalyzer/internal/config"
	"github.com/zombar/feedbackanalyzer/internal/database"
	"github.com/zombar/feedbackanalyzer/internal/health"
	"github.com/zombar/feedbackanalyzer/internal/metrics"
	"github.com/zombar/feedbackanalyzer/internal/ollama"
	"github.com/zombar/feedbackanalyzer/internal/queue"
	"github.com/zombar/feedbackanalyzer/internal/tracing"
	"github.com/zombar/feedbackanalyzer/pkg/logging"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "Config file path (env: CONFIG_FILE)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	logger.Info("feedbackanalyzer service initializing", "version", "1.0.0")

	tp, err := tracing.InitTracer(cfg.ServiceName)
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer", "error", err)
			}
		}()
		logger.Info("tracing initialized successfully")
	}

	db, err := database.New(cfg.DBPath)
	if err != nil {
		logger.Error("failed to initialize database", "error", err, "database_path", cfg.DBPath)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	dbMetrics := metrics.NewDatabaseMetrics("feedbackanalyzer", nil)
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			dbMetrics.UpdateDBStats(db.Conn())
		}
	}()
	logger.Info("database metrics initialized")

	// Health statuses: database, behind a Redis cache when reachable,
	// bounded by a per-lookup timeout
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = connectRedis(cfg.RedisAddr, logger)
		if rdb != nil {
			defer rdb.Close()
		}
	}
	healthProvider := newHealthProvider(db, rdb, cfg, logger)

	feedbackAnalyzer := analyzer.NewWithHealthProvider(healthProvider)
	feedbackAnalyzer.SetConcurrency(cfg.AnalysisConcurrency)
	feedbackAnalyzer.SetLogger(logger)

	procCfg := queue.ProcessorConfig{
		Metrics: metrics.NewBusinessMetrics("feedbackanalyzer", nil),
		Logger:  logger,
	}
	if cfg.UseOllama {
		ollamaClient, err := ollama.New(cfg.OllamaURL, cfg.OllamaModel)
		if err != nil {
			logger.Warn("failed to initialize Ollama client, analyses will not be enriched",
				"error", err,
				"ollama_url", cfg.OllamaURL,
				"ollama_model", cfg.OllamaModel,
			)
		} else {
			logger.Info("Ollama client initialized", "model", cfg.OllamaModel, "url", cfg.OllamaURL)
			procCfg.Enricher = ollamaClient
		}
	} else {
		logger.Info("Ollama disabled, using rule-based analysis only")
	}

	processor := queue.NewProcessor(db, feedbackAnalyzer, procCfg)

	handlerOpts := api.Options{
		Processor: processor,
		Health:    healthProvider,
		Logger:    logger,
	}

	var worker *queue.Worker
	if cfg.UseQueue {
		queueClient := queue.NewClient(queue.ClientConfig{RedisAddr: cfg.RedisAddr})
		defer queueClient.Close()

		processor.SetEnqueuer(queueClient)
		handlerOpts.Queue = queueClient

		worker = queue.NewWorker(queue.WorkerConfig{
			RedisAddr:   cfg.RedisAddr,
			Concurrency: cfg.WorkerConcurrency,
		}, processor, logger)

		go func() {
			if err := worker.Start(); err != nil {
				logger.Error("worker stopped", "error", err)
			}
		}()
	} else {
		logger.Info("queue disabled, survey analyses run inline")
	}

	apiHandler := api.NewHandler(db, feedbackAnalyzer, handlerOpts)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      buildHandler(apiHandler, cfg.ServiceName, logger),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("feedbackanalyzer service starting",
			"port", cfg.Port,
			"database", cfg.DBPath,
			"queue_enabled", cfg.UseQueue,
			"ollama_enabled", procCfg.Enricher != nil,
			"analysis_concurrency", cfg.AnalysisConcurrency,
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if worker != nil {
		worker.Shutdown()
	}

	logger.Info("server stopped")
}

// buildHandler wraps the API with the middleware chain:
// tracing -> HTTP logging -> handlers
func buildHandler(apiHandler http.Handler, serviceName string, logger *slog.Logger) http.Handler {
	return tracing.HTTPMiddleware(serviceName)(
		logging.HTTPLoggingMiddleware(logger)(apiHandler),
	)
}

// connectRedis returns a client for addr, or nil when Redis does not answer
func connectRedis(addr string, logger *slog.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, health statuses will not be cached", "redis_addr", addr, "error", err)
		client.Close()
		return nil
	}
	return client
}

// newHealthProvider chains the health-status lookups. rdb may be nil.
func newHealthProvider(db analyzer.HealthStatusProvider, rdb *redis.Client, cfg *config.Config, logger *slog.Logger) *health.TimeoutProvider {
	var provider analyzer.HealthStatusProvider = db
	if rdb != nil {
		provider = health.NewCachedProvider(db, rdb, cfg.HealthCacheTTL, logger)
	}
	return health.NewTimeoutProvider(provider, cfg.HealthLookupTimeout, logger)
}
