package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"optionflow/internal/aggregator"
	"optionflow/internal/baseline"
	"optionflow/internal/book"
	"optionflow/internal/cache"
	"optionflow/internal/config"
	"optionflow/internal/consumer"
	"optionflow/internal/contract"
	"optionflow/internal/handlers"
	"optionflow/internal/instrumentation"
	"optionflow/internal/logging"
	"optionflow/internal/metrics"
	"optionflow/internal/models"
	"optionflow/internal/pipeline"
	"optionflow/internal/processor"
	"optionflow/internal/publisher"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger, logCloser, err := logging.New(logging.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	if err != nil {
		slog.Error("failed to create logger", "error", err)
		os.Exit(1)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	logger.Info("optionflow_starting",
		"redis_url", cfg.RedisURL,
		"stream_key", cfg.StreamKey,
		"consumer_group", cfg.ConsumerGroup,
		"store_driver", cfg.StoreDriver,
		"window_minutes", cfg.WindowMinutes,
		"market_timezone", cfg.MarketTimezone,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// unreachable store at startup is fatal
	store, err := baseline.OpenSQL(ctx, cfg.StoreDriver, cfg.StoreDSN)
	if err != nil {
		logger.Error("failed to open baseline store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	client, err := newRedisClient(ctx, cfg.RedisURL, cfg.RedisPassword)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := instrumentation.NewMetrics(reg)

	pl, quality, baselines := buildPipeline(cfg, store, client, logger, m)

	api := handlers.NewAPI(pl.Signals, quality, baselines, logger)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      api.Router(cfg.RequestTimeout, reg),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http_server_listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_server_failed", "error", err)
			cancel()
		}
	}()

	handler := func(ctx context.Context, ev models.BookEvent, _ string) error {
		pl.HandleEvent(ctx, ev)
		return nil
	}
	consumerName := cfg.ConsumerName
	if consumerName == "" {
		consumerName = fmt.Sprintf("optionflow-%s", os.Getenv("HOSTNAME"))
	}
	cons, err := consumer.New(ctx, client, consumer.Config{
		StreamKey:     cfg.StreamKey,
		ConsumerGroup: cfg.ConsumerGroup,
		ConsumerName:  consumerName,
		BatchSize:     cfg.ConsumerBatch,
	}, handler, logger, m)
	if err != nil {
		logger.Error("failed to create consumer", "error", err)
		os.Exit(1)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pl.Run(ctx)
	}()

	errChan := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := cons.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errChan <- err
		}
	}()

	logger.Info("optionflow_running", "status", "healthy")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("shutdown_signal_received", "signal", sig.String())
	case err := <-errChan:
		logger.Error("consumer_error", "error", err)
	case <-ctx.Done():
	}
	cancel()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	signals := pl.Flush(shutdownCtx)
	logger.Info("open_windows_flushed", "signals", len(signals))

	pl.PersistHistory(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_server_shutdown_error", "error", err)
	}

	logger.Info("optionflow_stopped")
}

func buildPipeline(cfg *config.Config, store baseline.Store, client *redis.Client, logger *slog.Logger, m *instrumentation.Metrics) (*pipeline.Pipeline, *metrics.MarketQualityAssessor, *baseline.Service) {
	clock := cache.SystemClock{}

	patternCfg := metrics.DefaultQuotePatternConfig()
	patternCfg.MMThreshold = cfg.MMProbabilityThreshold
	patternCfg.MinUpdates = cfg.QuoteBatchSize

	qualityCfg := metrics.DefaultQualityConfig()
	qualityCfg.ClassificationWindow = cfg.QuoteWindow
	qualityCfg.BatchSize = cfg.QuoteBatchSize
	quality := metrics.NewMarketQualityAssessor(qualityCfg, metrics.NewQuotePatternAnalyzer(patternCfg))

	anomalyCfg := metrics.DefaultAnomalyConfig()
	anomalyCfg.ZThreshold = cfg.AnomalyZThreshold
	anomalyCfg.ExtremeZThreshold = cfg.AnomalyExtremeZThreshold

	proc := processor.New(processor.Config{PriceTolerance: cfg.Tolerance},
		contract.NewResolver(nil), book.New(), quality, logger, m)

	agg := aggregator.New(aggregator.Config{
		Window:         cfg.Window,
		GracePeriod:    cfg.GracePeriod,
		LargeTradeSize: cfg.LargeTradeSize,
	}, clock, logger, m)

	baselines := baseline.NewService(baseline.ServiceConfig{
		LookbackDays: cfg.LookbackDays,
		MinSamples:   cfg.MinHistoricalSamples,
		CacheTTL:     cfg.BaselineTTL,
	}, store, clock, logger, m)

	pub := publisher.NewRedisPublisher(client, publisher.Config{
		TTL:          cfg.SignalTTL,
		Stream:       cfg.SignalStream,
		StreamMaxLen: cfg.SignalStreamLen,
	}, logger)

	pl := pipeline.New(pipeline.Config{
		MMParticipationCeiling: cfg.MMParticipationCeiling,
		ExpiryInterval:         cfg.FlushInterval,
		BaselineJobInterval:    cfg.BaselineJob,
	}, pipeline.Deps{
		Processor:  proc,
		Aggregator: agg,
		Quality:    quality,
		Detector:   metrics.NewAnomalyDetector(anomalyCfg),
		Baselines:  baselines,
		Summarizer: baseline.NewSummarizer(cfg.Location, cfg.BucketSize),
		Publisher:  pub,
		Clock:      clock,
		Logger:     logger,
		Metrics:    m,
	})
	return pl, quality, baselines
}

func newRedisClient(ctx context.Context, url, password string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if password != "" {
		opts.Password = password
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}
