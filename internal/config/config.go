package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"

	"optionflow/internal/baseline"
)

// Config holds the optionflow service configuration.
type Config struct {
	// Redis
	RedisURL        string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
	RedisPassword   string `env:"REDIS_PASSWORD"`
	StreamKey       string `env:"STREAM_KEY" envDefault:"mbo:options"`
	ConsumerGroup   string `env:"CONSUMER_GROUP" envDefault:"optionflow"`
	ConsumerName    string `env:"CONSUMER_NAME"`
	ConsumerBatch   int64  `env:"CONSUMER_BATCH_SIZE" envDefault:"100"`
	SignalStream    string `env:"SIGNAL_STREAM" envDefault:"optionflow:signals"`
	SignalStreamLen int64  `env:"SIGNAL_STREAM_MAXLEN" envDefault:"10000"`
	SignalTTLSec    int    `env:"SIGNAL_TTL_SEC" envDefault:"900"`

	// Baseline store
	StoreDriver string `env:"STORE_DRIVER" envDefault:"sqlite"`
	StoreDSN    string `env:"STORE_DSN" envDefault:"data/baselines.db"`

	// Windows and baselines
	WindowMinutes         int    `env:"WINDOW_MINUTES" envDefault:"5"`
	GracePeriodSec        int    `env:"GRACE_PERIOD_SECONDS" envDefault:"30"`
	LargeTradeSize        int64  `env:"LARGE_TRADE_SIZE" envDefault:"50"`
	LookbackDays          int    `env:"LOOKBACK_DAYS" envDefault:"20"`
	MinHistoricalSamples  int    `env:"MIN_HISTORICAL_SAMPLES_PER_BUCKET" envDefault:"5"`
	BaselineCacheTTLHours int    `env:"BASELINE_CACHE_TTL_HOURS" envDefault:"6"`
	BucketMinutes         int    `env:"BUCKET_MINUTES" envDefault:"30"`
	MarketTimezone        string `env:"MARKET_TIMEZONE" envDefault:"America/New_York"`
	PriceMatchTolerance   string `env:"PRICE_MATCH_TOLERANCE" envDefault:"0.01"`
	FlushIntervalSec      int    `env:"FLUSH_INTERVAL_SEC" envDefault:"5"`
	BaselineJobMinutes    int    `env:"BASELINE_JOB_MINUTES" envDefault:"60"`

	// Anomaly and market making
	AnomalyZThreshold        float64 `env:"ANOMALY_Z_THRESHOLD" envDefault:"2.0"`
	AnomalyExtremeZThreshold float64 `env:"ANOMALY_EXTREME_Z_THRESHOLD" envDefault:"3.0"`
	MMProbabilityThreshold   float64 `env:"MM_PROBABILITY_THRESHOLD" envDefault:"0.7"`
	MMParticipationCeiling   float64 `env:"MM_PARTICIPATION_CEILING" envDefault:"0.6"`
	QuoteWindowSec           int     `env:"QUOTE_WINDOW_SEC" envDefault:"30"`
	QuoteBatchSize           int     `env:"QUOTE_BATCH_SIZE" envDefault:"20"`

	// HTTP
	HTTPPort         int `env:"HTTP_PORT" envDefault:"8080"`
	RequestTimeoutMS int `env:"REQUEST_TIMEOUT_MS" envDefault:"500"`

	// Observability
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string `env:"LOG_FORMAT" envDefault:"json"`
	LogFile       string `env:"LOG_FILE"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"100"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"5"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"7"`

	// Computed (not from env)
	Window         time.Duration   `env:"-"`
	GracePeriod    time.Duration   `env:"-"`
	BaselineTTL    time.Duration   `env:"-"`
	BucketSize     time.Duration   `env:"-"`
	SignalTTL      time.Duration   `env:"-"`
	FlushInterval  time.Duration   `env:"-"`
	BaselineJob    time.Duration   `env:"-"`
	QuoteWindow    time.Duration   `env:"-"`
	RequestTimeout time.Duration   `env:"-"`
	Tolerance      decimal.Decimal `env:"-"`
	Location       *time.Location  `env:"-"`
}

// LoadFromEnv loads configuration from environment variables and computes
// the derived fields.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}
	if err := cfg.derive(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) derive() error {
	c.Window = time.Duration(c.WindowMinutes) * time.Minute
	c.GracePeriod = time.Duration(c.GracePeriodSec) * time.Second
	c.BaselineTTL = time.Duration(c.BaselineCacheTTLHours) * time.Hour
	c.BucketSize = time.Duration(c.BucketMinutes) * time.Minute
	c.SignalTTL = time.Duration(c.SignalTTLSec) * time.Second
	c.FlushInterval = time.Duration(c.FlushIntervalSec) * time.Second
	c.BaselineJob = time.Duration(c.BaselineJobMinutes) * time.Minute
	c.QuoteWindow = time.Duration(c.QuoteWindowSec) * time.Second
	c.RequestTimeout = time.Duration(c.RequestTimeoutMS) * time.Millisecond

	tol, err := decimal.NewFromString(c.PriceMatchTolerance)
	if err != nil {
		return fmt.Errorf("invalid PRICE_MATCH_TOLERANCE %q: %w", c.PriceMatchTolerance, err)
	}
	c.Tolerance = tol

	loc, err := time.LoadLocation(c.MarketTimezone)
	if err != nil {
		return fmt.Errorf("invalid MARKET_TIMEZONE %q: %w", c.MarketTimezone, err)
	}
	c.Location = loc
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("invalid log format: %s", c.LogFormat)
	}

	if c.StoreDriver != baseline.DriverSQLite && c.StoreDriver != baseline.DriverPostgres {
		return fmt.Errorf("store driver must be %q or %q, got %q", baseline.DriverSQLite, baseline.DriverPostgres, c.StoreDriver)
	}
	if c.StoreDSN == "" {
		return fmt.Errorf("store DSN is required")
	}

	if c.WindowMinutes <= 0 || (24*60)%c.WindowMinutes != 0 {
		return fmt.Errorf("window minutes must divide a day, got %d", c.WindowMinutes)
	}
	if c.BucketMinutes <= 0 || (24*60)%c.BucketMinutes != 0 {
		return fmt.Errorf("bucket minutes must divide a day, got %d", c.BucketMinutes)
	}
	if c.GracePeriodSec < 0 {
		return fmt.Errorf("grace period must not be negative")
	}
	if c.LookbackDays <= 0 || c.MinHistoricalSamples <= 0 {
		return fmt.Errorf("lookback days and min samples must be positive")
	}
	if c.MinHistoricalSamples > c.LookbackDays {
		return fmt.Errorf("min samples %d exceeds lookback days %d", c.MinHistoricalSamples, c.LookbackDays)
	}
	if c.BaselineTTL <= 0 {
		return fmt.Errorf("baseline cache TTL must be positive")
	}
	if !c.Tolerance.IsPositive() {
		return fmt.Errorf("price match tolerance must be positive")
	}

	if c.AnomalyZThreshold <= 0 || c.AnomalyExtremeZThreshold < c.AnomalyZThreshold {
		return fmt.Errorf("anomaly thresholds must satisfy 0 < z <= extreme z")
	}
	if c.MMProbabilityThreshold <= 0 || c.MMProbabilityThreshold > 1 {
		return fmt.Errorf("mm probability threshold must be in (0, 1]")
	}
	if c.MMParticipationCeiling < 0 || c.MMParticipationCeiling > 1 {
		return fmt.Errorf("mm participation ceiling must be in [0, 1]")
	}
	if c.QuoteBatchSize <= 0 || c.QuoteWindow <= 0 {
		return fmt.Errorf("quote batch size and window must be positive")
	}

	if c.FlushInterval < time.Second || c.BaselineJob < time.Minute {
		return fmt.Errorf("flush interval must be >= 1s and baseline job >= 1m")
	}
	if c.SignalTTL < time.Second {
		return fmt.Errorf("signal TTL must be at least 1 second")
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	return nil
}
