// Package config loads engine settings from the environment, an optional
// .env file and an optional YAML tuning file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"signalengine/internal/signalgen"
)

// DefaultSymbols are the provider symbols streamed when SYMBOLS is unset.
const DefaultSymbols = "EUR/USD,GBP/USD,USD/JPY,USD/CHF,AUD/USD,USD/CAD,NZD/USD,EUR/GBP,EUR/JPY,GBP/JPY,BTC/USD,ETH/USD"

// Config holds all application configuration.
type Config struct {
	// Provider
	ProviderWSURL   string
	ProviderRESTURL string
	ProviderAPIKey  string
	Symbols         []string

	// Ingestion
	SubscribeBatchSize    int
	SubscribeBatchDelay   time.Duration
	KeepAliveInterval     time.Duration
	ReconnectDelay        time.Duration
	MaxReconnectDelay     time.Duration
	MaxReconnectAttempts  int
	FallbackPollInterval  time.Duration
	HealthCheckInterval   time.Duration
	FallbackRetryInterval time.Duration

	// Analysis
	AnalysisInterval time.Duration
	AnalysisWorkers  int
	TopN             int
	RNGSeed          int64
	TuningFile       string
	Signal           signalgen.Config

	// Infrastructure
	RedisAddr      string
	RedisPassword  string
	MetricsAddr    string
	APIAddr        string
	LogLevel       string
	LogFile        string
	TracingEnabled bool

	// Alerts
	TelegramBotToken   string
	TelegramChatID     string
	AlertWebhookURL    string
	AlertMinConfidence float64
}

// Load reads configuration from environment variables with sensible
// defaults. A .env file in the working directory is loaded first when
// present; real environment variables win over it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("[config] .env not loaded", slog.String("error", err.Error()))
	}

	wsURL, err := mustEnv("PROVIDER_WS_URL")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ProviderWSURL:   wsURL,
		ProviderRESTURL: getEnv("PROVIDER_REST_URL", ""),
		ProviderAPIKey:  getEnv("PROVIDER_API_KEY", ""),
		Symbols:         ParseSymbols(getEnv("SYMBOLS", DefaultSymbols)),

		SubscribeBatchSize:    getInt("SUBSCRIBE_BATCH_SIZE", 8),
		SubscribeBatchDelay:   getDuration("SUBSCRIBE_BATCH_DELAY", 250*time.Millisecond),
		KeepAliveInterval:     getDuration("KEEPALIVE_INTERVAL", 10*time.Second),
		ReconnectDelay:        getDuration("RECONNECT_DELAY", time.Second),
		MaxReconnectDelay:     getDuration("MAX_RECONNECT_DELAY", 30*time.Second),
		MaxReconnectAttempts:  getInt("MAX_RECONNECT_ATTEMPTS", 5),
		FallbackPollInterval:  getDuration("FALLBACK_POLL_INTERVAL", 15*time.Second),
		HealthCheckInterval:   getDuration("HEALTH_CHECK_INTERVAL", 30*time.Second),
		FallbackRetryInterval: getDuration("FALLBACK_RETRY_INTERVAL", 2*time.Minute),

		AnalysisInterval: getDuration("ANALYSIS_INTERVAL", 30*time.Second),
		AnalysisWorkers:  getInt("ANALYSIS_WORKERS", 4),
		TopN:             getInt("TOP_N", 5),
		RNGSeed:          int64(getInt("RNG_SEED", 0)),
		TuningFile:       getEnv("SIGNAL_TUNING_FILE", ""),
		Signal:           signalgen.DefaultConfig(),

		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		MetricsAddr:    getEnv("METRICS_ADDR", ":9090"),
		APIAddr:        getEnv("API_ADDR", ":8080"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFile:        getEnv("LOG_FILE", ""),
		TracingEnabled: getBool("TRACING_ENABLED", false),

		TelegramBotToken:   getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:     getEnv("TELEGRAM_CHAT_ID", ""),
		AlertWebhookURL:    getEnv("ALERT_WEBHOOK_URL", ""),
		AlertMinConfidence: getFloat("ALERT_MIN_CONFIDENCE", 75),
	}

	if len(cfg.Symbols) == 0 {
		return nil, errors.New("config: SYMBOLS is empty")
	}

	if cfg.TuningFile != "" {
		sc, err := LoadTuning(cfg.TuningFile, cfg.Signal)
		if err != nil {
			return nil, err
		}
		cfg.Signal = sc
	}
	return cfg, nil
}

// LoadTuning overlays a YAML file on base. Keys absent from the file keep
// their base value; a timeframes list replaces the whole table.
func LoadTuning(path string, base signalgen.Config) (signalgen.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("config: read tuning file: %w", err)
	}
	out := base
	out.Timeframes = nil
	if err := yaml.Unmarshal(data, &out); err != nil {
		return base, fmt.Errorf("config: parse tuning file %s: %w", path, err)
	}
	if out.Timeframes == nil {
		out.Timeframes = base.Timeframes
	}
	if err := out.Validate(); err != nil {
		return base, fmt.Errorf("config: tuning file %s: %w", path, err)
	}
	return out, nil
}

// ParseSymbols splits a comma list, trimming blanks and duplicates.
func ParseSymbols(s string) []string {
	parts := strings.Split(s, ",")
	seen := make(map[string]bool, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func mustEnv(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("config: required env var %s not set", key)
	}
	return v, nil
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("[config] invalid duration, using default",
			slog.String("key", key), slog.String("value", v), slog.Duration("default", fallback))
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		slog.Warn("[config] invalid integer, using default",
			slog.String("key", key), slog.String("value", v), slog.Int("default", fallback))
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("[config] invalid number, using default",
			slog.String("key", key), slog.String("value", v), slog.Float64("default", fallback))
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("[config] invalid boolean, using default",
			slog.String("key", key), slog.String("value", v), slog.Bool("default", fallback))
		return fallback
	}
	return b
}
