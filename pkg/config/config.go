package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Quotes    QuotesConfig    `mapstructure:"quotes"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Processor ProcessorConfig `mapstructure:"processor"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Database  DatabaseConfig  `mapstructure:"database"`
	News      NewsConfig      `mapstructure:"news"`
	LLM       LLMConfig       `mapstructure:"llm"`
}

type AppConfig struct {
	Port        string   `mapstructure:"port"`
	Env         string   `mapstructure:"env"` // e.g., "local", "prod"
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`    // "json" or "console"
	FilePath   string `mapstructure:"file_path"` // empty disables file output
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// StreamConfig drives the price stream: scheduler cadence and per-connection limits.
type StreamConfig struct {
	Interval               time.Duration `mapstructure:"interval"`
	IdleInterval           time.Duration `mapstructure:"idle_interval"`
	BackoffInterval        time.Duration `mapstructure:"backoff_interval"`
	FetchTimeout           time.Duration `mapstructure:"fetch_timeout"`
	FetchConcurrency       int           `mapstructure:"fetch_concurrency"`
	BenchmarkSymbols       []string      `mapstructure:"benchmark_symbols"`
	EvictAfterSendFailures int           `mapstructure:"evict_after_send_failures"`

	SendBuffer     int           `mapstructure:"send_buffer"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

type QuotesConfig struct {
	Provider          string        `mapstructure:"provider"` // "yahoo" or "feed"
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	BreakerFailures   uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout    time.Duration `mapstructure:"breaker_timeout"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type ProcessorConfig struct {
	NumWorkers  int           `mapstructure:"num_workers"`
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl"`
}

type GeneratorConfig struct {
	Tickers    []string      `mapstructure:"tickers"`
	Interval   time.Duration `mapstructure:"interval"`
	Partitions int           `mapstructure:"partitions"`
}

type DatabaseConfig struct {
	URL      string `mapstructure:"url"` // empty disables the watchlist API
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

type NewsConfig struct {
	FeedURL  string        `mapstructure:"feed_url"`
	MaxItems int           `mapstructure:"max_items"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type LLMConfig struct {
	APIKey  string `mapstructure:"api_key"` // empty disables the chat API
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// DefaultBenchmarkSymbols are streamed to every client regardless of its subscriptions.
var DefaultBenchmarkSymbols = []string{"^NSEI", "^BSESN", "^NSEBANK", "^INDIAVIX"}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// Load .env into the process environment so APP_PORT etc. resolve as real env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	setDefaults(v)

	// "stream.interval" -> "STREAM_INTERVAL"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv alone does not reach nested keys during Unmarshal.
	bindEnv(v, v.AllKeys()...)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", ":8000")
	v.SetDefault("app.env", "local")
	v.SetDefault("app.cors_origins", []string{"*"})

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.file_path", "")
	v.SetDefault("logger.max_size_mb", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age_days", 14)

	v.SetDefault("stream.interval", 5*time.Second)
	v.SetDefault("stream.idle_interval", 5*time.Second)
	v.SetDefault("stream.backoff_interval", 10*time.Second)
	v.SetDefault("stream.fetch_timeout", 8*time.Second)
	v.SetDefault("stream.fetch_concurrency", 8)
	v.SetDefault("stream.benchmark_symbols", DefaultBenchmarkSymbols)
	v.SetDefault("stream.evict_after_send_failures", 0)
	v.SetDefault("stream.send_buffer", 64)
	v.SetDefault("stream.write_wait", 5*time.Second)
	v.SetDefault("stream.pong_wait", 60*time.Second)
	v.SetDefault("stream.ping_period", 50*time.Second)
	v.SetDefault("stream.max_message_size", 512*1024)

	v.SetDefault("quotes.provider", "yahoo")
	v.SetDefault("quotes.cache_ttl", 4*time.Second)
	v.SetDefault("quotes.requests_per_second", 10.0)
	v.SetDefault("quotes.burst", 5)
	v.SetDefault("quotes.breaker_failures", 5)
	v.SetDefault("quotes.breaker_timeout", 30*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "market_ticks")
	v.SetDefault("kafka.group_id", "stock-processor-group")

	v.SetDefault("processor.num_workers", 4)
	v.SetDefault("processor.snapshot_ttl", time.Hour)

	v.SetDefault("generator.tickers", append([]string{"RELIANCE.NS", "TCS.NS", "INFY.NS", "HDFCBANK.NS"}, DefaultBenchmarkSymbols...))
	v.SetDefault("generator.interval", 100*time.Millisecond)
	v.SetDefault("generator.partitions", 4)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)

	v.SetDefault("news.feed_url", "https://news.google.com/rss/search")
	v.SetDefault("news.max_items", 10)
	v.SetDefault("news.timeout", 10*time.Second)

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
}

// Validate rejects configurations the services cannot run with.
func (c *Config) Validate() error {
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers cannot be empty")
	}
	if c.Stream.Interval <= 0 || c.Stream.IdleInterval <= 0 || c.Stream.BackoffInterval <= 0 {
		return fmt.Errorf("stream intervals must be positive")
	}
	if c.Stream.FetchConcurrency < 1 {
		return fmt.Errorf("stream.fetch_concurrency must be at least 1, got %d", c.Stream.FetchConcurrency)
	}
	if c.Stream.EvictAfterSendFailures < 0 {
		return fmt.Errorf("stream.evict_after_send_failures cannot be negative")
	}
	switch c.Quotes.Provider {
	case "yahoo", "feed":
	default:
		return fmt.Errorf("unknown quotes provider %q", c.Quotes.Provider)
	}
	if c.Processor.NumWorkers < 1 {
		return fmt.Errorf("processor.num_workers must be at least 1")
	}
	return nil
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
