// Package config loads service settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

type Config struct {
	ServiceName string `yaml:"service_name"`
	Env         string `yaml:"env"`
	HTTPAddr    string `yaml:"http_addr"`
	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"`

	StoreDriver  string        `yaml:"store_driver"`
	DatabaseURL  string        `yaml:"database_url"`
	TxTimeout    time.Duration `yaml:"tx_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	TxMaxRetries int           `yaml:"tx_max_retries"`
	SeedDemoData bool          `yaml:"seed_demo_data"`

	OutboxPollInterval time.Duration `yaml:"outbox_poll_interval"`
	OutboxBatchSize    int           `yaml:"outbox_batch_size"`
	KafkaBrokers       string        `yaml:"kafka_brokers"`
	KafkaTopicPrefix   string        `yaml:"kafka_topic_prefix"`

	RedisAddr      string  `yaml:"redis_addr"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`

	OTLPEndpoint    string  `yaml:"otlp_endpoint"`
	TraceSampleRate float64 `yaml:"trace_sample_rate"`

	LowStockThreshold int `yaml:"low_stock_threshold"`
}

func Default() Config {
	return Config{
		ServiceName:        "minishop-checkout",
		Env:                "dev",
		HTTPAddr:           ":8080",
		LogLevel:           "info",
		StoreDriver:        DriverMemory,
		TxTimeout:          5 * time.Second,
		ReadTimeout:        3 * time.Second,
		TxMaxRetries:       3,
		SeedDemoData:       true,
		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		KafkaTopicPrefix:   "minishop",
		RateLimitRPS:       20,
		RateLimitBurst:     40,
		TraceSampleRate:    1,
		LowStockThreshold:  3,
	}
}

// Load builds the configuration from defaults, the YAML file named by
// CONFIG_FILE (if any) and the environment, then validates it.
func Load() (*Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if path, ok := lookup("CONFIG_FILE"); ok && path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.mergeEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %q: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv(lookup func(string) (string, bool)) error {
	e := envReader{lookup: lookup}
	e.str("SERVICE_NAME", &c.ServiceName)
	e.str("ENV", &c.Env)
	e.str("HTTP_ADDR", &c.HTTPAddr)
	e.str("LOG_LEVEL", &c.LogLevel)
	e.str("LOG_FILE", &c.LogFile)
	e.str("STORE_DRIVER", &c.StoreDriver)
	e.str("DATABASE_URL", &c.DatabaseURL)
	e.duration("TX_TIMEOUT", &c.TxTimeout)
	e.duration("READ_TIMEOUT", &c.ReadTimeout)
	e.integer("TX_MAX_RETRIES", &c.TxMaxRetries)
	e.boolean("SEED_DEMO_DATA", &c.SeedDemoData)
	e.duration("OUTBOX_POLL_INTERVAL", &c.OutboxPollInterval)
	e.integer("OUTBOX_BATCH_SIZE", &c.OutboxBatchSize)
	e.str("KAFKA_BROKERS", &c.KafkaBrokers)
	e.str("KAFKA_TOPIC_PREFIX", &c.KafkaTopicPrefix)
	e.str("REDIS_ADDR", &c.RedisAddr)
	e.float("RATE_LIMIT_RPS", &c.RateLimitRPS)
	e.integer("RATE_LIMIT_BURST", &c.RateLimitBurst)
	e.str("OTLP_ENDPOINT", &c.OTLPEndpoint)
	e.float("TRACE_SAMPLE_RATE", &c.TraceSampleRate)
	e.integer("LOW_STOCK_THRESHOLD", &c.LowStockThreshold)
	return errors.Join(e.errs...)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ServiceName) == "" {
		errs = append(errs, errors.New("SERVICE_NAME must not be empty"))
	}
	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("HTTP_ADDR must not be empty"))
	}
	switch c.StoreDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORE_DRIVER=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverMemory, DriverPostgres, c.StoreDriver))
	}
	if c.TxTimeout <= 0 {
		errs = append(errs, errors.New("TX_TIMEOUT must be positive"))
	}
	if c.ReadTimeout <= 0 {
		errs = append(errs, errors.New("READ_TIMEOUT must be positive"))
	}
	if c.TxMaxRetries < 0 {
		errs = append(errs, errors.New("TX_MAX_RETRIES must not be negative"))
	}
	if c.OutboxPollInterval <= 0 {
		errs = append(errs, errors.New("OUTBOX_POLL_INTERVAL must be positive"))
	}
	if c.OutboxBatchSize <= 0 {
		errs = append(errs, errors.New("OUTBOX_BATCH_SIZE must be positive"))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS must not be negative"))
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		errs = append(errs, errors.New("RATE_LIMIT_BURST must be at least 1 when rate limiting is on"))
	}
	if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 {
		errs = append(errs, errors.New("TRACE_SAMPLE_RATE must be within [0, 1]"))
	}
	if c.LowStockThreshold < 0 {
		errs = append(errs, errors.New("LOW_STOCK_THRESHOLD must not be negative"))
	}
	return errors.Join(errs...)
}

// RateLimitEnabled reports whether mutating routes are throttled.
func (c *Config) RateLimitEnabled() bool { return c.RateLimitRPS > 0 }

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}
}

func (e *envReader) integer(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
}

func (e *envReader) float(key string, dst *float64) {
	if v, ok := e.get(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = f
	}
}

func (e *envReader) boolean(key string, dst *bool) {
	if v, ok := e.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}
}
