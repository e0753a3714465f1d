package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Drivers de almacenamiento soportados.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongoDB  = "mongodb"
)

type Config struct {
	HTTPPort string `mapstructure:"http_port"`
	LogLevel string `mapstructure:"log_level"`

	DBDriver      string `mapstructure:"db_driver"`
	SQLitePath    string `mapstructure:"sqlite_path"`
	DatabaseURL   string `mapstructure:"database_url"`
	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`

	// Sin REDIS_ADDR se usa la caché en memoria.
	RedisAddr string        `mapstructure:"redis_addr"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`

	UseKafka     bool     `mapstructure:"use_kafka"`
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`
	KafkaGroupID string   `mapstructure:"kafka_group_id"`

	OutboxPeriod time.Duration `mapstructure:"outbox_period"`
	OutboxLimit  int           `mapstructure:"outbox_limit"`

	// Sin CLICKHOUSE_ADDR la analítica queda desactivada.
	ClickHouseAddr       string        `mapstructure:"clickhouse_addr"`
	ClickHouseDatabase   string        `mapstructure:"clickhouse_database"`
	AnalyticsBatchSize   int           `mapstructure:"analytics_batch_size"`
	AnalyticsFlushPeriod time.Duration `mapstructure:"analytics_flush_period"`

	CursorSecret     string        `mapstructure:"cursor_secret"`
	CursorMaxAge     time.Duration `mapstructure:"cursor_max_age"`
	PageDefaultLimit int           `mapstructure:"page_default_limit"`
	PageMaxLimit     int           `mapstructure:"page_max_limit"`

	RateLimitWindow            time.Duration `mapstructure:"rate_limit_window"`
	RateLimitMaxRequests       int           `mapstructure:"rate_limit_max_requests"`
	RateLimitSearchMaxRequests int           `mapstructure:"rate_limit_search_max_requests"`
}

var defaults = map[string]any{
	"http_port":                      "8080",
	"log_level":                      "info",
	"db_driver":                      DriverSQLite,
	"sqlite_path":                    "./hexabooks.db",
	"database_url":                   "",
	"mongo_uri":                      "mongodb://localhost:27017",
	"mongo_database":                 "hexabooks",
	"redis_addr":                     "",
	"cache_ttl":                      5 * time.Minute,
	"use_kafka":                      false,
	"kafka_brokers":                  []string{"localhost:9092"},
	"kafka_topic":                    "book-events",
	"kafka_group_id":                 "hexabooks-analytics",
	"outbox_period":                  time.Second,
	"outbox_limit":                   10,
	"clickhouse_addr":                "",
	"clickhouse_database":            "default",
	"analytics_batch_size":           100,
	"analytics_flush_period":         5 * time.Second,
	"cursor_secret":                  "",
	"cursor_max_age":                 24 * time.Hour,
	"page_default_limit":             10,
	"page_max_limit":                 100,
	"rate_limit_window":              15 * time.Minute,
	"rate_limit_max_requests":        100,
	"rate_limit_search_max_requests": 30,
}

// Load aplica, por este orden de precedencia: variables de entorno, fichero (opcional) y valores por defecto.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	// HTTP_PORT -> http_port, etc.
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate comprueba la coherencia de la configuración.
func (c *Config) Validate() error {
	var errs []error

	switch c.DBDriver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	case DriverMongoDB:
		if c.MongoURI == "" || c.MongoDatabase == "" {
			errs = append(errs, errors.New("MONGO_URI and MONGO_DATABASE are required for the mongodb driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver))
	}

	if c.UseKafka && len(c.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required when USE_KAFKA is enabled"))
	}
	if c.OutboxPeriod <= 0 || c.OutboxLimit <= 0 {
		errs = append(errs, errors.New("OUTBOX_PERIOD and OUTBOX_LIMIT must be positive"))
	}
	if c.CursorMaxAge <= 0 {
		errs = append(errs, errors.New("CURSOR_MAX_AGE must be positive"))
	}
	if c.PageDefaultLimit <= 0 || c.PageMaxLimit < c.PageDefaultLimit {
		errs = append(errs, errors.New("PAGE_DEFAULT_LIMIT must be positive and not greater than PAGE_MAX_LIMIT"))
	}
	if c.RateLimitWindow <= 0 || c.RateLimitMaxRequests <= 0 || c.RateLimitSearchMaxRequests <= 0 {
		errs = append(errs, errors.New("rate limit window and maximums must be positive"))
	}

	return errors.Join(errs...)
}

// splitList admite tanto listas YAML como "a,b" en una sola cadena.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
