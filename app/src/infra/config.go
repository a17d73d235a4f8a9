package infra

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPPort    string `mapstructure:"http_port"`
	GRPCPort    string `mapstructure:"grpc_port"`
	MetricsPort string `mapstructure:"metrics_port"`

	DatabaseDriver   string `mapstructure:"db_driver"`
	DatabaseDSN      string `mapstructure:"db_dsn"`
	DatabaseHost     string `mapstructure:"db_host"`
	DatabasePort     string `mapstructure:"db_port"`
	DatabaseUser     string `mapstructure:"db_user"`
	DatabasePassword string `mapstructure:"db_password"`
	DatabaseName     string `mapstructure:"db_name"`
	MigrationsDir    string `mapstructure:"migrations_dir"`

	StoreTimeout time.Duration `mapstructure:"store_timeout"`

	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	CacheCapacity int           `mapstructure:"cache_capacity"`

	QueueCapacity int  `mapstructure:"queue_capacity"`
	QueueFailFast bool `mapstructure:"queue_fail_fast"`

	MetricsInterval     time.Duration `mapstructure:"metrics_interval"`
	StalenessWindow     time.Duration `mapstructure:"staleness_window"`
	ViewRefreshInterval time.Duration `mapstructure:"view_refresh_interval"`
	ShutdownTimeout     time.Duration `mapstructure:"shutdown_timeout"`

	MQTTBroker   string `mapstructure:"mqtt_broker"`
	MQTTTopic    string `mapstructure:"mqtt_topic"`
	MQTTClientID string `mapstructure:"mqtt_client_id"`
	MQTTUsername string `mapstructure:"mqtt_username"`
	MQTTPassword string `mapstructure:"mqtt_password"`
	MQTTQoS      int    `mapstructure:"mqtt_qos"`

	SimulatorEnabled  bool          `mapstructure:"simulator_enabled"`
	SimulatorInterval time.Duration `mapstructure:"simulator_interval"`
	SimulatorTargets  string        `mapstructure:"simulator_targets"`

	LogLevel string `mapstructure:"log_level"`
}

var defaults = map[string]any{
	"http_port":             "65534",
	"grpc_port":             "50051",
	"metrics_port":          "",
	"db_driver":             "postgres",
	"db_dsn":                "",
	"db_host":               "",
	"db_port":               "",
	"db_user":               "",
	"db_password":           "",
	"db_name":               "",
	"migrations_dir":        "app/resources/db/migrations",
	"store_timeout":         5 * time.Second,
	"cache_ttl":             60 * time.Second,
	"cache_capacity":        128,
	"queue_capacity":        8192,
	"queue_fail_fast":       false,
	"metrics_interval":      10 * time.Second,
	"staleness_window":      300 * time.Second,
	"view_refresh_interval": 6000 * time.Second,
	"shutdown_timeout":      10 * time.Second,
	"mqtt_broker":           "",
	"mqtt_topic":            "hemrs/measurements",
	"mqtt_client_id":        "hemrs-ingest",
	"mqtt_username":         "",
	"mqtt_password":         "",
	"mqtt_qos":              1,
	"simulator_enabled":     false,
	"simulator_interval":    time.Second,
	"simulator_targets":     "1:1",
	"log_level":             "info",
}

// LoadConfig reads configuration from the environment and, when CONFIG_FILE
// points at one, a yaml/json/.env file. Environment variables win.
func LoadConfig() (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("db_dsn", "DB_DSN", "DATABASE_URL"); err != nil {
		return Config{}, fmt.Errorf("config: bind env: %w", err)
	}

	if err := v.BindEnv("config_file", "CONFIG_FILE"); err != nil {
		return Config{}, fmt.Errorf("config: bind env: %w", err)
	}
	if path := strings.TrimSpace(v.GetString("config_file")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the pipeline cannot run with.
func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.HTTPPort) == "" {
		problems = append(problems, "HTTP_PORT is required")
	}
	switch c.DatabaseDriver {
	case "postgres", "pgx":
	default:
		problems = append(problems, fmt.Sprintf("DB_DRIVER %q is not supported", c.DatabaseDriver))
	}
	if c.CacheCapacity <= 0 {
		problems = append(problems, "CACHE_CAPACITY must be positive")
	}
	if c.CacheTTL <= 0 {
		problems = append(problems, "CACHE_TTL must be positive")
	}
	if c.QueueCapacity <= 0 {
		problems = append(problems, "QUEUE_CAPACITY must be positive")
	}
	if c.MetricsInterval <= 0 || c.ViewRefreshInterval <= 0 {
		problems = append(problems, "task intervals must be positive")
	}
	if c.StalenessWindow <= 0 {
		problems = append(problems, "STALENESS_WINDOW must be positive")
	}
	if c.StoreTimeout <= 0 {
		problems = append(problems, "STORE_TIMEOUT must be positive")
	}
	if c.MQTTQoS < 0 || c.MQTTQoS > 2 {
		problems = append(problems, "MQTT_QOS must be 0, 1 or 2")
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func LogConfig(ctx context.Context, logger *Logger, cfg Config) {
	logger.Printf(ctx, "HTTP_PORT=%s", cfg.HTTPPort)
	logger.Printf(ctx, "GRPC_PORT=%s", orFallback(cfg.GRPCPort, "(disabled)"))
	logger.Printf(ctx, "METRICS_PORT=%s", orFallback(cfg.MetricsPort, "(served on HTTP_PORT)"))
	logger.Printf(ctx, "DB_DRIVER=%s", cfg.DatabaseDriver)
	if cfg.DatabaseDSN != "" {
		logger.Printf(ctx, "DB_DSN set (length %d)", len(cfg.DatabaseDSN))
	} else {
		logger.Println(ctx, "DB_DSN not provided")
	}
	logger.Printf(ctx, "DB_HOST=%s", orFallback(cfg.DatabaseHost, "(not set)"))
	logger.Printf(ctx, "DB_PORT=%s", orFallback(cfg.DatabasePort, "(not set)"))
	logger.Printf(ctx, "DB_USER=%s", orFallback(cfg.DatabaseUser, "(not set)"))
	if cfg.DatabasePassword != "" {
		logger.Println(ctx, "DB_PASSWORD set (redacted)")
	} else {
		logger.Println(ctx, "DB_PASSWORD not provided")
	}
	logger.Printf(ctx, "DB_NAME=%s", orFallback(cfg.DatabaseName, "(not set)"))
	logger.Printf(ctx, "MIGRATIONS_DIR=%s", cfg.MigrationsDir)
	logger.Printf(ctx, "STORE_TIMEOUT=%s", cfg.StoreTimeout)
	logger.Printf(ctx, "CACHE_TTL=%s CACHE_CAPACITY=%d", cfg.CacheTTL, cfg.CacheCapacity)
	logger.Printf(ctx, "QUEUE_CAPACITY=%d QUEUE_FAIL_FAST=%t", cfg.QueueCapacity, cfg.QueueFailFast)
	logger.Printf(ctx, "METRICS_INTERVAL=%s STALENESS_WINDOW=%s", cfg.MetricsInterval, cfg.StalenessWindow)
	logger.Printf(ctx, "VIEW_REFRESH_INTERVAL=%s", cfg.ViewRefreshInterval)
	logger.Printf(ctx, "SHUTDOWN_TIMEOUT=%s", cfg.ShutdownTimeout)
	logger.Printf(ctx, "MQTT_BROKER=%s", orFallback(cfg.MQTTBroker, "(disabled)"))
	if cfg.MQTTBroker != "" {
		logger.Printf(ctx, "MQTT_TOPIC=%s MQTT_CLIENT_ID=%s MQTT_QOS=%d", cfg.MQTTTopic, cfg.MQTTClientID, cfg.MQTTQoS)
		if cfg.MQTTPassword != "" {
			logger.Println(ctx, "MQTT_PASSWORD set (redacted)")
		}
	}
	logger.Printf(ctx, "SIMULATOR_ENABLED=%t", cfg.SimulatorEnabled)
	if cfg.SimulatorEnabled {
		logger.Printf(ctx, "SIMULATOR_INTERVAL=%s SIMULATOR_TARGETS=%s", cfg.SimulatorInterval, cfg.SimulatorTargets)
	}
	logger.Printf(ctx, "LOG_LEVEL=%s", cfg.LogLevel)
}

func orFallback(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
