package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Docker        DockerConfig        `mapstructure:"docker"`
	Coordinator   CoordinatorConfig   `mapstructure:"coordinator"`
	Agent         AgentConfig         `mapstructure:"agent"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Security      SecurityConfig      `mapstructure:"security"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	PostgreSQL PostgreSQLConfig `mapstructure:"postgresql"`
}

// PostgreSQLConfig for roster / battle-session state
type PostgreSQLConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// DockerConfig for infrastructure integration
type DockerConfig struct {
	RabbitMQ   RabbitMQConfig   `mapstructure:"rabbitmq"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// RabbitMQConfig for battle lifecycle event messaging
type RabbitMQConfig struct {
	Host              string `mapstructure:"host"`
	Port              int    `mapstructure:"port"`
	User              string `mapstructure:"user"`
	Password          string `mapstructure:"password"`
	Exchange          string `mapstructure:"exchange"`
	PublisherConfirms bool   `mapstructure:"publisher_confirms"`
}

// RedisConfig for caching the live aggregate report and roster
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Enabled  bool   `mapstructure:"enabled"`
}

// TelegramConfig for battle-completion notifications
type TelegramConfig struct {
	Token  string `mapstructure:"token"`
	ChatID string `mapstructure:"chat_id"`
}

// PrometheusConfig for metrics
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// CoordinatorConfig for coordinator-specific settings (spec.md §6)
type CoordinatorConfig struct {
	Port               int    `mapstructure:"port"`
	Host               string `mapstructure:"host"`
	LogFile            string `mapstructure:"log_file"`
	GRPCPort           int    `mapstructure:"grpc_port"`
	SweepInterval      int    `mapstructure:"sweep_interval_seconds"`
	CompletionGrace    int    `mapstructure:"completion_grace_seconds"`
	OutboxPollInterval int    `mapstructure:"outbox_poll_interval_seconds"`
	ShutdownTimeout    int    `mapstructure:"shutdown_timeout_seconds"`
}

// AgentConfig for agent-specific settings (spec.md §6)
type AgentConfig struct {
	Port             int    `mapstructure:"port"`
	Host             string `mapstructure:"host"`
	HiveURL          string `mapstructure:"hive_url"`
	WwbToken         string `mapstructure:"wwb_token"`
	HeartbeatInterval int   `mapstructure:"heartbeat_interval_seconds"`
}

// ObservabilityConfig for logging and tracing
type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	LogFormat      string `mapstructure:"log_format"` // json or console
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
}

// SecurityConfig for authentication and rate limiting
type SecurityConfig struct {
	EnableMTLS      bool            `mapstructure:"enable_mtls"`
	CertFile        string          `mapstructure:"cert_file"`
	KeyFile         string          `mapstructure:"key_file"`
	CAFile          string          `mapstructure:"ca_file"`
	TokenSecretPath string          `mapstructure:"token_secret_path"`
	AdminAuthSecret string          `mapstructure:"admin_auth_secret"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig controls per-client request throttling
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`
}

// LoadConfig loads configuration from file and environment
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigName("hive")
	v.SetConfigType("yaml")

	homeDir, _ := os.UserHomeDir()
	v.AddConfigPath(filepath.Join(homeDir, ".config", "hive"))
	v.AddConfigPath("/etc/hive")
	v.AddConfigPath(".")

	v.SetEnvPrefix("HIVE")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.postgresql.host", "localhost")
	v.SetDefault("database.postgresql.port", 5432)
	v.SetDefault("database.postgresql.database", "hive_state")
	v.SetDefault("database.postgresql.user", "hive")
	v.SetDefault("database.postgresql.sslmode", "prefer")
	v.SetDefault("database.postgresql.max_conns", 25)
	v.SetDefault("database.postgresql.min_conns", 5)

	v.SetDefault("docker.rabbitmq.host", "localhost")
	v.SetDefault("docker.rabbitmq.port", 5672)
	v.SetDefault("docker.rabbitmq.user", "guest")
	v.SetDefault("docker.rabbitmq.password", "guest")
	v.SetDefault("docker.rabbitmq.exchange", "hive.events")
	v.SetDefault("docker.rabbitmq.publisher_confirms", true)

	v.SetDefault("docker.redis.host", "localhost")
	v.SetDefault("docker.redis.port", 6379)
	v.SetDefault("docker.redis.db", 0)
	v.SetDefault("docker.redis.enabled", true)

	v.SetDefault("docker.telegram.token", "")
	v.SetDefault("docker.telegram.chat_id", "")

	v.SetDefault("docker.prometheus.enabled", true)
	v.SetDefault("docker.prometheus.port", 9091)
	v.SetDefault("docker.prometheus.path", "/metrics")

	v.SetDefault("coordinator.port", 4269)
	v.SetDefault("coordinator.host", "0.0.0.0")
	v.SetDefault("coordinator.log_file", "")
	v.SetDefault("coordinator.grpc_port", 50051)
	v.SetDefault("coordinator.sweep_interval_seconds", 30)
	v.SetDefault("coordinator.completion_grace_seconds", 3)
	v.SetDefault("coordinator.outbox_poll_interval_seconds", 2)
	v.SetDefault("coordinator.shutdown_timeout_seconds", 30)

	v.SetDefault("agent.port", 3000)
	v.SetDefault("agent.host", "0.0.0.0")
	v.SetDefault("agent.hive_url", "")
	v.SetDefault("agent.wwb_token", "")
	v.SetDefault("agent.heartbeat_interval_seconds", 5)

	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_format", "json")
	v.SetDefault("observability.tracing_enabled", false)

	v.SetDefault("security.enable_mtls", false)
	v.SetDefault("security.admin_auth_secret", "") // empty = admin auth disabled
	v.SetDefault("security.rate_limit.requests_per_minute", 300)
	v.SetDefault("security.rate_limit.burst", 50)
}

// GetConnectionString returns PostgreSQL connection string
func (c *PostgreSQLConfig) GetConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
		c.SSLMode,
	)
}
