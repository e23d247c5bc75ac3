package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Upstream   UpstreamConfig   `mapstructure:"upstream"`
	Resilience ResilienceConfig `mapstructure:"resilience"`
	Routing    RoutingConfig    `mapstructure:"routing"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	CORS       CORSConfig       `mapstructure:"cors"`
}

type ServerConfig struct {
	Port             int           `mapstructure:"port"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	GracefulShutdown time.Duration `mapstructure:"graceful_shutdown"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MaxIdleConns    int           `mapstructure:"max_idle_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	PricingTTL time.Duration `mapstructure:"pricing_ttl"`
}

// UpstreamConfig describes the OpenAI-compatible endpoint every model id
// resolves against.
type UpstreamConfig struct {
	APIKey             string        `mapstructure:"api_key"`
	BaseURL            string        `mapstructure:"base_url"`
	Timeout            time.Duration `mapstructure:"timeout"`
	HealthCheckTimeout time.Duration `mapstructure:"health_check_timeout"`
	MaxConnsPerServer  int           `mapstructure:"max_connections_per_server"`
	ConnLifetime       time.Duration `mapstructure:"connection_lifetime"`
	UseHTTP2           bool          `mapstructure:"use_http2"`
}

type ResilienceConfig struct {
	MaxRetries              int           `mapstructure:"max_retries"`
	RetryBaseDelay          time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxJitter          time.Duration `mapstructure:"retry_max_jitter"`
	CircuitBreakerThreshold int           `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerCooldown  time.Duration `mapstructure:"circuit_breaker_cooldown"`
}

type RoutingConfig struct {
	DefaultModel         string   `mapstructure:"default_model"`
	LargeContextModel    string   `mapstructure:"large_context_model"`
	BalancedModel        string   `mapstructure:"balanced_model"`
	StandardContextLimit int      `mapstructure:"standard_context_limit"`
	LargeContextLimit    int      `mapstructure:"large_context_limit"`
	FallbackChain        []string `mapstructure:"fallback_chain"`
	MaxAttempts          int      `mapstructure:"max_attempts"`
	DefaultTemperature   float64  `mapstructure:"default_temperature"`
	DefaultMaxTokens     int      `mapstructure:"default_max_tokens"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

var cfg *Config

func Load(configPath string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.AddConfigPath(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/modelgate")
	}

	setDefaults()

	viper.AutomaticEnv()
	bindEnvVars()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// The chain defaults to the three routed models, largest first, so a
	// big-context request degrades toward cheaper models rather than away
	// from them.
	if len(config.Routing.FallbackChain) == 0 {
		config.Routing.FallbackChain = []string{
			config.Routing.LargeContextModel,
			config.Routing.BalancedModel,
			config.Routing.DefaultModel,
		}
	}

	cfg = &config
	return cfg, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "300s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.graceful_shutdown", "30s")

	// Database defaults
	viper.SetDefault("database.max_connections", 50)
	viper.SetDefault("database.max_idle_connections", 10)
	viper.SetDefault("database.conn_max_lifetime", "1h")

	// Redis defaults
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pricing_ttl", "5m")

	// Upstream defaults
	viper.SetDefault("upstream.base_url", "https://api.openai.com/v1")
	viper.SetDefault("upstream.timeout", "60s")
	viper.SetDefault("upstream.health_check_timeout", "5s")
	viper.SetDefault("upstream.max_connections_per_server", 100)
	viper.SetDefault("upstream.connection_lifetime", "5m")
	viper.SetDefault("upstream.use_http2", true)

	// Resilience defaults
	viper.SetDefault("resilience.max_retries", 2)
	viper.SetDefault("resilience.retry_base_delay", "500ms")
	viper.SetDefault("resilience.retry_max_jitter", "250ms")
	viper.SetDefault("resilience.circuit_breaker_threshold", 3)
	viper.SetDefault("resilience.circuit_breaker_cooldown", "30s")

	// Routing defaults
	viper.SetDefault("routing.default_model", "openai/gpt-4o-mini")
	viper.SetDefault("routing.large_context_model", "openai/gpt-4.1")
	viper.SetDefault("routing.balanced_model", "openai/gpt-4o")
	viper.SetDefault("routing.standard_context_limit", 10000)
	viper.SetDefault("routing.large_context_limit", 200000)
	viper.SetDefault("routing.max_attempts", 3)
	viper.SetDefault("routing.default_temperature", 0.7)
	viper.SetDefault("routing.default_max_tokens", 2000)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")
	viper.SetDefault("logging.output_path", "")

	// CORS defaults
	viper.SetDefault("cors.allow_credentials", true)
	viper.SetDefault("cors.max_age", 86400)
}

func bindEnvVars() {
	// Server
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")
	viper.BindEnv("server.idle_timeout", "SERVER_IDLE_TIMEOUT")

	// Database
	viper.BindEnv("database.url", "DATABASE_URL")
	viper.BindEnv("database.max_connections", "DATABASE_MAX_CONNECTIONS")
	viper.BindEnv("database.max_idle_connections", "DATABASE_MAX_IDLE_CONNECTIONS")

	// Redis
	viper.BindEnv("redis.url", "REDIS_URL")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")
	viper.BindEnv("redis.pricing_ttl", "REDIS_PRICING_TTL")

	// Upstream
	viper.BindEnv("upstream.api_key", "UPSTREAM_API_KEY")
	viper.BindEnv("upstream.base_url", "UPSTREAM_BASE_URL")
	viper.BindEnv("upstream.timeout", "UPSTREAM_TIMEOUT")

	// Resilience
	viper.BindEnv("resilience.max_retries", "RESILIENCE_MAX_RETRIES")
	viper.BindEnv("resilience.circuit_breaker_threshold", "CIRCUIT_BREAKER_THRESHOLD")
	viper.BindEnv("resilience.circuit_breaker_cooldown", "CIRCUIT_BREAKER_COOLDOWN")

	// Routing
	viper.BindEnv("routing.default_model", "ROUTING_DEFAULT_MODEL")
	viper.BindEnv("routing.large_context_model", "ROUTING_LARGE_CONTEXT_MODEL")
	viper.BindEnv("routing.balanced_model", "ROUTING_BALANCED_MODEL")
	viper.BindEnv("routing.standard_context_limit", "ROUTING_STANDARD_CONTEXT_LIMIT")
	viper.BindEnv("routing.large_context_limit", "ROUTING_LARGE_CONTEXT_LIMIT")

	// Logging
	viper.BindEnv("logging.level", "LOG_LEVEL")
	viper.BindEnv("logging.format", "LOG_FORMAT")

	// CORS
	viper.BindEnv("cors.allowed_origins", "CORS_ALLOWED_ORIGINS")
	viper.BindEnv("cors.allowed_methods", "CORS_ALLOWED_METHODS")
	viper.BindEnv("cors.allowed_headers", "CORS_ALLOWED_HEADERS")
}

func Get() *Config {
	return cfg
}
