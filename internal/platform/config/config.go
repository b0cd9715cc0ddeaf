package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port    string `mapstructure:"PORT"`
	Env     string `mapstructure:"ENV"`
	AppName string `mapstructure:"APP_NAME"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// memory | postgres | mongo
	StorageBackend string `mapstructure:"STORAGE_BACKEND"`
	DBDSN          string `mapstructure:"DB_DSN"`
	MongoURI       string `mapstructure:"MONGO_URI"`
	MongoDatabase  string `mapstructure:"MONGO_DB"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	RabbitMQURI      string `mapstructure:"RABBITMQ_URI"`
	RabbitMQExchange string `mapstructure:"RABBITMQ_EXCHANGE"`

	// dev | jwt | introspect
	AuthMode          string `mapstructure:"AUTH_MODE"`
	JWTSecret         string `mapstructure:"JWT_SECRET"`
	JWTIssuer         string `mapstructure:"JWT_ISSUER"`
	IntrospectBaseURL string `mapstructure:"INTROSPECT_BASE_URL"`
	IntrospectAPIKey  string `mapstructure:"INTROSPECT_API_KEY"`

	OrgRegistryBaseURL  string `mapstructure:"ORG_REGISTRY_BASE_URL"`
	OrgRegistryAPIKey   string `mapstructure:"ORG_REGISTRY_API_KEY"`
	AllowAllMemberships bool   `mapstructure:"ALLOW_ALL_MEMBERSHIPS"`

	DefaultTimeWindowHours int           `mapstructure:"DEFAULT_TIME_WINDOW_HOURS"`
	MaxTimeWindowHours     int           `mapstructure:"MAX_TIME_WINDOW_HOURS"`
	SweepInterval          time.Duration `mapstructure:"SWEEP_INTERVAL"`

	ReadTimeout     time.Duration `mapstructure:"HTTP_READ_TIMEOUT"`
	WriteTimeout    time.Duration `mapstructure:"HTTP_WRITE_TIMEOUT"`
	UpstreamTimeout time.Duration `mapstructure:"UPSTREAM_TIMEOUT"`
}

var keys = []string{
	"PORT", "ENV", "APP_NAME", "LOG_LEVEL", "LOG_FORMAT",
	"STORAGE_BACKEND", "DB_DSN", "MONGO_URI", "MONGO_DB",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"RABBITMQ_URI", "RABBITMQ_EXCHANGE",
	"AUTH_MODE", "JWT_SECRET", "JWT_ISSUER", "INTROSPECT_BASE_URL", "INTROSPECT_API_KEY",
	"ORG_REGISTRY_BASE_URL", "ORG_REGISTRY_API_KEY", "ALLOW_ALL_MEMBERSHIPS",
	"DEFAULT_TIME_WINDOW_HOURS", "MAX_TIME_WINDOW_HOURS", "SWEEP_INTERVAL",
	"HTTP_READ_TIMEOUT", "HTTP_WRITE_TIMEOUT", "UPSTREAM_TIMEOUT",
}

// Load lee env (+ .env opcional) con defaults de desarrollo.
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("APP_NAME", "patient-access")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("STORAGE_BACKEND", "memory")
	v.SetDefault("MONGO_DB", "patient_access")
	v.SetDefault("RABBITMQ_EXCHANGE", "access-events")
	v.SetDefault("AUTH_MODE", "dev")
	v.SetDefault("DEFAULT_TIME_WINDOW_HOURS", 24)
	v.SetDefault("MAX_TIME_WINDOW_HOURS", 720)
	v.SetDefault("SWEEP_INTERVAL", "0s")
	v.SetDefault("HTTP_READ_TIMEOUT", "5s")
	v.SetDefault("HTTP_WRITE_TIMEOUT", "10s")
	v.SetDefault("UPSTREAM_TIMEOUT", "5s")

	// Sin BindEnv, Unmarshal no ve las variables que no tienen default.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env es opcional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))
	cfg.AuthMode = strings.ToLower(strings.TrimSpace(cfg.AuthMode))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) Addr() string {
	return ":" + strings.TrimPrefix(c.Port, ":")
}

// Validate rechaza combinaciones que arrancarían un servidor inseguro o roto.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case "memory":
	case "postgres":
		if c.DBDSN == "" {
			return fmt.Errorf("DB_DSN is required when STORAGE_BACKEND=postgres")
		}
	case "mongo":
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required when STORAGE_BACKEND=mongo")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be memory, postgres or mongo, got %q", c.StorageBackend)
	}

	switch c.AuthMode {
	case "dev":
		if !c.IsDev() {
			return fmt.Errorf("AUTH_MODE=dev is only allowed with ENV=development")
		}
	case "jwt":
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required when AUTH_MODE=jwt")
		}
	case "introspect":
		if c.IntrospectBaseURL == "" || c.IntrospectAPIKey == "" {
			return fmt.Errorf("INTROSPECT_BASE_URL and INTROSPECT_API_KEY are required when AUTH_MODE=introspect")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be dev, jwt or introspect, got %q", c.AuthMode)
	}

	if c.DefaultTimeWindowHours <= 0 {
		return fmt.Errorf("DEFAULT_TIME_WINDOW_HOURS must be positive")
	}
	if c.MaxTimeWindowHours < c.DefaultTimeWindowHours {
		return fmt.Errorf("MAX_TIME_WINDOW_HOURS (%d) must be >= DEFAULT_TIME_WINDOW_HOURS (%d)",
			c.MaxTimeWindowHours, c.DefaultTimeWindowHours)
	}
	if c.SweepInterval < 0 {
		return fmt.Errorf("SWEEP_INTERVAL must not be negative")
	}
	return nil
}
