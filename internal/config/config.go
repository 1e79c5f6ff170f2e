package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "MEDINOTES"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Session   SessionConfig   `mapstructure:"session"`
	Summary   SummaryConfig   `mapstructure:"summary"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Demo      DemoConfig      `mapstructure:"demo"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

type ServerConfig struct {
	Port                   int    `mapstructure:"port"`
	Mode                   string `mapstructure:"mode"`
	ReadTimeoutSeconds     int    `mapstructure:"read_timeout_seconds"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`
	MaxBodyBytes           int64  `mapstructure:"max_body_bytes"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// DatabaseConfig selects the account store. Driver "memory" keeps accounts
// in process and seeds the demo account.
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// DSN is the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// RedisConfig backs token revocations when URL is set.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type JWTConfig struct {
	Secret        string `mapstructure:"secret"`
	Issuer        string `mapstructure:"issuer"`
	ExpiryMinutes int    `mapstructure:"expiry_minutes"`
}

func (j JWTConfig) TTL() time.Duration {
	return time.Duration(j.ExpiryMinutes) * time.Minute
}

type SessionConfig struct {
	CookieName string `mapstructure:"cookie_name"`
	Secure     bool   `mapstructure:"secure"`
}

type SummaryConfig struct {
	Provider              string `mapstructure:"provider"`
	APIKey                string `mapstructure:"api_key"`
	BaseURL               string `mapstructure:"base_url"`
	Model                 string `mapstructure:"model"`
	BreakerMaxFailures    int    `mapstructure:"breaker_max_failures"`
	BreakerTimeoutSeconds int    `mapstructure:"breaker_timeout_seconds"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

// DemoConfig is the account seeded when accounts live in memory. An empty
// email seeds nothing.
type DemoConfig struct {
	Name     string `mapstructure:"name"`
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
	Plan     string `mapstructure:"plan"`
}

// WorkerConfig drives cmd/worker, which sweeps expired revocations out of
// the postgres store.
type WorkerConfig struct {
	SweepIntervalMinutes int `mapstructure:"sweep_interval_minutes"`
	GraceMinutes         int `mapstructure:"grace_minutes"`
	HealthPort           int `mapstructure:"health_port"`
}

func (w WorkerConfig) SweepInterval() time.Duration {
	return time.Duration(w.SweepIntervalMinutes) * time.Minute
}

func (w WorkerConfig) Grace() time.Duration {
	return time.Duration(w.GraceMinutes) * time.Minute
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout_seconds", 15)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "medinotes")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "medinotes")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("redis.url", "")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "medinotes")
	v.SetDefault("jwt.expiry_minutes", 60)

	v.SetDefault("session.cookie_name", "medinotes_session")
	v.SetDefault("session.secure", false)

	v.SetDefault("summary.provider", "openai")
	v.SetDefault("summary.api_key", "")
	v.SetDefault("summary.base_url", "")
	v.SetDefault("summary.model", "gpt-4o-mini")
	v.SetDefault("summary.breaker_max_failures", 5)
	v.SetDefault("summary.breaker_timeout_seconds", 30)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 5)
	v.SetDefault("rate_limit.burst", 10)

	v.SetDefault("metrics.namespace", "medinotes")

	v.SetDefault("demo.name", "Dr Demo")
	v.SetDefault("demo.email", "")
	v.SetDefault("demo.password", "")
	v.SetDefault("demo.plan", "premium_subscription")

	v.SetDefault("worker.sweep_interval_minutes", 15)
	v.SetDefault("worker.grace_minutes", 5)
	v.SetDefault("worker.health_port", 8081)
}

// LoadConfig reads .env, then config.yaml from paths (or ./ and ./config),
// then MEDINOTES_* environment variables such as MEDINOTES_JWT_SECRET. A
// missing config file is not an error.
func LoadConfig(paths ...string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if len(c.JWT.Secret) < 32 {
		errs = append(errs, errors.New("jwt.secret must be at least 32 characters"))
	}
	if c.JWT.ExpiryMinutes <= 0 {
		errs = append(errs, errors.New("jwt.expiry_minutes must be positive"))
	}
	switch c.Database.Driver {
	case "memory", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unknown database.driver %q", c.Database.Driver))
	}
	switch c.Summary.Provider {
	case "openai", "echo":
	default:
		errs = append(errs, fmt.Errorf("unknown summary.provider %q", c.Summary.Provider))
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("rate_limit needs positive requests_per_second and burst"))
	}
	if c.Worker.SweepIntervalMinutes <= 0 {
		errs = append(errs, errors.New("worker.sweep_interval_minutes must be positive"))
	}
	if c.Demo.Email != "" && len(c.Demo.Password) < 8 {
		errs = append(errs, errors.New("demo.password must be at least 8 characters"))
	}
	return errors.Join(errs...)
}
