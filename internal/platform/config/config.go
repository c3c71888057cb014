package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment variable prefix, e.g. SAFEREPORT_ADDR.
const Prefix = "SAFEREPORT"

// Server captures process level configuration.
type Server struct {
	Addr     string `envconfig:"ADDR" default:":8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// DatabaseURL selects the postgres backend; empty runs in-memory stores.
	DatabaseURL string         `envconfig:"DATABASE_URL"`
	Database    DatabaseConfig `envconfig:"DB"`

	Redis     RedisConfig     `envconfig:"REDIS"`
	JWT       JWTConfig       `envconfig:"JWT"`
	RateLimit RateLimitConfig `envconfig:"RATE_LIMIT"`
	Lifecycle LifecycleConfig `envconfig:"LIFECYCLE"`
	Kafka     KafkaConfig     `envconfig:"KAFKA"`
	Export    ExportConfig    `envconfig:"EXPORT"`

	// MediaBaseURL prefixes storage keys when building avatar URLs.
	MediaBaseURL string `envconfig:"MEDIA_BASE_URL" default:"http://localhost:8080/media"`

	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
}

// RedisConfig enables the shared rate limit store when URL is set.
type RedisConfig struct {
	URL          string        `envconfig:"URL"`
	PoolSize     int           `envconfig:"POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"3s"`
}

type JWTConfig struct {
	SigningKey string `envconfig:"SIGNING_KEY" default:"dev-secret-key-change-in-production"`
	Issuer     string `envconfig:"ISSUER" default:"safereport"`
	Audience   string `envconfig:"AUDIENCE" default:"safereport-api"`
}

type RateLimitConfig struct {
	CreateLimit  int           `envconfig:"CREATE" default:"10"`
	CreateWindow time.Duration `envconfig:"WINDOW" default:"60m"`
}

type LifecycleConfig struct {
	// SchedulerInterval is how often archival and purge run; zero disables
	// the in-process scheduler.
	SchedulerInterval time.Duration `envconfig:"INTERVAL" default:"24h"`
	BatchSize         int           `envconfig:"BATCH_SIZE" default:"500"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `envconfig:"MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"CONN_MAX_LIFETIME" default:"30m"`
	// Migrate applies the embedded schema at startup.
	Migrate bool `envconfig:"MIGRATE" default:"true"`
}

type ExportConfig struct {
	// PseudonymKey keys the HMAC that replaces user ids in subject exports.
	PseudonymKey string `envconfig:"PSEUDONYM_KEY" default:"dev-pseudonym-key-change-in-production"`
}

// KafkaConfig enables audit streaming when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `envconfig:"BROKERS"`
	Topic   string   `envconfig:"AUDIT_TOPIC" default:"safereport.audit"`
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (*Server, error) {
	var cfg Server
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if cfg.RateLimit.CreateLimit <= 0 {
		return nil, fmt.Errorf("%s_RATE_LIMIT_CREATE must be positive", Prefix)
	}
	if cfg.RateLimit.CreateWindow <= 0 {
		return nil, fmt.Errorf("%s_RATE_LIMIT_WINDOW must be positive", Prefix)
	}
	if cfg.Export.PseudonymKey == "" {
		return nil, fmt.Errorf("%s_EXPORT_PSEUDONYM_KEY must be set", Prefix)
	}
	return &cfg, nil
}

// UsesPostgres reports whether a database URL was configured.
func (c *Server) UsesPostgres() bool { return c.DatabaseURL != "" }
