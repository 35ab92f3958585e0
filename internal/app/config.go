package app

import (
	"errors"
	"net/url"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/bookstore-admin/console/internal/platform/cache"
	"github.com/bookstore-admin/console/internal/platform/db"
)

// Config holds runtime configuration for the console.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"30s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	APIBaseURL string        `envconfig:"API_BASE_URL" default:"http://localhost:8000/api"`
	APITimeout time.Duration `envconfig:"API_TIMEOUT" default:"10s"`
	// APIRateLimit caps outbound calls per second across the process. Zero disables it.
	APIRateLimit float64 `envconfig:"API_RATE_LIMIT" default:"50"`

	RedisAddr             string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword         string        `envconfig:"REDIS_PASSWORD"`
	RedisDB               int           `envconfig:"REDIS_DB" default:"0"`
	SessionSecret         string        `envconfig:"SESSION_SECRET" required:"true"`
	SessionTTL            time.Duration `envconfig:"SESSION_TTL" default:"12h"`
	SessionRestoreTimeout time.Duration `envconfig:"SESSION_RESTORE_TIMEOUT" default:"5s"`
	FormLockTTL           time.Duration `envconfig:"FORM_LOCK_TTL" default:"30s"`

	CSRFSecret string `envconfig:"CSRF_SECRET" required:"true"`

	RateLimit      int `envconfig:"RATE_LIMIT" default:"120"`
	LoginRateLimit int `envconfig:"LOGIN_RATE_LIMIT" default:"10"`

	// AuditPGDSN enables the Postgres audit trail when set.
	AuditPGDSN         string `envconfig:"AUDIT_PG_DSN"`
	AuditPGMaxConns    int32  `envconfig:"AUDIT_PG_MAX_CONNS" default:"4"`
	AuditRetentionDays int    `envconfig:"AUDIT_RETENTION_DAYS" default:"180"`
	AuditPruneSchedule string `envconfig:"AUDIT_PRUNE_SCHEDULE" default:"30 3 * * *"`

	WorkerConcurrency int    `envconfig:"WORKER_CONCURRENCY" default:"5"`
	WorkerMetricsAddr string `envconfig:"WORKER_METRICS_ADDR" default:":9091"`
}

// LoadConfig reads configuration from a .env file, if present, and the
// environment. Variables already set take precedence over the file.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.SessionSecret == "" {
		return nil, errors.New("session secret must be provided")
	}
	if cfg.CSRFSecret == "" {
		return nil, errors.New("csrf secret must be provided")
	}
	base, err := url.Parse(cfg.APIBaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.New("api base url must be an absolute URL")
	}
	return &cfg, nil
}

// RedisOptions returns the connection settings shared by sessions and the queue.
func (c *Config) RedisOptions() cache.Options {
	return cache.Options{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// AsynqRedis returns the queue connection for the same Redis instance.
func (c *Config) AsynqRedis() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// AuditDBOptions returns the pool settings for the audit trail.
func (c *Config) AuditDBOptions(component string) db.Options {
	return db.Options{MaxConns: c.AuditPGMaxConns, ApplicationName: "bookstore-console-" + component}
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
