package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Dispatch     DispatchConfig
	Housekeeping HousekeepingConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Dispatch.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"DISHDASH_APP_ENV" required:"true"`
	Port         string `envconfig:"DISHDASH_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"DISHDASH_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DISHDASH_LOG_WARN_STACK" default:"false"`
	// LogFormat is json or console.
	LogFormat string `envconfig:"DISHDASH_LOG_FORMAT" default:"json"`
	// CORSOrigins lists dashboard origins allowed to call the API.
	CORSOrigins []string `envconfig:"DISHDASH_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind        string `envconfig:"DISHDASH_SERVICE_KIND" default:"api"`
	MetricsPort string `envconfig:"DISHDASH_METRICS_PORT" default:"9090"`
}

type DBConfig struct {
	DSN    string `envconfig:"DISHDASH_DB_DSN"`
	Driver string `envconfig:"DISHDASH_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"DISHDASH_DB_HOST"`
	Port     int    `envconfig:"DISHDASH_DB_PORT" default:"5432"`
	User     string `envconfig:"DISHDASH_DB_USER"`
	Password string `envconfig:"DISHDASH_DB_PASSWORD"`
	Name     string `envconfig:"DISHDASH_DB_NAME"`
	SSLMode  string `envconfig:"DISHDASH_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"DISHDASH_SQLITE_PATH" default:"dishdash.db"`

	MaxOpenConns    int           `envconfig:"DISHDASH_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DISHDASH_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DISHDASH_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DISHDASH_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// SlowQuery logs statements slower than this as warnings; zero disables it.
	SlowQuery time.Duration `envconfig:"DISHDASH_DB_SLOW_QUERY" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DISHDASH_REDIS_URL" required:"true"`
	Address      string        `envconfig:"DISHDASH_REDIS_ADDR"`
	Password     string        `envconfig:"DISHDASH_REDIS_PASSWORD"`
	DB           int           `envconfig:"DISHDASH_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DISHDASH_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DISHDASH_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DISHDASH_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DISHDASH_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DISHDASH_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig describes how access tokens minted by the identity provider are verified.
type JWTConfig struct {
	Secret string `envconfig:"DISHDASH_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"DISHDASH_JWT_ISSUER" required:"true"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64       `envconfig:"DISHDASH_RATE_LIMIT_RPS" default:"10"`
	Burst             int           `envconfig:"DISHDASH_RATE_LIMIT_BURST" default:"20"`
	IdleTTL           time.Duration `envconfig:"DISHDASH_RATE_LIMIT_IDLE_TTL" default:"3m"`
	// WriteLimit caps mutating requests per user inside WriteWindow; zero disables it.
	WriteLimit  int           `envconfig:"DISHDASH_RATE_LIMIT_WRITE_LIMIT" default:"60"`
	WriteWindow time.Duration `envconfig:"DISHDASH_RATE_LIMIT_WRITE_WINDOW" default:"1m"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"DISHDASH_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"DISHDASH_AUTO_MIGRATE" default:"false"`
	// UseLocalFeed runs the orchestrator on the in-process change broker instead of Pub/Sub.
	UseLocalFeed bool `envconfig:"DISHDASH_USE_LOCAL_FEED" default:"false"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"DISHDASH_EVENTING_IDEMPOTENCY_TTL" default:"72h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"DISHDASH_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"DISHDASH_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"DISHDASH_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"DISHDASH_PUBSUB_ORDERS_TOPIC" default:"dd-order-changes"`
	OrdersSubscription string `envconfig:"DISHDASH_PUBSUB_ORDERS_SUBSCRIPTION" default:"dd-order-changes-dispatcher"`
}

type BigQueryConfig struct {
	Enabled          bool          `envconfig:"DISHDASH_BIGQUERY_ENABLED" default:"false"`
	Dataset          string        `envconfig:"DISHDASH_BIGQUERY_DATASET" default:"dishdash"`
	OrderEventsTable string        `envconfig:"DISHDASH_BIGQUERY_ORDER_EVENTS_TABLE" default:"order_lifecycle_events"`
	BatchSize        int           `envconfig:"DISHDASH_BIGQUERY_BATCH_SIZE" default:"25"`
	FlushAfter       time.Duration `envconfig:"DISHDASH_BIGQUERY_FLUSH_AFTER" default:"5s"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"DISHDASH_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"DISHDASH_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"DISHDASH_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"DISHDASH_OUTBOX_RETENTION" default:"168h"`
}

// HousekeepingConfig drives the daily purge jobs of the cron worker.
type HousekeepingConfig struct {
	Interval              time.Duration `envconfig:"DISHDASH_HOUSEKEEPING_INTERVAL" default:"24h"`
	NotificationRetention time.Duration `envconfig:"DISHDASH_NOTIFICATION_RETENTION" default:"720h"`
	DeleteBatch           int           `envconfig:"DISHDASH_HOUSEKEEPING_DELETE_BATCH" default:"500"`
}

// DispatchConfig tunes driver auto-assignment and the orchestrator scopes run by the dispatcher.
type DispatchConfig struct {
	MaxAttempts    int           `envconfig:"DISHDASH_DISPATCH_MAX_ATTEMPTS" default:"3"`
	SweepInterval  time.Duration `envconfig:"DISHDASH_DISPATCH_SWEEP_INTERVAL" default:"1m"`
	SweepBatchSize int           `envconfig:"DISHDASH_DISPATCH_SWEEP_BATCH_SIZE" default:"50"`
	// Scopes lists business ids to watch; empty or "all" watches every order.
	Scopes       []string      `envconfig:"DISHDASH_DISPATCH_SCOPES"`
	DedupeWindow int           `envconfig:"DISHDASH_DISPATCH_DEDUPE_WINDOW" default:"1024"`
	CronLockTTL  time.Duration `envconfig:"DISHDASH_CRON_LOCK_TTL" default:"2m"`
}

func (d DispatchConfig) validate() error {
	if d.MaxAttempts < 1 {
		return fmt.Errorf("%s must be at least 1", EnvDispatchMaxAttempts)
	}
	if d.DedupeWindow < 0 {
		return fmt.Errorf("%s must not be negative", EnvDispatchDedupeWindow)
	}
	return nil
}

// WatchesAll reports whether the dispatcher should run a single unscoped orchestrator.
func (d DispatchConfig) WatchesAll() bool {
	if len(d.Scopes) == 0 {
		return true
	}
	for _, scope := range d.Scopes {
		if strings.EqualFold(strings.TrimSpace(scope), "all") {
			return true
		}
	}
	return false
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" || useSQLite {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range hostDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
