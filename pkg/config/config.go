package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "CHANNELSYNC"

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvAppEnv = "CHANNELSYNC_APP_ENV"
	EnvDBDSN  = "CHANNELSYNC_DB_DSN"
	EnvDBHost = "CHANNELSYNC_DB_HOST"
	EnvDBUser = "CHANNELSYNC_DB_USER"
	EnvDBName = "CHANNELSYNC_DB_NAME"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Square       SquareConfig
	Ingestion    IngestionConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CHANNELSYNC_APP_ENV" required:"true"`
	Port         string `envconfig:"CHANNELSYNC_APP_PORT" default:"8090"`
	LogLevel     string `envconfig:"CHANNELSYNC_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CHANNELSYNC_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"CHANNELSYNC_DB_DSN"`
	Driver string `envconfig:"CHANNELSYNC_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CHANNELSYNC_DB_HOST"`
	LegacyPort     int    `envconfig:"CHANNELSYNC_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CHANNELSYNC_DB_USER"`
	LegacyPassword string `envconfig:"CHANNELSYNC_DB_PASSWORD"`
	LegacyName     string `envconfig:"CHANNELSYNC_DB_NAME"`
	LegacySSLMode  string `envconfig:"CHANNELSYNC_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CHANNELSYNC_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CHANNELSYNC_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CHANNELSYNC_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CHANNELSYNC_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// SupportsTransactions reports whether the configured driver carries
// multi-statement transaction semantics the ingestion engine can lean on.
func (db DBConfig) SupportsTransactions() bool {
	return !strings.EqualFold(db.Driver, DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"CHANNELSYNC_REDIS_URL"`
	Address      string        `envconfig:"CHANNELSYNC_REDIS_ADDR"`
	Password     string        `envconfig:"CHANNELSYNC_REDIS_PASSWORD"`
	DB           int           `envconfig:"CHANNELSYNC_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CHANNELSYNC_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CHANNELSYNC_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CHANNELSYNC_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CHANNELSYNC_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CHANNELSYNC_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CHANNELSYNC_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"CHANNELSYNC_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CHANNELSYNC_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	IngestionSubscription string `envconfig:"CHANNELSYNC_PUBSUB_INGESTION_SUBSCRIPTION" required:"true"`
}

type SquareConfig struct {
	AccessToken   string `envconfig:"CHANNELSYNC_SQUARE_ACCESS_TOKEN" required:"true"`
	Env           string `envconfig:"CHANNELSYNC_SQUARE_ENV" default:"sandbox"`
	WebhookSecret string `envconfig:"CHANNELSYNC_SQUARE_WEBHOOK_SECRET"`
	LocationID    string `envconfig:"CHANNELSYNC_SQUARE_LOCATION_ID" required:"true"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CHANNELSYNC_AUTO_MIGRATE" default:"false"`
}

type IngestionConfig struct {
	Concurrency    int           `envconfig:"CHANNELSYNC_INGEST_CONCURRENCY" default:"10"`
	DisableUpdates bool          `envconfig:"CHANNELSYNC_INGEST_DISABLE_UPDATES" default:"false"`
	BatchDedupeTTL time.Duration `envconfig:"CHANNELSYNC_INGEST_BATCH_DEDUPE_TTL" default:"168h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if strings.EqualFold(db.Driver, DBDriverSQLite) {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
