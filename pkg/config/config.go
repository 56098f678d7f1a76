package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const (
	EnvPrefix  = "packdrop"
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Engine       EngineConfig
	Admin        AdminConfig
	Oracle       OracleConfig
	ItemLedger   ItemLedgerConfig
	Payments     PaymentsConfig
	FeatureFlags FeatureFlagsConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Engine.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PACKDROP_APP_ENV" required:"true"`
	Port         string `envconfig:"PACKDROP_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"PACKDROP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PACKDROP_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"PACKDROP_DB_DSN"`
	Driver string `envconfig:"PACKDROP_DB_DRIVER" default:"postgres"`

	MaxOpenConns    int           `envconfig:"PACKDROP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PACKDROP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PACKDROP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PACKDROP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PACKDROP_REDIS_URL" required:"true"`
	PoolSize     int           `envconfig:"PACKDROP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PACKDROP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PACKDROP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PACKDROP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PACKDROP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// EngineConfig carries the emission and pack parameters. The cap and pack
// size are fixed at boot; the emission bootstrap refuses a cap that is not a
// positive multiple of the pack size.
type EngineConfig struct {
	PackSize         int           `envconfig:"PACKDROP_ENGINE_PACK_SIZE" default:"15"`
	EmissionCap      int64         `envconfig:"PACKDROP_ENGINE_EMISSION_CAP" required:"true"`
	PackPrice        string        `envconfig:"PACKDROP_ENGINE_PACK_PRICE" default:"0.1"`
	MaxBatchSize     int           `envconfig:"PACKDROP_ENGINE_MAX_BATCH_SIZE" default:"10"`
	RequestTimeout   time.Duration `envconfig:"PACKDROP_ENGINE_REQUEST_TIMEOUT" default:"1h"`
	PurchaseCooldown time.Duration `envconfig:"PACKDROP_ENGINE_PURCHASE_COOLDOWN" default:"30s"`
	DeckMaxCards     int           `envconfig:"PACKDROP_ENGINE_DECK_MAX_CARDS" default:"60"`
}

func (e EngineConfig) validate() error {
	if e.PackSize <= 0 {
		return fmt.Errorf("engine pack size must be positive")
	}
	if e.EmissionCap <= 0 {
		return fmt.Errorf("engine emission cap must be positive")
	}
	if e.EmissionCap%int64(e.PackSize) != 0 {
		return fmt.Errorf("engine emission cap %d is not a multiple of pack size %d", e.EmissionCap, e.PackSize)
	}
	if e.MaxBatchSize <= 0 {
		return fmt.Errorf("engine max batch size must be positive")
	}
	if _, err := decimal.NewFromString(e.PackPrice); err != nil {
		return fmt.Errorf("engine pack price %q is not a decimal: %w", e.PackPrice, err)
	}
	return nil
}

// PackPriceDecimal returns the configured pack price as a decimal.
func (e EngineConfig) PackPriceDecimal() decimal.Decimal {
	price, err := decimal.NewFromString(e.PackPrice)
	if err != nil {
		return decimal.Zero
	}
	return price
}

// AdminConfig holds the single operator credential. The engine does not do
// user management; the console in front of it does.
type AdminConfig struct {
	APIKey string `envconfig:"PACKDROP_ADMIN_API_KEY" required:"true"`
}

type OracleConfig struct {
	Endpoint  string        `envconfig:"PACKDROP_ORACLE_ENDPOINT"`
	JWTSecret string        `envconfig:"PACKDROP_ORACLE_JWT_SECRET" required:"true"`
	Issuer    string        `envconfig:"PACKDROP_ORACLE_JWT_ISSUER" default:"packdrop"`
	Subject   string        `envconfig:"PACKDROP_ORACLE_IDENTITY" default:"randomness-oracle"`
	Timeout   time.Duration `envconfig:"PACKDROP_ORACLE_HTTP_TIMEOUT" default:"10s"`
}

type ItemLedgerConfig struct {
	Endpoint string        `envconfig:"PACKDROP_ITEM_LEDGER_ENDPOINT"`
	APIKey   string        `envconfig:"PACKDROP_ITEM_LEDGER_API_KEY"`
	Timeout  time.Duration `envconfig:"PACKDROP_ITEM_LEDGER_HTTP_TIMEOUT" default:"10s"`
}

type PaymentsConfig struct {
	Endpoint        string        `envconfig:"PACKDROP_PAYMENTS_ENDPOINT"`
	APIKey          string        `envconfig:"PACKDROP_PAYMENTS_API_KEY"`
	TreasuryAccount string        `envconfig:"PACKDROP_PAYMENTS_TREASURY_ACCOUNT" default:"treasury"`
	Timeout         time.Duration `envconfig:"PACKDROP_PAYMENTS_HTTP_TIMEOUT" default:"10s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"PACKDROP_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"PACKDROP_AUTO_MIGRATE" default:"false"`
}

type PubSubConfig struct {
	ProjectID       string `envconfig:"PACKDROP_GCP_PROJECT_ID"`
	DomainTopic     string `envconfig:"PACKDROP_PUBSUB_DOMAIN_TOPIC" default:"packdrop-domain-events"`
	DomainSubscript string `envconfig:"PACKDROP_PUBSUB_DOMAIN_SUBSCRIPTION" default:"packdrop-domain-events-sub"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PACKDROP_OUTBOX_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PACKDROP_OUTBOX_POLL_INTERVAL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PACKDROP_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"PACKDROP_CRON_INTERVAL" default:"24h"`
	OutboxRetentionDays int           `envconfig:"PACKDROP_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	DLQRetentionDays    int           `envconfig:"PACKDROP_CRON_DLQ_RETENTION_DAYS" default:"90"`
}
