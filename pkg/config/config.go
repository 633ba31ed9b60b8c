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
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Compensation CompensationConfig
	Payouts      PayoutsConfig
	Jobs         JobsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
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
	Env          string `envconfig:"MMN_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"MMN_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"MMN_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"MMN_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"MMN_DB_DSN"`
	Driver string `envconfig:"MMN_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MMN_DB_HOST"`
	LegacyPort     int    `envconfig:"MMN_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MMN_DB_USER"`
	LegacyPassword string `envconfig:"MMN_DB_PASSWORD"`
	LegacyName     string `envconfig:"MMN_DB_NAME"`
	LegacySSLMode  string `envconfig:"MMN_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MMN_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MMN_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MMN_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MMN_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MMN_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MMN_REDIS_ADDR"`
	Password     string        `envconfig:"MMN_REDIS_PASSWORD"`
	DB           int           `envconfig:"MMN_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MMN_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MMN_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MMN_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MMN_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MMN_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MMN_AUTO_MIGRATE" default:"false"`
	// PlanFallback lets tenants without a compensation_plans row run on the default plan.
	PlanFallback bool `envconfig:"MMN_PLAN_FALLBACK" default:"true"`
}

// CompensationConfig is the default plan applied to tenants without overrides.
type CompensationConfig struct {
	Currency              string        `envconfig:"MMN_COMP_CURRENCY" default:"USD"`
	BinaryCommissionRate  string        `envconfig:"MMN_COMP_BINARY_RATE" default:"10"`
	MaxPayoutPercentage   string        `envconfig:"MMN_COMP_MAX_PAYOUT_PERCENTAGE" default:"50"`
	WeakerLegPercentage   string        `envconfig:"MMN_COMP_WEAKER_LEG_PERCENTAGE" default:"100"`
	UnilevelLevels        int           `envconfig:"MMN_COMP_UNILEVEL_LEVELS" default:"10"`
	UnilevelRates         []string      `envconfig:"MMN_COMP_UNILEVEL_RATES" default:"5,4,3,2,2,1,1,1,1,1"`
	MatchingBonusRate     string        `envconfig:"MMN_COMP_MATCHING_RATE" default:"10"`
	MinimumPayout         string        `envconfig:"MMN_COMP_MINIMUM_PAYOUT" default:"50"`
	PaymentFrequency      string        `envconfig:"MMN_COMP_PAYMENT_FREQUENCY" default:"monthly"`
	SpilloverStrategy     string        `envconfig:"MMN_COMP_SPILLOVER_STRATEGY" default:"breadth_first"`
	PersonalSalesRequired string        `envconfig:"MMN_COMP_PERSONAL_SALES_REQUIRED" default:"100"`
	MinimumActiveDownline int           `envconfig:"MMN_COMP_MINIMUM_ACTIVE_DOWNLINE" default:"2"`
	MaxPlacementDepth     int           `envconfig:"MMN_COMP_MAX_PLACEMENT_DEPTH" default:"64"`
	PlanCacheTTL          time.Duration `envconfig:"MMN_COMP_PLAN_CACHE_TTL" default:"5m"`
	RankTiersFile         string        `envconfig:"MMN_COMP_RANK_TIERS_FILE"`
}

// PayoutsConfig carries fee schedules and rail credentials handed to payment executors.
type PayoutsConfig struct {
	BankTransferFeePercent string `envconfig:"MMN_PAYOUT_FEE_BANK_TRANSFER" default:"2"`
	PayPalFeePercent       string `envconfig:"MMN_PAYOUT_FEE_PAYPAL" default:"3"`
	CryptoFeePercent       string `envconfig:"MMN_PAYOUT_FEE_CRYPTO" default:"1"`
	WalletFeePercent       string `envconfig:"MMN_PAYOUT_FEE_WALLET" default:"0"`

	BankAPIKey      string `envconfig:"MMN_PAYOUT_BANK_API_KEY"`
	PayPalClientID  string `envconfig:"MMN_PAYOUT_PAYPAL_CLIENT_ID"`
	PayPalSecret    string `envconfig:"MMN_PAYOUT_PAYPAL_SECRET"`
	CryptoWalletKey string `envconfig:"MMN_PAYOUT_CRYPTO_WALLET_KEY"`
}

type JobsConfig struct {
	LockTTL time.Duration `envconfig:"MMN_JOBS_LOCK_TTL" default:"2h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"MMN_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	EventsTopic string `envconfig:"MMN_PUBSUB_EVENTS_TOPIC" default:"mmn-engine-events"`
	// Ordering keys messages by tenant so subscribers see a tenant's events in commit order.
	Ordering bool `envconfig:"MMN_PUBSUB_ORDERING" default:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MMN_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MMN_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MMN_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"MMN_OUTBOX_RETENTION_DAYS" default:"30"`
	RetentionChunk int `envconfig:"MMN_OUTBOX_RETENTION_CHUNK" default:"500"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
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
