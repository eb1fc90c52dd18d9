package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/database"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
)

type Config struct {
	AppName            string `env:"APP_NAME" env-default:"customers-core"`
	LogLevel           string `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs         bool   `env:"PRETTY_LOGS" env-default:"false"`
	StartupMaxAttempts int    `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`
	MetricsAddr        string `env:"METRICS_ADDR" env-default:":9102"`

	// PostgreSQL
	DatabaseDriver                string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                  string        `env:"DB_HOST" env-default:"localhost"`
	DatabasePort                  string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"customers"`
	DatabaseSSLMode               string        `env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Transaction retries on lock contention
	TxRetryAttempts int           `env:"TX_RETRY_ATTEMPTS" env-default:"3"`
	TxRetryBackoff  time.Duration `env:"TX_RETRY_BACKOFF" env-default:"50ms"`

	// Redis (recompute lock, rules-changed broadcast)
	RedisHost          string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort          int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword      string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB            int    `env:"REDIS_DB" env-default:"0"`
	RedisPoolSize      int    `env:"REDIS_POOL_SIZE" env-default:"0"`
	RedisLockPrefix    string `env:"REDIS_LOCK_PREFIX" env-default:"lock:"`
	RedisRulesChannel  string `env:"REDIS_RULES_CHANNEL" env-default:"customers:rules-changed"`
	RulesSubscriberOff bool   `env:"RULES_SUBSCRIBER_DISABLED" env-default:"false"`

	// Kafka consumer (orders)
	KafkaBrokers         []string      `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaOrdersTopic     string        `env:"KAFKA_ORDERS_TOPIC" env-default:"orders"`
	KafkaConsumerGroup   string        `env:"KAFKA_CONSUMER_GROUP" env-default:"customers-core"`
	KafkaConsumerEnabled bool          `env:"KAFKA_CONSUMER_ENABLED" env-default:"true"`
	KafkaRetryBackoff    time.Duration `env:"KAFKA_RETRY_BACKOFF" env-default:"500ms"`
	KafkaMaxRetryBackoff time.Duration `env:"KAFKA_MAX_RETRY_BACKOFF" env-default:"30s"`

	// Kafka producer (customer events)
	KafkaProducerEnabled bool   `env:"KAFKA_PRODUCER_ENABLED" env-default:"true"`
	KafkaOutputTopic     string `env:"KAFKA_OUTPUT_TOPIC" env-default:"customer-events"`
	KafkaBatchSize       int    `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout    int    `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks    int    `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression     string `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Graph projection (Memgraph / Neo4j)
	GraphEnabled    bool   `env:"GRAPH_ENABLED" env-default:"false"`
	GraphDBHost     string `env:"GRAPH_DB_HOST" env-default:"localhost"`
	GraphDBPort     int    `env:"GRAPH_DB_PORT" env-default:"7687"`
	GraphDBUser     string `env:"GRAPH_DB_USER" env-default:""`
	GraphDBPassword string `env:"GRAPH_DB_PASSWORD" env-default:""`
	GraphDBScheme   string `env:"GRAPH_DB_SCHEME" env-default:"bolt"`
	GraphDBName     string `env:"GRAPH_DB_NAME" env-default:""`
	GraphDBDialect  string `env:"GRAPH_DB_DIALECT" env-default:"memgraph"`

	// Tracing
	TracingEnabled  bool   `env:"TRACING_ENABLED" env-default:"false"`
	TracingEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:"localhost:4318"`
	TracingInsecure bool   `env:"OTEL_EXPORTER_OTLP_INSECURE" env-default:"true"`

	// Recompute
	RecomputeEnabled  bool          `env:"RECOMPUTE_ENABLED" env-default:"true"`
	RecomputeInterval time.Duration `env:"RECOMPUTE_INTERVAL" env-default:"15m"`
	RecomputeOnStart  bool          `env:"RECOMPUTE_ON_START" env-default:"false"`
	RecomputePageSize int           `env:"RECOMPUTE_PAGE_SIZE" env-default:"500"`
	RecomputeLockKey  string        `env:"RECOMPUTE_LOCK_KEY" env-default:"customers:recompute"`
	RecomputeLockTTL  time.Duration `env:"RECOMPUTE_LOCK_TTL" env-default:"5m"`

	// Defaults used while the settings store has no row
	AutoCreateGuestIdentities bool     `env:"AUTO_CREATE_GUEST_IDENTITIES" env-default:"false"`
	AutoRegisterGuestAccounts bool     `env:"AUTO_REGISTER_GUEST_ACCOUNTS" env-default:"false"`
	RegisteredLabel           string   `env:"GROUP_LABEL_REGISTERED" env-default:"Registered"`
	GuestLabel                string   `env:"GROUP_LABEL_GUEST" env-default:"Guest"`
	CompanyLabel              string   `env:"GROUP_LABEL_COMPANY" env-default:"Company"`
	VIPLabel                  string   `env:"VIP_LABEL" env-default:"VIP"`
	ForbiddenTagSignatures    []string `env:"FORBIDDEN_TAG_SIGNATURES" env-default:""`
}

// Load reads an optional .env file, then the process environment.
func Load() (*Config, error) {
	// a missing .env is fine outside local development
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return &cfg, nil
}

// Connection is the Postgres connection configuration.
func (c *Config) Connection() database.ConnectionConfig {
	return database.ConnectionConfig{
		Driver:          c.DatabaseDriver,
		Host:            c.DatabaseHost,
		Port:            c.DatabasePort,
		User:            c.DatabaseUserName,
		Password:        c.DatabasePassword,
		Name:            c.DatabaseName,
		SSLMode:         c.DatabaseSSLMode,
		MaxOpenConns:    c.DatabaseMaxOpenConns,
		MaxIdleConns:    c.DatabaseMaxIdleConns,
		ConnMaxLifetime: c.DatabaseConnMaxLifetime,
	}
}

func (c *Config) Migration() *database.MigrationConfig {
	return &database.MigrationConfig{
		MigrationFolderPath: c.DatabaseMigrationFolderPath,
		Version:             uint(c.DatabaseMigrationVersion),
		Force:               c.DatabaseMigrationForce,
		AutoRollback:        c.DatabaseMigrationAutoRollback,
	}
}

func (c *Config) Retry() database.RetryConfig {
	return database.RetryConfig{
		Attempts: c.TxRetryAttempts,
		Backoff:  c.TxRetryBackoff,
	}
}

// IdentityPolicy is the fallback identity policy.
func (c *Config) IdentityPolicy() models.IdentityPolicy {
	return models.IdentityPolicy{
		AutoCreateGuestIdentities: c.AutoCreateGuestIdentities,
		AutoRegisterGuestAccounts: c.AutoRegisterGuestAccounts,
	}
}

// Classification is the fallback classification settings.
func (c *Config) Classification() models.ClassificationSettings {
	var forbidden []string
	for _, s := range c.ForbiddenTagSignatures {
		if s != "" {
			forbidden = append(forbidden, s)
		}
	}
	return models.ClassificationSettings{
		GroupLabels: map[models.CustomerGroup]string{
			models.CustomerGroupRegistered: c.RegisteredLabel,
			models.CustomerGroupGuest:      c.GuestLabel,
			models.CustomerGroupCompany:    c.CompanyLabel,
		},
		GroupAliases:           map[models.CustomerGroup][]string{},
		VIPLabel:               c.VIPLabel,
		ForbiddenTagSignatures: forbidden,
	}.WithDefaults()
}
