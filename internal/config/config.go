package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/clinicflow/clinicflow/internal/types"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Configuration struct {
	Deployment DeploymentConfig `mapstructure:"deployment" validate:"required"`
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Logging    LoggingConfig    `mapstructure:"logging" validate:"required"`
	Postgres   PostgresConfig   `mapstructure:"postgres" validate:"required"`
	Redis      RedisConfig      `mapstructure:"redis"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit" validate:"required"`
	Tenant     TenantConfig     `mapstructure:"tenant"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Billing    BillingConfig    `mapstructure:"billing" validate:"required"`
	Event      EventConfig      `mapstructure:"event" validate:"required"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`
	Usage      UsageConfig      `mapstructure:"usage"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Sentry     SentryConfig     `mapstructure:"sentry"`
	Pyroscope  PyroscopeConfig  `mapstructure:"pyroscope"`
}

type DeploymentConfig struct {
	Mode types.RunMode `mapstructure:"mode" validate:"required"`
}

type ServerConfig struct {
	Address string `mapstructure:"address" validate:"required"`
}

type LoggingConfig struct {
	Level types.LogLevel `mapstructure:"level" validate:"required"`
}

type PostgresConfig struct {
	Host                   string `mapstructure:"host"`
	Port                   int    `mapstructure:"port"`
	User                   string `mapstructure:"user"`
	Password               string `mapstructure:"password"`
	DBName                 string `mapstructure:"dbname"`
	SSLMode                string `mapstructure:"sslmode"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RateLimitConfig bounds requests per tenant per fixed window
type RateLimitConfig struct {
	Enabled  bool                     `mapstructure:"enabled"`
	Store    types.RateLimitStoreType `mapstructure:"store" validate:"omitempty,oneof=memory redis"`
	Requests int64                    `mapstructure:"requests" validate:"min=1"`
	Window   time.Duration            `mapstructure:"window" validate:"min=1s"`
}

// TenantConfig drives hostname based tenant resolution
type TenantConfig struct {
	BaseDomain string `mapstructure:"base_domain"`
	// SkipPaths are path prefixes served without tenant resolution
	SkipPaths []string `mapstructure:"skip_paths"`
}

type AuthConfig struct {
	Secret string `mapstructure:"secret"`
}

type BillingConfig struct {
	GracePeriodDays  int `mapstructure:"grace_period_days" validate:"min=0"`
	InvoiceDueDays   int `mapstructure:"invoice_due_days" validate:"min=0"`
	SweepConcurrency int `mapstructure:"sweep_concurrency" validate:"min=1"`
}

// EventConfig holds configuration for billing event fan-out
type EventConfig struct {
	PubSub types.PubSubType `mapstructure:"pubsub" validate:"oneof=memory kafka"`
	Topic  string           `mapstructure:"topic"`
	// ConsumerEnabled runs the in-process billing event consumer
	ConsumerEnabled bool `mapstructure:"consumer_enabled"`
	// AutoAck marks events processed once the consumer has handled them
	AutoAck         bool          `mapstructure:"auto_ack"`
	MaxRetries      int           `mapstructure:"max_retries" validate:"min=0"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	ClientID      string   `mapstructure:"client_id"`
}

type ClickHouseConfig struct {
	Address  string `mapstructure:"address"`
	TLS      bool   `mapstructure:"tls"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

type UsageConfig struct {
	Store types.UsageStoreType `mapstructure:"store" validate:"omitempty,oneof=postgres clickhouse"`
}

type CacheConfig struct {
	PlanTTL time.Duration `mapstructure:"plan_ttl"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type PyroscopeConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	ServerAddress   string `mapstructure:"server_address"`
	ApplicationName string `mapstructure:"application_name"`
}

func NewConfig() (*Configuration, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/clinicflow")

	// CLINICFLOW_POSTGRES_HOST overrides postgres.host
	v.SetEnvPrefix("CLINICFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Error reading config file: %v\n", err)
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	} else {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults registers every key so AutomaticEnv can override keys missing from the file
func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", types.ModeLocal)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("logging.level", types.LogLevelInfo)
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "clinicflow")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "clinicflow")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_open_conns", 20)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime_minutes", 30)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.store", types.RateLimitStoreMemory)
	v.SetDefault("rate_limit.requests", 600)
	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("tenant.base_domain", "")
	v.SetDefault("tenant.skip_paths", []string{"/health"})
	v.SetDefault("auth.secret", "")
	v.SetDefault("billing.grace_period_days", 7)
	v.SetDefault("billing.invoice_due_days", 14)
	v.SetDefault("billing.sweep_concurrency", 8)
	v.SetDefault("event.pubsub", types.MemoryPubSub)
	v.SetDefault("event.topic", types.TopicBillingEvents)
	v.SetDefault("event.max_retries", 3)
	v.SetDefault("event.initial_interval", time.Second)
	v.SetDefault("event.max_interval", 30*time.Second)
	v.SetDefault("kafka.brokers", []string{"localhost:29092"})
	v.SetDefault("kafka.consumer_group", "clinicflow-billing")
	v.SetDefault("kafka.client_id", "clinicflow")
	v.SetDefault("clickhouse.address", "localhost:9000")
	v.SetDefault("clickhouse.database", "clinicflow")
	v.SetDefault("usage.store", types.UsageStorePostgres)
	v.SetDefault("cache.plan_ttl", 10*time.Minute)
	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.sample_rate", 1.0)
	v.SetDefault("pyroscope.enabled", false)
	v.SetDefault("pyroscope.application_name", "clinicflow")
}

func (c Configuration) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.RateLimit.Store == types.RateLimitStoreRedis && c.Redis.Address == "" {
		return fmt.Errorf("redis.address is required when rate_limit.store is redis")
	}
	if c.Event.PubSub == types.KafkaPubSub && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when event.pubsub is kafka")
	}
	if c.Usage.Store == types.UsageStoreClickHouse && c.ClickHouse.Address == "" {
		return fmt.Errorf("clickhouse.address is required when usage.store is clickhouse")
	}
	return nil
}

// GetDefaultConfig returns a default configuration for local development
// This is useful for running scripts, tests or other non-web applications
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Server:     ServerConfig{Address: ":8080"},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Store:    types.RateLimitStoreMemory,
			Requests: 600,
			Window:   time.Minute,
		},
		Tenant: TenantConfig{SkipPaths: []string{"/health"}},
		Billing: BillingConfig{
			GracePeriodDays:  7,
			InvoiceDueDays:   14,
			SweepConcurrency: 8,
		},
		Event: EventConfig{
			PubSub:          types.MemoryPubSub,
			Topic:           types.TopicBillingEvents,
			MaxRetries:      3,
			InitialInterval: time.Second,
			MaxInterval:     30 * time.Second,
		},
		Usage: UsageConfig{Store: types.UsageStorePostgres},
		Cache: CacheConfig{PlanTTL: 10 * time.Minute},
	}
}

func (c ClickHouseConfig) GetClientOptions() *clickhouse.Options {
	options := &clickhouse.Options{
		Addr: []string{c.Address},
		Auth: clickhouse.Auth{
			Database: c.Database,
			Username: c.Username,
			Password: c.Password,
		},
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	}
	if c.TLS {
		options.TLS = &tls.Config{}
	}
	return options
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}

// GracePeriod is how long a past_due subscription may stay unpaid before suspension
func (c BillingConfig) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodDays) * 24 * time.Hour
}
