package types

type RunMode string

const (
	// ModeLocal runs the API server together with the in-process sweeps
	ModeLocal RunMode = "local"
	// ModeAPI runs only the API server
	ModeAPI RunMode = "api"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// PubSubType selects the transport used to fan out billing events
type PubSubType string

const (
	MemoryPubSub PubSubType = "memory"
	KafkaPubSub  PubSubType = "kafka"
)

// RateLimitStoreType selects where per-tenant request counters live
type RateLimitStoreType string

const (
	RateLimitStoreMemory RateLimitStoreType = "memory"
	RateLimitStoreRedis  RateLimitStoreType = "redis"
)

// UsageStoreType selects the backend for raw usage samples
type UsageStoreType string

const (
	UsageStorePostgres   UsageStoreType = "postgres"
	UsageStoreClickHouse UsageStoreType = "clickhouse"
)
