package domain

import "time"

// Config holds the complete service configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines which backing services are used
	Tier Tier `json:"tier" env:"PENSION_TIER"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`
	Rules      RulesConfig      `json:"rules"`
	Worker     WorkerConfig     `json:"worker"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host               string `json:"host" env:"PENSION_HOST"`
	Port               int    `json:"port" env:"PENSION_PORT"`
	ReadTimeout        int    `json:"readTimeout" env:"PENSION_READ_TIMEOUT"`   // seconds
	WriteTimeout       int    `json:"writeTimeout" env:"PENSION_WRITE_TIMEOUT"` // seconds
	RateLimitPerMinute int    `json:"rateLimitPerMinute" env:"PENSION_RATE_LIMIT_PER_MINUTE"`
}

// RulesConfig controls where state rule sets and policies come from.
type RulesConfig struct {
	// File is a YAML rule set file. Empty uses the embedded defaults.
	File string `json:"file" env:"PENSION_RULES_FILE"`

	// LoadFromRepository overlays rule sets persisted for DefaultTenant.
	LoadFromRepository bool `json:"loadFromRepository" env:"PENSION_RULES_FROM_DB"`

	// DefaultTenant owns the process-wide rule sets and policies.
	DefaultTenant string `json:"defaultTenant" env:"PENSION_RULES_TENANT"`

	// PolicyWorkers bounds parallel policy evaluation.
	PolicyWorkers int `json:"policyWorkers" env:"PENSION_POLICY_WORKERS"`

	// COLAProjectionYears is the default projection horizon (0 disables).
	COLAProjectionYears int `json:"colaProjectionYears" env:"PENSION_COLA_YEARS"`
}

// WorkerConfig holds async assessment worker settings.
type WorkerConfig struct {
	Enabled   bool     `json:"enabled" env:"PENSION_WORKER_ENABLED"`
	TenantIDs []string `json:"tenantIds" env:"PENSION_WORKER_TENANTS" envSeparator:","`
	Count     int      `json:"count" env:"PENSION_WORKER_COUNT"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" env:"PENSION_LOG_LEVEL"`   // debug, info, warn, error
	Format string `json:"format" env:"PENSION_LOG_FORMAT"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" env:"PENSION_OTEL_ENABLED"`
	ServiceName string `json:"serviceName" env:"PENSION_OTEL_SERVICE_NAME"`
	Endpoint    string `json:"endpoint" env:"PENSION_OTEL_ENDPOINT"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels + in-memory cache
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultTenant owns the process-wide configuration when none is set.
const DefaultTenant = "default"

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./pension.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			MemberTTL:    10 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Rules: RulesConfig{
			DefaultTenant: DefaultTenant,
			PolicyWorkers: 8,
		},
		Worker: WorkerConfig{
			Enabled:   true,
			TenantIDs: []string{DefaultTenant},
			Count:     1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "pensionrules",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Server.RateLimitPerMinute = 600
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "pension",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
		MemberTTL:      10 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
		NATSQueueGroup:    "pension-workers",
	}
	cfg.Rules.LoadFromRepository = true
	cfg.Tracing.Enabled = true
	return cfg
}
