// Package domain defines the core interfaces and types for the pension rules service.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Member operations
	SaveMember(ctx context.Context, tenantID string, member *Member) error
	GetMember(ctx context.Context, tenantID string, memberID string) (*Member, error)
	ListMembers(ctx context.Context, tenantID string, limit int) ([]*Member, error)

	// Service history operations. Entries are append-only.
	AddServiceEntry(ctx context.Context, tenantID string, memberID string, entry *ServiceHistoryEntry) error
	ListServiceHistory(ctx context.Context, tenantID string, memberID string) ([]ServiceHistoryEntry, error)

	// Assessment results
	SaveAssessment(ctx context.Context, tenantID string, assessment *Assessment) error
	GetAssessment(ctx context.Context, tenantID string, assessmentID string) (*Assessment, error)
	ListAssessmentsByMember(ctx context.Context, tenantID string, memberID string) ([]*Assessment, error)

	// State rule set configuration
	SaveStateRuleSet(ctx context.Context, tenantID string, record *RuleSetRecord) error
	ListStateRuleSets(ctx context.Context, tenantID string) ([]*RuleSetRecord, error)

	// Policy rule configuration
	SavePolicyRule(ctx context.Context, tenantID string, rule *PolicyRule) error
	ListPolicyRules(ctx context.Context, tenantID string) ([]*PolicyRule, error)

	// Audit log
	SaveAuditRecord(ctx context.Context, tenantID string, record *AuditRecord) error
	ListAuditRecords(ctx context.Context, tenantID string, since time.Time) ([]*AuditRecord, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `env:"PENSION_DB_DRIVER"`

	// SQLite specific
	SQLitePath string `env:"PENSION_SQLITE_PATH"`

	// PostgreSQL specific. PostgresURL overrides the individual fields.
	PostgresURL      string `env:"PENSION_POSTGRES_URL"`
	PostgresHost     string `env:"PENSION_POSTGRES_HOST"`
	PostgresPort     int    `env:"PENSION_POSTGRES_PORT"`
	PostgresUser     string `env:"PENSION_POSTGRES_USER"`
	PostgresPassword string `env:"PENSION_POSTGRES_PASSWORD"`
	PostgresDB       string `env:"PENSION_POSTGRES_DB"`
	PostgresSSLMode  string `env:"PENSION_POSTGRES_SSLMODE"`

	// Connection pool settings
	MaxOpenConns    int           `env:"PENSION_DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `env:"PENSION_DB_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `env:"PENSION_DB_CONN_MAX_LIFETIME"`
}
