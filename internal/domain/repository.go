package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Scan operations
	SaveScan(ctx context.Context, tenantID string, scan *ScanRecord) error
	GetScan(ctx context.Context, tenantID string, scanID string) (*ScanRecord, error)

	// CountGenerationsByUser returns how many tokens the user generated
	// at or after `since`. Feeds the frequent-generation check.
	CountGenerationsByUser(ctx context.Context, tenantID string, nationalID string, since time.Time) (int64, error)

	// Assessment results
	SaveAssessment(ctx context.Context, tenantID string, a *Assessment) error
	GetAssessment(ctx context.Context, tenantID string, assessmentID string) (*Assessment, error)

	// Policy configuration operations
	SavePolicyConfig(ctx context.Context, tenantID string, policy *PolicyConfig) error
	ListPolicyConfigs(ctx context.Context, tenantID string) ([]*PolicyConfig, error)
	DeletePolicyConfig(ctx context.Context, tenantID string, policyID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
