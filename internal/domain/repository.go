// Package domain defines the core interfaces and types for Harrier.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Fraud-event log (append-only; also the source of activity history)
	AppendFraudEvent(ctx context.Context, rec *FraudEventRecord) error
	GetFraudEvent(ctx context.Context, id string) (*FraudEventRecord, error)
	ListFraudEventsByAgent(ctx context.Context, agentID string, limit int) ([]*FraudEventRecord, error)
	ListAgentActivity(ctx context.Context, agentID string, since time.Time) ([]ActivityRecord, error)
	ListActivityNear(ctx context.Context, q ProximityQuery) ([]ActivityRecord, error)

	// Behavior baselines
	GetProfile(ctx context.Context, agentID string) (*BehaviorProfile, error)
	CreateProfileIfAbsent(ctx context.Context, profile *BehaviorProfile) (*BehaviorProfile, error)
	UpsertProfile(ctx context.Context, profile *BehaviorProfile) error

	// Customer directory
	SaveCustomer(ctx context.Context, customer *Customer) error
	CustomerExists(ctx context.Context, customerID string) (bool, error)

	// Territories
	SaveTerritory(ctx context.Context, territory *Territory) error
	GetTerritory(ctx context.Context, agentID string) (*Territory, error)

	// Custom rule configuration
	SaveRuleConfig(ctx context.Context, rule *RuleConfig) error
	ListRuleConfigs(ctx context.Context) ([]*RuleConfig, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// ProximityQuery selects other agents' activity around a point in time and space.
type ProximityQuery struct {
	ExcludeAgentID string
	Center         Coordinate
	RadiusMeters   float64
	From           time.Time
	To             time.Time
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `yaml:"driver"`

	// SQLite specific
	SQLitePath string `yaml:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `yaml:"postgresHost"`
	PostgresPort     int    `yaml:"postgresPort"`
	PostgresUser     string `yaml:"postgresUser"`
	PostgresPassword string `yaml:"postgresPassword"`
	PostgresDB       string `yaml:"postgresDb"`
	PostgresSSLMode  string `yaml:"postgresSslMode"`

	// Connection pool settings
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}
