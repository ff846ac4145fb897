package domain

import "time"

// Config holds the complete Harrier configuration.
type Config struct {
	// Server settings
	Server ServerConfig `yaml:"server"`

	// Tier determines which backends are used by default
	Tier Tier `yaml:"tier"`

	// Component configurations
	Repository RepositoryConfig `yaml:"repository"`
	Cache      CacheConfig      `yaml:"cache"`
	EventBus   EventBusConfig   `yaml:"eventBus"`

	// Detection pipeline
	Detection DetectionConfig `yaml:"detection"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Media     MediaConfig     `yaml:"media"`

	// Observability
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"readTimeout"`  // seconds
	WriteTimeout int    `yaml:"writeTimeout"` // seconds
}

// DetectionConfig tunes evidence gathering for one event.
type DetectionConfig struct {
	// PersistenceTimeout bounds every store call made while gathering evidence.
	PersistenceTimeout time.Duration `yaml:"persistenceTimeout"`

	// HistoryWindow is how far back location and activity history reaches.
	HistoryWindow time.Duration `yaml:"historyWindow"`

	// Collusion proximity window
	CollusionRadiusMeters float64       `yaml:"collusionRadiusMeters"`
	CollusionWindow       time.Duration `yaml:"collusionWindow"`

	// MaxDetectorWorkers bounds concurrent detector execution.
	MaxDetectorWorkers int `yaml:"maxDetectorWorkers"`

	// AsyncWorker consumes activity.received from the bus. On in the Pro preset.
	AsyncWorker bool `yaml:"asyncWorker"`

	// WorkerConcurrency bounds concurrent bus messages in the async consumer.
	WorkerConcurrency int `yaml:"workerConcurrency"`

	// AgentRateLimit caps /v1/detect submissions per agent per
	// AgentRateWindow. Zero disables the cap.
	AgentRateLimit  int           `yaml:"agentRateLimit"`
	AgentRateWindow time.Duration `yaml:"agentRateWindow"`
}

// BreakerConfig configures the persistence circuit breaker.
type BreakerConfig struct {
	MaxRequests         uint32        `yaml:"maxRequests"`
	Interval            time.Duration `yaml:"interval"`
	Timeout             time.Duration `yaml:"timeout"`
	ConsecutiveFailures uint32        `yaml:"consecutiveFailures"`
}

// MediaConfig selects the photo metadata source.
type MediaConfig struct {
	// Type is "none" or "s3"
	Type     string `yaml:"type"`
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`

	// Static credentials; empty means the default AWS chain.
	AccessKeyID     string `yaml:"accessKeyId"`
	SecretAccessKey string `yaml:"secretAccessKey"`

	// DuplicateTTL is how long a content hash is remembered.
	DuplicateTTL time.Duration `yaml:"duplicateTtl"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"serviceName"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite, channels and an in-process LRU
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL, NATS and Redis
	TierPro Tier = "pro"
)

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
			SQLitePath: "./harrier.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			ProfileTTL:   10 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Detection: DetectionConfig{
			PersistenceTimeout:    2 * time.Second,
			HistoryWindow:         24 * time.Hour,
			CollusionRadiusMeters: 100,
			CollusionWindow:       30 * time.Minute,
			MaxDetectorWorkers:    4,
			WorkerConcurrency:     8,
			AgentRateWindow:       time.Minute,
		},
		Breaker: BreakerConfig{
			MaxRequests:         1,
			Interval:            time.Minute,
			Timeout:             30 * time.Second,
			ConsecutiveFailures: 5,
		},
		Media: MediaConfig{
			Type:         "none",
			DuplicateTTL: 30 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "harrier",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:          "postgres",
		PostgresHost:    "localhost",
		PostgresPort:    5432,
		PostgresDB:      "harrier",
		PostgresSSLMode: "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
		ProfileTTL:     10 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Detection.AsyncWorker = true
	cfg.Tracing.Enabled = true
	return cfg
}
