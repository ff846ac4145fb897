// Package config assembles the runtime configuration from the tier preset,
// an optional YAML file, an optional .env file and HARRIER_* variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Environment variables read outside the override table.
const (
	EnvConfigFile = "HARRIER_CONFIG"
	EnvDotenvFile = "HARRIER_ENV_FILE"
	EnvTier       = "HARRIER_TIER"
	EnvDebug      = "HARRIER_DEBUG"
)

// Load reads .env (if present), then builds the configuration from the
// process environment.
func Load() (*domain.Config, error) {
	envFile := os.Getenv(EnvDotenvFile)
	if envFile == "" {
		envFile = ".env"
	}
	// Existing process variables win over .env entries.
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds the configuration using lookup for every variable.
func FromEnv(lookup func(string) (string, bool)) (*domain.Config, error) {
	var raw []byte
	if path, ok := lookup(EnvConfigFile); ok && path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		raw = b
	}

	tier, err := resolveTier(raw, lookup)
	if err != nil {
		return nil, err
	}

	cfg := domain.DefaultConfig()
	if tier == domain.TierPro {
		cfg = domain.ProConfig()
	}

	if len(raw) > 0 {
		if err := yaml.UnmarshalStrict(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
		cfg.Tier = tier
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveTier picks the preset. HARRIER_TIER beats the file's tier.
func resolveTier(raw []byte, lookup func(string) (string, bool)) (domain.Tier, error) {
	tier := domain.TierCommunity
	if len(raw) > 0 {
		var head struct {
			Tier domain.Tier `yaml:"tier"`
		}
		if err := yaml.Unmarshal(raw, &head); err != nil {
			return "", fmt.Errorf("parse config file: %w", err)
		}
		if head.Tier != "" {
			tier = head.Tier
		}
	}
	if v, ok := lookup(EnvTier); ok && v != "" {
		tier = domain.Tier(strings.ToLower(v))
	}

	switch tier {
	case domain.TierCommunity, domain.TierPro:
		return tier, nil
	default:
		return "", fmt.Errorf("unknown tier %q", tier)
	}
}

type override struct {
	key   string
	apply func(cfg *domain.Config, v string) error
}

var overrides = []override{
	{"HARRIER_HOST", setString(func(c *domain.Config) *string { return &c.Server.Host })},
	{"HARRIER_PORT", setInt(func(c *domain.Config) *int { return &c.Server.Port })},

	{"HARRIER_DB_DRIVER", setString(func(c *domain.Config) *string { return &c.Repository.Driver })},
	{"HARRIER_SQLITE_PATH", setString(func(c *domain.Config) *string { return &c.Repository.SQLitePath })},
	{"HARRIER_POSTGRES_HOST", setString(func(c *domain.Config) *string { return &c.Repository.PostgresHost })},
	{"HARRIER_POSTGRES_PORT", setInt(func(c *domain.Config) *int { return &c.Repository.PostgresPort })},
	{"HARRIER_POSTGRES_USER", setString(func(c *domain.Config) *string { return &c.Repository.PostgresUser })},
	{"HARRIER_POSTGRES_PASSWORD", setString(func(c *domain.Config) *string { return &c.Repository.PostgresPassword })},
	{"HARRIER_POSTGRES_DB", setString(func(c *domain.Config) *string { return &c.Repository.PostgresDB })},
	{"HARRIER_POSTGRES_SSLMODE", setString(func(c *domain.Config) *string { return &c.Repository.PostgresSSLMode })},

	{"HARRIER_CACHE_TYPE", setString(func(c *domain.Config) *string { return &c.Cache.Type })},
	{"HARRIER_REDIS_ADDR", setString(func(c *domain.Config) *string { return &c.Cache.RedisAddr })},
	{"HARRIER_REDIS_PASSWORD", setString(func(c *domain.Config) *string { return &c.Cache.RedisPassword })},
	{"HARRIER_REDIS_DB", setInt(func(c *domain.Config) *int { return &c.Cache.RedisDB })},

	{"HARRIER_BUS_TYPE", setString(func(c *domain.Config) *string { return &c.EventBus.Type })},
	{"HARRIER_NATS_URL", setString(func(c *domain.Config) *string { return &c.EventBus.NATSUrl })},
	{"HARRIER_NATS_TOKEN", setString(func(c *domain.Config) *string { return &c.EventBus.NATSToken })},
	{"HARRIER_NATS_QUEUE_GROUP", setString(func(c *domain.Config) *string { return &c.EventBus.NATSQueueGroup })},

	{"HARRIER_ASYNC_WORKER", setBool(func(c *domain.Config) *bool { return &c.Detection.AsyncWorker })},
	{"HARRIER_WORKER_CONCURRENCY", setInt(func(c *domain.Config) *int { return &c.Detection.WorkerConcurrency })},
	{"HARRIER_AGENT_RATE_LIMIT", setInt(func(c *domain.Config) *int { return &c.Detection.AgentRateLimit })},
	{"HARRIER_PERSISTENCE_TIMEOUT", setDuration(func(c *domain.Config) *time.Duration { return &c.Detection.PersistenceTimeout })},

	{"HARRIER_MEDIA_TYPE", setString(func(c *domain.Config) *string { return &c.Media.Type })},
	{"HARRIER_MEDIA_BUCKET", setString(func(c *domain.Config) *string { return &c.Media.Bucket })},
	{"HARRIER_MEDIA_REGION", setString(func(c *domain.Config) *string { return &c.Media.Region })},
	{"HARRIER_MEDIA_ENDPOINT", setString(func(c *domain.Config) *string { return &c.Media.Endpoint })},
	{"HARRIER_MEDIA_ACCESS_KEY_ID", setString(func(c *domain.Config) *string { return &c.Media.AccessKeyID })},
	{"HARRIER_MEDIA_SECRET_ACCESS_KEY", setString(func(c *domain.Config) *string { return &c.Media.SecretAccessKey })},

	{"HARRIER_LOG_LEVEL", setString(func(c *domain.Config) *string { return &c.Logging.Level })},
	{"HARRIER_LOG_FORMAT", setString(func(c *domain.Config) *string { return &c.Logging.Format })},
	{"HARRIER_TRACING_ENABLED", setBool(func(c *domain.Config) *bool { return &c.Tracing.Enabled })},
}

func applyEnv(cfg *domain.Config, lookup func(string) (string, bool)) error {
	for _, o := range overrides {
		v, ok := lookup(o.key)
		if !ok || v == "" {
			continue
		}
		if err := o.apply(cfg, v); err != nil {
			return fmt.Errorf("%s: %w", o.key, err)
		}
	}

	if v, ok := lookup(EnvDebug); ok && v == "true" {
		cfg.Logging.Level = "debug"
	}
	return nil
}

func setString(field func(*domain.Config) *string) func(*domain.Config, string) error {
	return func(c *domain.Config, v string) error {
		*field(c) = v
		return nil
	}
}

func setInt(field func(*domain.Config) *int) func(*domain.Config, string) error {
	return func(c *domain.Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func setBool(field func(*domain.Config) *bool) func(*domain.Config, string) error {
	return func(c *domain.Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func setDuration(field func(*domain.Config) *time.Duration) func(*domain.Config, string) error {
	return func(c *domain.Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}

// Validate rejects configurations the backends cannot start with.
func Validate(cfg *domain.Config) error {
	var problems []string

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", cfg.Server.Port))
	}
	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("repository.driver %q not supported", cfg.Repository.Driver))
	}
	switch cfg.Cache.Type {
	case "", "memory", "redis":
	default:
		problems = append(problems, fmt.Sprintf("cache.type %q not supported", cfg.Cache.Type))
	}
	switch cfg.EventBus.Type {
	case "", "channel", "nats":
	default:
		problems = append(problems, fmt.Sprintf("eventBus.type %q not supported", cfg.EventBus.Type))
	}
	switch cfg.Media.Type {
	case "", "none":
	case "s3":
		if cfg.Media.Bucket == "" {
			problems = append(problems, "media.bucket is required for s3")
		}
	default:
		problems = append(problems, fmt.Sprintf("media.type %q not supported", cfg.Media.Type))
	}
	switch cfg.Logging.Format {
	case "", "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q not supported", cfg.Logging.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
