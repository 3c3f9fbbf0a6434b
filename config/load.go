package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// PathEnvVar names an optional YAML config file
const PathEnvVar = "CLOVER_CONFIG"

// Default returns the configuration used before any file or environment overrides
func Default() *Config {
	return &Config{
		AppName:                       "clover-api",
		Port:                          3000,
		LogLevel:                      "info",
		HttpServerWriteTimeoutSeconds: 60,
		HttpServerReadTimeoutSeconds:  10,
		HttpServerIdleTimeoutSeconds:  10,
		MaxHeaderBytes:                64000,
		ReadHeaderTimeoutSeconds:      10,
		ShutdownTimeout:               30 * time.Second,
		StartupMaxAttempts:            5,

		DatabasePort:                  "5432",
		DatabaseName:                  "clover",
		DatabaseSSLMode:               "disable",
		DatabaseMaxOpenConns:          25,
		DatabaseMaxIdleConns:          10,
		DatabaseConnMaxLifetime:       5 * time.Minute,
		DatabaseMigrationFolderPath:   "db/pg",
		DatabaseMigrationAutoRollback: true,

		OAuthStateTTL: 15 * time.Minute,

		ProviderTimeout:           30 * time.Second,
		ProviderRequestsPerSecond: 10,

		SyncMaxAttempts: 3,
		SyncRetryDelay:  time.Second,
		SyncRateWindow:  time.Minute,
		SyncBlockOn429:  time.Minute,
		SyncInterval:    6 * time.Hour,

		RedisHost: "localhost",
		RedisPort: 6379,

		KafkaEventTopic: "clover-events",
		KafkaErrorTopic: "clover-errors",

		SchedulerEnabled:      true,
		SchedulerPollInterval: time.Minute,
		SchedulerLockTTL:      10 * time.Minute,

		RedisStreamsJobQueue:      "clover:sync:jobs",
		RedisStreamsConsumerGroup: "clover-workers",
		RedisStreamsDLQ:           "clover:sync:dlq",
		WorkerEnabled:             true,
		WorkerCount:               2,
		WorkerMaxRetries:          3,

		OTLPEndpoint: "localhost:4317",
		OTLPProtocol: "grpc",
		OTLPInsecure: true,
	}
}

// Load reads .env when present, then layers defaults, the optional YAML file named by
// CLOVER_CONFIG and the environment, in that order.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := os.Getenv(PathEnvVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings the service cannot run without
func (c *Config) Validate() error {
	var problems []string
	if c.Port <= 0 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port %d is out of range", c.Port))
	}
	if c.OTLPProtocol != "grpc" && c.OTLPProtocol != "http" {
		problems = append(problems, fmt.Sprintf("otlp_protocol must be grpc or http, got %q", c.OTLPProtocol))
	}
	if c.SyncMaxAttempts < 1 {
		problems = append(problems, "sync_max_attempts must be at least 1")
	}
	if c.StateSecret == "" {
		problems = append(problems, "state_secret is required to sign oauth state")
	}
	if c.WebhookSecret == "" {
		problems = append(problems, "webhook_secret is required to verify webhook signatures")
	}
	if c.OAuthStateTTL <= 0 {
		problems = append(problems, "oauth_state_ttl must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

// KafkaEnabled reports whether any brokers are configured
func (c *Config) KafkaEnabled() bool {
	return strings.TrimSpace(c.KafkaBrokers) != ""
}
