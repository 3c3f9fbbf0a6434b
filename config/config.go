package config

import "time"

// Config is the service configuration. Keys are the lower-cased environment variable names;
// a YAML file may set the same keys.
type Config struct {
	AppName                       string        `koanf:"app_name"`
	Port                          int           `koanf:"port"`
	LogLevel                      string        `koanf:"log_level"`
	PrettyLogs                    bool          `koanf:"pretty_logs"`
	HttpServerWriteTimeoutSeconds int           `koanf:"http_server_write_timeout_seconds"`
	HttpServerReadTimeoutSeconds  int           `koanf:"http_server_read_timeout_seconds"`
	HttpServerIdleTimeoutSeconds  int           `koanf:"http_server_idle_timeout_seconds"`
	MaxHeaderBytes                int           `koanf:"http_server_max_header_bytes"`
	ReadHeaderTimeoutSeconds      int           `koanf:"http_server_read_header_timeout_seconds"`
	ShutdownTimeout               time.Duration `koanf:"shutdown_timeout"`
	StartupMaxAttempts            int           `koanf:"startup_max_attempts"`

	// Database
	DatabaseHost                  string        `koanf:"db_host"`
	DatabasePort                  string        `koanf:"db_port"`
	DatabaseUserName              string        `koanf:"db_user_name"`
	DatabasePassword              string        `koanf:"db_password"`
	DatabaseName                  string        `koanf:"db_name"`
	DatabaseSSLMode               string        `koanf:"db_ssl_mode"`
	DatabaseMaxOpenConns          int           `koanf:"db_max_open_conns"`
	DatabaseMaxIdleConns          int           `koanf:"db_max_idle_conns"`
	DatabaseConnMaxLifetime       time.Duration `koanf:"db_conn_max_lifetime"`
	DatabaseMigrationFolderPath   string        `koanf:"db_migration_folder_path"`
	DatabaseMigrationVersion      int           `koanf:"db_migration_version"`
	DatabaseMigrationForce        int           `koanf:"db_migration_force"`
	DatabaseMigrationAutoRollback bool          `koanf:"db_migration_auto_rollback"`
	DatabaseMigrateOnStart        bool          `koanf:"db_migrate_on_start"`

	// OAuth client credentials. Google Ads falls back to the Google client when unset.
	GoogleClientID        string        `koanf:"google_client_id"`
	GoogleClientSecret    string        `koanf:"google_client_secret"`
	GoogleAdsClientID     string        `koanf:"google_ads_client_id"`
	GoogleAdsClientSecret string        `koanf:"google_ads_client_secret"`
	MetaClientID          string        `koanf:"meta_client_id"`
	MetaClientSecret      string        `koanf:"meta_client_secret"`
	StateSecret           string        `koanf:"state_secret"`
	OAuthStateTTL         time.Duration `koanf:"oauth_state_ttl"`

	// Provider APIs. Empty base URLs use the production hosts.
	GoogleAdsDeveloperToken   string        `koanf:"google_ads_developer_token"`
	GoogleAdsLoginCustomerID  string        `koanf:"google_ads_login_customer_id"`
	GA4AdminURL               string        `koanf:"ga4_admin_url"`
	GA4DataURL                string        `koanf:"ga4_data_url"`
	GoogleAdsURL              string        `koanf:"google_ads_url"`
	SearchConsoleURL          string        `koanf:"search_console_url"`
	MetaGraphURL              string        `koanf:"meta_graph_url"`
	ProviderTimeout           time.Duration `koanf:"provider_timeout"`
	ProviderRequestsPerSecond float64       `koanf:"provider_requests_per_second"`

	// Webhooks and alerts
	WebhookSecret        string `koanf:"webhook_secret"`
	AutomationWebhookURL string `koanf:"automation_webhook_url"`

	// Sync
	SyncMaxAttempts int           `koanf:"sync_max_attempts"`
	SyncRetryDelay  time.Duration `koanf:"sync_retry_delay"`
	SyncRateLimit   int64         `koanf:"sync_rate_limit"`
	SyncRateWindow  time.Duration `koanf:"sync_rate_window"`
	SyncBlockOn429  time.Duration `koanf:"sync_block_on_429"`
	SyncInterval    time.Duration `koanf:"sync_interval"`

	// Auth for the admin routes. Empty issuer leaves them on the X-Tenant-ID header.
	AuthIssuerURL string `koanf:"auth_issuer_url"`
	AuthClientID  string `koanf:"auth_client_id"`

	// Redis
	RedisHost     string `koanf:"redis_host"`
	RedisPort     int    `koanf:"redis_port"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// Kafka brokers (comma-separated). Empty disables event publishing.
	KafkaBrokers    string `koanf:"kafka_brokers"`
	KafkaEventTopic string `koanf:"kafka_event_topic"`
	KafkaErrorTopic string `koanf:"kafka_error_topic"`

	// Scheduler
	SchedulerEnabled      bool          `koanf:"scheduler_enabled"`
	SchedulerPollInterval time.Duration `koanf:"scheduler_poll_interval"`
	SchedulerLockTTL      time.Duration `koanf:"scheduler_lock_ttl"`

	// Redis Streams
	RedisStreamsJobQueue      string `koanf:"redis_streams_job_queue"`
	RedisStreamsConsumerGroup string `koanf:"redis_streams_consumer_group"`
	// Consumer name (defaults to hostname if empty)
	RedisStreamsConsumerName string `koanf:"redis_streams_consumer_name"`
	RedisStreamsDLQ          string `koanf:"redis_streams_dlq"`
	WorkerEnabled            bool   `koanf:"worker_enabled"`
	WorkerCount              int    `koanf:"worker_count"`
	WorkerMaxRetries         int    `koanf:"worker_max_retries"`

	// Tracing
	// Enable OTLP tracing export (set to true to send traces to collector)
	OTLPEnabled  bool   `koanf:"otlp_enabled"`
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	// OTLP protocol (grpc or http)
	OTLPProtocol string `koanf:"otlp_protocol"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}
