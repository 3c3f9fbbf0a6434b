package main

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/handlers"
	"github.com/Ramsey-B/clover/pkg/alerts"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/health"
	"github.com/Ramsey-B/clover/pkg/httpclient"
	"github.com/Ramsey-B/clover/pkg/integrations"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/oauth"
	"github.com/Ramsey-B/clover/pkg/platforms"
	"github.com/Ramsey-B/clover/pkg/queue"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/retry"
	"github.com/Ramsey-B/clover/pkg/scheduler"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/syncer"
	"github.com/Ramsey-B/clover/pkg/webhook"
)

// app holds the wired service. Connections are opened lazily and verified by the startup
// dependencies.
type app struct {
	logger ectologger.Logger

	sqlDB    *sqlx.DB
	redis    *redis.Client
	producer *kafka.Producer
	events   kafka.Publisher

	streams *redis.Streams
	dlq     *redis.DeadLetterQueue

	integrations *integrations.Service
	syncer       *syncer.Service
	webhooks     *webhook.Handler
	alerts       *alerts.Service

	processor *queue.Processor
	scheduler *scheduler.Scheduler
	health    *health.Checker
}

func newApp(cfg *config.Config, logger ectologger.Logger) (*app, error) {
	pool := poolConfig(cfg)
	sqlDB, err := database.Open(pool.DSN(), pool)
	if err != nil {
		return nil, err
	}
	db := database.NewDatabaseInstance(sqlDB, logger)

	a := &app{
		logger: logger,
		sqlDB:  sqlDB,
		redis: redis.Open(redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger),
		events: kafka.NopPublisher{},
	}
	if cfg.KafkaEnabled() {
		a.producer = kafka.NewProducer(kafka.ParseConfig(cfg.KafkaBrokers, cfg.KafkaEventTopic, cfg.KafkaErrorTopic), logger)
		a.events = a.producer
	}
	a.streams = redis.NewStreams(a.redis)
	a.dlq = redis.NewDeadLetterQueue(a.redis, cfg.RedisStreamsDLQ, logger)

	integrationRepo := repositories.NewIntegrationRepository(db, logger)
	metricRepo := repositories.NewMetricRepository(db, logger)
	campaignRepo := repositories.NewCampaignRepository(db, logger)
	logRepo := repositories.NewLogRepository(db, logger)
	alertRepo := repositories.NewAlertRepository(db, logger)

	providerHTTP := httpclient.NewClient(httpclient.Config{
		Name:              "providers",
		Timeout:           cfg.ProviderTimeout,
		MaxIdleConns:      100,
		IdleConnTimeout:   90 * time.Second,
		RequestsPerSecond: cfg.ProviderRequestsPerSecond,
		Burst:             int(cfg.ProviderRequestsPerSecond) + 1,
	}, logger)

	providers := oauth.NewProviders(oauth.ProvidersConfig{
		Google:    oauth.ClientCredentials{ClientID: cfg.GoogleClientID, ClientSecret: cfg.GoogleClientSecret},
		GoogleAds: oauth.ClientCredentials{ClientID: cfg.GoogleAdsClientID, ClientSecret: cfg.GoogleAdsClientSecret},
		Meta:      oauth.ClientCredentials{ClientID: cfg.MetaClientID, ClientSecret: cfg.MetaClientSecret},
	}, providerHTTP.HTTPClient())

	deps := platforms.Deps{
		HTTP:         providerHTTP,
		Metrics:      metricRepo,
		Integrations: integrationRepo,
		Refresher:    providers,
		Endpoints: platforms.Endpoints{
			GA4AdminURL:              cfg.GA4AdminURL,
			GA4DataURL:               cfg.GA4DataURL,
			GoogleAdsURL:             cfg.GoogleAdsURL,
			GoogleAdsDeveloperToken:  cfg.GoogleAdsDeveloperToken,
			GoogleAdsLoginCustomerID: cfg.GoogleAdsLoginCustomerID,
			SearchConsoleURL:         cfg.SearchConsoleURL,
			MetaGraphURL:             cfg.MetaGraphURL,
		},
		Logger: logger,
	}
	breaker := platforms.DefaultBreakerSettings()
	registry := platforms.NewRegistry(
		platforms.WithBreaker(platforms.NewGA4(deps), breaker, logger),
		platforms.WithBreaker(platforms.NewGoogleAds(deps), breaker, logger),
		platforms.WithBreaker(platforms.NewSearchConsole(deps), breaker, logger),
		platforms.WithBreaker(platforms.NewMeta(deps), breaker, logger),
	)

	policy := retry.DefaultPolicy()
	policy.MaxAttempts = cfg.SyncMaxAttempts
	policy.BaseDelay = cfg.SyncRetryDelay
	a.syncer = syncer.NewService(registry, integrationRepo, logRepo, a.events,
		redis.NewRateLimiter(a.redis, "clover:ratelimit:"),
		syncer.Config{
			Retry:      policy,
			RateLimit:  cfg.SyncRateLimit,
			RateWindow: cfg.SyncRateWindow,
			BlockOn429: cfg.SyncBlockOn429,
		}, logger)

	stateSigner, err := oauth.NewStateSigner(cfg.StateSecret, cfg.OAuthStateTTL)
	if err != nil {
		return nil, err
	}
	a.integrations = integrations.NewService(stateSigner, providers, registry, integrationRepo, a.events, logger)

	a.webhooks = webhook.NewHandler(webhook.NewSigner(cfg.WebhookSecret), campaignRepo, integrationRepo, logRepo, a.events, logger)

	notifier := httpclient.NewClient(httpclient.Config{
		Name:            "automation",
		Timeout:         10 * time.Second,
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}, logger)
	a.alerts = alerts.NewService(alertRepo, logRepo, notifier, a.events, cfg.AutomationWebhookURL, logger)

	a.processor = queue.NewProcessor(a.streams, a.dlq, a.syncer, queue.ProcessorConfig{
		Stream:        cfg.RedisStreamsJobQueue,
		ConsumerGroup: cfg.RedisStreamsConsumerGroup,
		ConsumerName:  cfg.RedisStreamsConsumerName,
		MaxRetries:    cfg.WorkerMaxRetries,
		WorkerCount:   cfg.WorkerCount,
	}, logger)

	a.scheduler = scheduler.NewScheduler(integrationRepo, a.streams,
		scheduler.RedisLocker(redis.NewLocker(a.redis, "clover:lock:")),
		scheduler.Config{
			PollInterval: cfg.SchedulerPollInterval,
			SyncInterval: cfg.SyncInterval,
			LockTTL:      cfg.SchedulerLockTTL,
			JobQueue:     cfg.RedisStreamsJobQueue,
		}, logger)

	a.health = health.NewChecker(version).
		AddCheck("database", true, sqlDB.PingContext).
		AddCheck("redis", true, a.redis.Ping)
	if a.producer != nil {
		a.health.AddCheck("kafka", false, a.producer.Ping)
	}

	return a, nil
}

// dependencies are started in order before the server listens and stopped in reverse
func (a *app) dependencies(cfg *config.Config) []startup.StartupDependency {
	deps := []startup.StartupDependency{
		startup.Func{
			Name: "database",
			OnStart: func(ctx context.Context) error {
				if err := a.sqlDB.PingContext(ctx); err != nil {
					return err
				}
				if !cfg.DatabaseMigrateOnStart {
					return nil
				}
				return database.NewMigrationService(a.logger, migrationConfig(cfg)).MigratePostgres(a.sqlDB.DB, cfg.DatabaseName)
			},
			OnStop: func(context.Context) error { return a.sqlDB.Close() },
		},
		startup.Func{
			Name:    "redis",
			OnStart: a.redis.Ping,
			OnStop:  func(context.Context) error { return a.redis.Close() },
		},
	}
	if a.producer != nil {
		deps = append(deps, startup.Func{
			Name:    "kafka",
			OnStart: a.producer.Ping,
			OnStop:  func(context.Context) error { return a.producer.Close() },
		})
	}
	if cfg.WorkerEnabled {
		deps = append(deps, a.processor)
	}
	if cfg.SchedulerEnabled {
		deps = append(deps, a.scheduler)
	}
	return deps
}

func (a *app) handlers(cfg *config.Config) handlers.Handlers {
	return handlers.Handlers{
		OAuth:        handlers.NewOAuthHandler(a.integrations, a.logger),
		Sync:         handlers.NewSyncHandler(a.syncer, a.logger),
		Webhook:      handlers.NewWebhookHandler(a.webhooks, a.logger),
		Alert:        handlers.NewAlertHandler(a.alerts, a.logger),
		Integrations: handlers.NewIntegrationHandler(a.integrations),
		DLQ:          handlers.NewDLQHandler(a.dlq, a.streams, cfg.RedisStreamsJobQueue, a.logger),
		Health:       a.health,
	}
}
