package main

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/septivank/smart-copro/internal/alerting"
	"github.com/septivank/smart-copro/internal/cache"
	"github.com/septivank/smart-copro/internal/config"
	"github.com/septivank/smart-copro/internal/db"
	"github.com/septivank/smart-copro/internal/httpapi"
	"github.com/septivank/smart-copro/internal/identity"
	"github.com/septivank/smart-copro/internal/lifecycle"
	"github.com/septivank/smart-copro/internal/logging"
	"github.com/septivank/smart-copro/internal/mq"
	"github.com/septivank/smart-copro/internal/notify"
	"github.com/septivank/smart-copro/internal/repository"
	"github.com/septivank/smart-copro/internal/service"
	"github.com/septivank/smart-copro/internal/validator"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
}

// ProvideDBPool creates a new database pool instance
func ProvideDBPool(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*db.Pool, error) {
	return db.NewPool(lc, logger, db.PoolConfig{
		URL:         cfg.Database.URL,
		AutoMigrate: cfg.Database.AutoMigrate,
	})
}

// ProvideStore creates the PostgreSQL-backed store
func ProvideStore(pool *db.Pool) repository.Store {
	return repository.NewRepository(pool)
}

// ProvideMQConnection creates a new RabbitMQ connection instance
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Connection, error) {
	return mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
}

// ProvidePublisher creates the events exchange publisher
func ProvidePublisher(lc fx.Lifecycle, conn *mq.Connection, cfg *config.Config, logger *zap.Logger) (*mq.Publisher, error) {
	publisher, err := mq.NewPublisher(conn, cfg.RabbitMQ.EventsExchange, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return publisher.Close()
		},
	})
	return publisher, nil
}

// ProvideRedisClient connects to Redis when REDIS_URL is set
func ProvideRedisClient(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*redis.Client, error) {
	return cache.NewClient(lc, logger, cfg.Redis.URL)
}

// ProvideDashboardCache creates the dashboard snapshot cache
func ProvideDashboardCache(client *redis.Client, cfg *config.Config) *cache.DashboardCache {
	return cache.NewDashboardCache(client, cfg.Redis.DashboardTTL)
}

// ProvideValidator creates a new validator instance
func ProvideValidator(cfg *config.Config) *validator.Validator {
	return validator.NewValidator(cfg.Validation.TimestampToleranceMinutes)
}

// ProvideAlertEngine creates the alert engine with its anomaly detector
func ProvideAlertEngine(cfg *config.Config) *alerting.Engine {
	return alerting.NewEngine(
		alerting.NewDetector(cfg.Alerting.MinDataPointsForDetection),
		cfg.Alerting.GlobalFallback,
	)
}

// ProvideLifecycleMachine creates the complaint state machine
func ProvideLifecycleMachine(cfg *config.Config) *lifecycle.Machine {
	return lifecycle.New(cfg.Lifecycle.ReportMinLength, cfg.Dispatch.ReopenTerminal)
}

// ProvideNotificationSink publishes complaint notifications and logs them
func ProvideNotificationSink(publisher *mq.Publisher, cfg *config.Config, logger *zap.Logger) notify.Sink {
	return notify.Fanout{
		notify.NewBrokerSink(publisher, cfg.RabbitMQ.NotifyRoutingKey, logger),
		notify.NewLogSink(logger),
	}
}

// ProvideResolver creates the bearer token resolver
func ProvideResolver(cfg *config.Config) *identity.Resolver {
	return identity.NewResolver(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
}

// ProvideMeteringService creates the metering service
func ProvideMeteringService(
	store repository.Store,
	engine *alerting.Engine,
	validator *validator.Validator,
	publisher *mq.Publisher,
	cfg *config.Config,
	logger *zap.Logger,
) *service.MeteringService {
	return service.NewMeteringService(store, engine, validator, publisher, cfg, logger)
}

// ProvideProcessorService creates the ingest processor
func ProvideProcessorService(metering *service.MeteringService, validator *validator.Validator, logger *zap.Logger) *service.ProcessorService {
	return service.NewProcessorService(metering, validator, logger)
}

// ProvideThresholdService creates the threshold registry service
func ProvideThresholdService(store repository.Store, validator *validator.Validator, logger *zap.Logger) *service.ThresholdService {
	return service.NewThresholdService(store, validator, logger)
}

// ProvideComplaintService creates the complaint service
func ProvideComplaintService(
	store repository.Store,
	machine *lifecycle.Machine,
	validator *validator.Validator,
	sink notify.Sink,
	logger *zap.Logger,
) *service.ComplaintService {
	return service.NewComplaintService(store, machine, validator, sink, logger)
}

// ProvideDispatchService creates the dispatch service
func ProvideDispatchService(
	store repository.Store,
	machine *lifecycle.Machine,
	validator *validator.Validator,
	sink notify.Sink,
	logger *zap.Logger,
) *service.DispatchService {
	return service.NewDispatchService(store, machine, validator, sink, logger)
}

// ProvideReportingService creates the reporting service
func ProvideReportingService(store repository.Store, dashboard *cache.DashboardCache, logger *zap.Logger) *service.ReportingService {
	return service.NewReportingService(store, dashboard, logger)
}

type serverParams struct {
	fx.In

	Config     *config.Config
	Logger     *zap.Logger
	Resolver   *identity.Resolver
	Pool       *db.Pool
	Metering   *service.MeteringService
	Thresholds *service.ThresholdService
	Complaints *service.ComplaintService
	Dispatch   *service.DispatchService
	Reporting  *service.ReportingService
}

// ProvideHTTPServer creates the REST API server
func ProvideHTTPServer(p serverParams) *httpapi.Server {
	return httpapi.New(p.Config, p.Logger, p.Resolver, httpapi.Services{
		Metering:   p.Metering,
		Thresholds: p.Thresholds,
		Complaints: p.Complaints,
		Dispatch:   p.Dispatch,
		Reporting:  p.Reporting,
	}, p.Pool)
}

func startHTTPServer(lc fx.Lifecycle, server *httpapi.Server) {
	server.RegisterLifecycle(lc)
}

// startIngestConsumer consumes automatically collected readings when ingest
// is enabled
func startIngestConsumer(
	lc fx.Lifecycle,
	conn *mq.Connection,
	cfg *config.Config,
	logger *zap.Logger,
	processor *service.ProcessorService,
) error {
	if !cfg.RabbitMQ.IngestEnabled {
		logger.Info("ingest consumer disabled")
		return nil
	}

	consumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Connection:    conn,
		Queue:         cfg.RabbitMQ.IngestQueue,
		DLQQueue:      cfg.RabbitMQ.DLQQueue,
		Exchange:      cfg.RabbitMQ.IngestExchange,
		RoutingKey:    cfg.RabbitMQ.IngestRoutingKey,
		PrefetchCount: cfg.RabbitMQ.PrefetchCount,
		Logger:        logger,
		Handler:       processor.ProcessMessage,
	})
	if err != nil {
		return err
	}
	consumer.RegisterLifecycle(lc)
	return nil
}
