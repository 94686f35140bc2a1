package main

import (
	"context"
	"fmt"
	"sync/atomic"

	grpcapi "security-monitor-service/internal/api/grpc"
	httpapi "security-monitor-service/internal/api/http"
	"security-monitor-service/internal/api/ws"
	"security-monitor-service/internal/application/alert"
	"security-monitor-service/internal/application/notification"
	"security-monitor-service/internal/application/pipeline"
	"security-monitor-service/internal/application/sensor"
	"security-monitor-service/internal/application/simulation"
	"security-monitor-service/internal/application/stats"
	"security-monitor-service/internal/application/worker"
	"security-monitor-service/internal/config"
	"security-monitor-service/internal/domain"
	"security-monitor-service/internal/infrastructure/pubsub"
	"security-monitor-service/internal/infrastructure/repository/memory"
	"security-monitor-service/internal/infrastructure/repository/postgres"
	"security-monitor-service/internal/logging"
)

const serviceName = "security-monitor"

func provideConfig() (*config.Config, error) {
	if err := config.LoadEnvFiles(); err != nil {
		return nil, err
	}
	return config.Load()
}

func provideLogger(cfg *config.Config) *logging.Logger {
	logger := logging.New(cfg.LogLevel).With("service", serviceName)
	logger.SetDefault()
	return logger
}

func provideRepository(ctx context.Context, cfg *config.Config, logger *logging.Logger) (domain.Repository, func(), error) {
	if cfg.DbDriver == config.DbDriverMemory {
		logger.Info("using in-memory repository")
		return memory.New(), func() {}, nil
	}

	db, err := postgres.Open(ctx, cfg.DbDriver, cfg.DbDsn)
	if err != nil {
		return nil, nil, err
	}
	applied, err := postgres.Migrate(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	repo, err := postgres.NewRepository(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	logger.Info("postgres repository ready", "driver", cfg.DbDriver, "migrationsApplied", applied)

	cleanup := func() {
		if err := repo.Close(); err != nil {
			logger.Warn("close repository", logging.AttachError(err)...)
		}
	}
	return repo, cleanup, nil
}

func provideBroker(logger *logging.Logger) (*pubsub.Broker, func()) {
	broker := pubsub.NewBroker(logger)
	return broker, broker.Close
}

func providePublisher(broker *pubsub.Broker) domain.Publisher {
	return broker
}

func provideRegistry(cfg *config.Config) *sensor.Registry {
	return sensor.NewDefaultRegistry(sensor.Config{
		Motion: sensor.MotionConfig{
			Threshold:     cfg.Sensors.MotionThreshold,
			HighThreshold: cfg.Sensors.MotionHighThreshold,
		},
		Temperature: sensor.TemperatureConfig{
			Min: cfg.Sensors.TemperatureMin,
			Max: cfg.Sensors.TemperatureMax,
		},
		Access: sensor.AccessConfig{MaxFailedAttempts: cfg.Sensors.AccessMaxFailedAttempts},
		Options: sensor.Options{
			Seed:       cfg.Sensors.Seed,
			LatencyMin: cfg.Sensors.LatencyMin,
			LatencyMax: cfg.Sensors.LatencyMax,
		},
	})
}

func provideFanout(cfg *config.Config, publisher domain.Publisher, logger *logging.Logger) *notification.Fanout {
	emailCfg := notification.EmailConfig{
		Host:      cfg.Email.Host,
		Port:      cfg.Email.Port,
		Username:  cfg.Email.Username,
		Password:  cfg.Email.Password,
		From:      cfg.Email.From,
		To:        cfg.Email.To,
		PerMinute: cfg.Email.PerMinute,
	}
	if err := emailCfg.Validate(); err != nil {
		logger.Warn("email notifications misconfigured", logging.AttachError(err)...)
	}
	email := notification.NewEmailChannel(emailCfg, logger)
	if !email.Enabled() {
		logger.Info("email notifications disabled", "hint", "set "+config.EnvSMTPHost+" and "+config.EnvAlertEmailTo)
	}
	return notification.NewFanout(publisher, logger, email, notification.NewPushChannel(logger))
}

func provideAlertEngine(cfg *config.Config, repo domain.Repository, fanout *notification.Fanout, logger *logging.Logger) *alert.Engine {
	return alert.NewEngine(repo, fanout, cfg.AlertCooldown, logger)
}

// poolOccupancy breaks the reporter -> dispatcher -> pipeline -> broadcaster
// cycle: the reporter reads through it once the dispatcher exists.
type poolOccupancy struct {
	dispatcher atomic.Pointer[worker.Dispatcher]
}

func providePoolOccupancy() *poolOccupancy {
	return &poolOccupancy{}
}

func (p *poolOccupancy) Occupancy() domain.PoolOccupancy {
	if d := p.dispatcher.Load(); d != nil {
		return d.Occupancy()
	}
	return domain.PoolOccupancy{}
}

func provideReporter(counters *stats.Counters, occupancy *poolOccupancy, repo domain.Repository) *stats.Reporter {
	return stats.NewReporter(counters, occupancy.Occupancy, repo)
}

func provideBroadcaster(cfg *config.Config, reporter *stats.Reporter, publisher domain.Publisher, logger *logging.Logger) *stats.Broadcaster {
	return stats.NewBroadcaster(reporter, publisher, cfg.StatsInterval, logger)
}

func providePipeline(
	cfg *config.Config,
	registry *sensor.Registry,
	repo domain.Repository,
	counters *stats.Counters,
	publisher domain.Publisher,
	engine *alert.Engine,
	broadcaster *stats.Broadcaster,
	logger *logging.Logger,
) *pipeline.Pipeline {
	return pipeline.New(registry, repo, counters, publisher, logger,
		pipeline.WithAlerts(engine),
		pipeline.WithStatsNotifier(broadcaster),
		pipeline.WithFinishTimeout(cfg.Pool.ShutdownTimeout),
	)
}

func provideDispatcher(cfg *config.Config, p *pipeline.Pipeline, occupancy *poolOccupancy, logger *logging.Logger) (*worker.Dispatcher, func()) {
	d := worker.New(worker.Config{
		CoreWorkers:     cfg.Pool.CoreSize,
		MaxWorkers:      cfg.Pool.MaxSize,
		QueueCapacity:   cfg.Pool.QueueCapacity,
		KeepAlive:       cfg.Pool.KeepAlive,
		Overflow:        worker.Overflow(cfg.Pool.Overflow),
		ShutdownTimeout: cfg.Pool.ShutdownTimeout,
	}, p, logger)
	occupancy.dispatcher.Store(d)
	return d, func() { d.Shutdown() }
}

func provideDriver(cfg *config.Config, registry *sensor.Registry, dispatcher *worker.Dispatcher, logger *logging.Logger) *simulation.Driver {
	strategies := registry.All()
	simulators := make([]domain.ReadingSimulator, 0, len(strategies))
	for _, s := range strategies {
		simulators = append(simulators, s)
	}
	return simulation.New(simulation.Config{
		Enabled:           cfg.Simulation.Enabled,
		Interval:          cfg.Simulation.Interval,
		MinEvents:         cfg.Simulation.MinEvents,
		MaxEvents:         cfg.Simulation.MaxEvents,
		HighLoadEnabled:   cfg.Simulation.HighLoadEnabled,
		HighLoadInterval:  cfg.Simulation.HighLoadInterval,
		HighLoadBatchSize: cfg.Simulation.HighLoadBatchSize,
		Seed:              cfg.Sensors.Seed,
	}, simulators, dispatcher, logger)
}

func provideHub(broker *pubsub.Broker, logger *logging.Logger) (*ws.Hub, func()) {
	hub := ws.NewHub(broker, logger)
	return hub, hub.Close
}

func provideHTTPServer(
	repo domain.Repository,
	engine *alert.Engine,
	reporter *stats.Reporter,
	dispatcher *worker.Dispatcher,
	driver *simulation.Driver,
	hub *ws.Hub,
	logger *logging.Logger,
) *httpapi.Server {
	return httpapi.NewServer(httpapi.Deps{
		Readings:    repo,
		Alerts:      engine,
		Diagnostics: reporter,
		Submitter:   dispatcher,
		Simulation:  driver,
		Stream:      hub,
		Logger:      logger,
	})
}

func provideGRPCServer(cfg *config.Config, reporter *stats.Reporter, engine *alert.Engine, broker *pubsub.Broker, logger *logging.Logger) (*grpcapi.Server, error) {
	handler := grpcapi.NewHandler(reporter, engine, broker, logger)
	return grpcapi.NewServer(logger, handler, grpcapi.Options{
		Address:         fmt.Sprintf(":%d", cfg.GRPCPort),
		ShutdownTimeout: cfg.Pool.ShutdownTimeout,
	})
}
