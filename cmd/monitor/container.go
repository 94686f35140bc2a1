package main

import (
	grpcapi "security-monitor-service/internal/api/grpc"
	httpapi "security-monitor-service/internal/api/http"
	"security-monitor-service/internal/application/simulation"
	"security-monitor-service/internal/application/stats"
	"security-monitor-service/internal/application/worker"
	"security-monitor-service/internal/config"
	"security-monitor-service/internal/logging"
)

type application struct {
	Config      *config.Config
	Logger      *logging.Logger
	Dispatcher  *worker.Dispatcher
	Driver      *simulation.Driver
	Broadcaster *stats.Broadcaster
	HTTP        *httpapi.Server
	GRPC        *grpcapi.Server
}

func newApplication(
	cfg *config.Config,
	logger *logging.Logger,
	dispatcher *worker.Dispatcher,
	driver *simulation.Driver,
	broadcaster *stats.Broadcaster,
	httpServer *httpapi.Server,
	grpcServer *grpcapi.Server,
) *application {
	return &application{
		Config:      cfg,
		Logger:      logger,
		Dispatcher:  dispatcher,
		Driver:      driver,
		Broadcaster: broadcaster,
		HTTP:        httpServer,
		GRPC:        grpcServer,
	}
}
