//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"

	"security-monitor-service/internal/application/stats"
)

func initApplication(ctx context.Context) (*application, func(), error) {
	wire.Build(
		provideConfig,
		provideLogger,
		provideRepository,
		provideBroker,
		providePublisher,
		provideRegistry,
		stats.NewCounters,
		provideFanout,
		provideAlertEngine,
		providePoolOccupancy,
		provideReporter,
		provideBroadcaster,
		providePipeline,
		provideDispatcher,
		provideDriver,
		provideHub,
		provideHTTPServer,
		provideGRPCServer,
		newApplication,
	)
	return nil, nil, nil
}
