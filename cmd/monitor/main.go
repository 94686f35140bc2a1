package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"security-monitor-service/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := initApplication(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise application: %v\n", err)
		os.Exit(1)
	}

	err = run(ctx, app)
	cleanup()
	if err != nil {
		app.Logger.Error("service stopped with error", logging.AttachError(err)...)
		os.Exit(1)
	}
	app.Logger.Info("service stopped")
}

func run(ctx context.Context, app *application) error {
	cfg := app.Config
	app.Logger.Info("starting security monitor",
		"httpPort", cfg.HTTPPort,
		"grpcPort", cfg.GRPCPort,
		"dbDriver", cfg.DbDriver,
		"corePoolSize", cfg.Pool.CoreSize,
		"maxPoolSize", cfg.Pool.MaxSize,
		"queueCapacity", cfg.Pool.QueueCapacity,
		"simulationEnabled", cfg.Simulation.Enabled,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.HTTP.ListenAndServe(gctx, fmt.Sprintf(":%d", cfg.HTTPPort))
	})
	g.Go(func() error {
		return app.GRPC.Serve(gctx)
	})
	g.Go(func() error {
		return app.Driver.Run(gctx)
	})
	g.Go(func() error {
		return app.Broadcaster.Run(gctx)
	})

	err := g.Wait()

	app.Logger.Info("draining dispatcher", "timeout", cfg.Pool.ShutdownTimeout.String())
	if dropped := app.Dispatcher.Shutdown(); dropped > 0 {
		app.Logger.Warn("dispatcher shutdown dropped pending readings", "dropped", dropped)
	}
	return err
}
