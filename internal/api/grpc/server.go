package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"security-monitor-service/internal/logging"
)

const defaultShutdownTimeout = 10 * time.Second

// Options configures the gRPC server.
type Options struct {
	// Address is used when Listener is nil, e.g. ":9090".
	Address string
	// Listener overrides Address; tests pass a bufconn listener here.
	Listener        net.Listener
	ShutdownTimeout time.Duration
	// Registerer defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// Server owns the grpc.Server lifecycle.
type Server struct {
	logger          *logging.Logger
	grpcServer      *grpc.Server
	listener        net.Listener
	shutdownTimeout time.Duration
}

func NewServer(logger *logging.Logger, service DiagnosticsServer, opts Options) (*Server, error) {
	if service == nil {
		return nil, errors.New("diagnostics service is required")
	}

	listener := opts.Listener
	if listener == nil {
		if opts.Address == "" {
			return nil, errors.New("address is required")
		}
		var err error
		listener, err = net.Listen("tcp", opts.Address)
		if err != nil {
			return nil, fmt.Errorf("listen %s: %w", opts.Address, err)
		}
	}

	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	serverMetrics, err := registerMetrics(opts.Registerer)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	logger = logger.With("component", "grpc")
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			loggingUnaryInterceptor(logger),
			serverMetrics.UnaryServerInterceptor(),
		),
		grpc.ChainStreamInterceptor(
			loggingStreamInterceptor(logger),
			serverMetrics.StreamServerInterceptor(),
		),
	)

	RegisterDiagnosticsServer(server, service)
	serverMetrics.InitializeMetrics(server)

	return &Server{
		logger:          logger,
		grpcServer:      server,
		listener:        listener,
		shutdownTimeout: shutdownTimeout,
	}, nil
}

func registerMetrics(registerer prometheus.Registerer) (*grpc_prometheus.ServerMetrics, error) {
	serverMetrics := grpc_prometheus.NewServerMetrics()
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if err := registerer.Register(serverMetrics); err != nil {
		var alreadyRegistered prometheus.AlreadyRegisteredError
		if !errors.As(err, &alreadyRegistered) {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		existing, ok := alreadyRegistered.ExistingCollector.(*grpc_prometheus.ServerMetrics)
		if !ok {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		serverMetrics = existing
	}
	return serverMetrics, nil
}

// Addr is the bound listener address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve blocks until ctx is done, then stops gracefully within the shutdown timeout.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is not initialized")
	}
	defer s.listener.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.grpcServer.Serve(s.listener)
	}()
	s.logger.Info("gRPC server started", "address", s.listener.Addr().String())

	select {
	case <-ctx.Done():
		s.logger.Info("gRPC server shutdown initiated")
		shutdownErr := s.shutdown()
		serveErr := <-errCh
		if errors.Is(serveErr, grpc.ErrServerStopped) {
			serveErr = nil
		}
		if serveErr != nil && shutdownErr == nil {
			shutdownErr = serveErr
		}
		return shutdownErr
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

func (s *Server) shutdown() error {
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("gRPC server stopped gracefully")
		return nil
	case <-time.After(s.shutdownTimeout):
		s.logger.Warn("gRPC graceful shutdown timed out, forcing stop", "timeout", s.shutdownTimeout.String())
		s.grpcServer.Stop()
		return fmt.Errorf("graceful shutdown exceeded %s", s.shutdownTimeout)
	}
}

const requestIDHeader = "x-request-id"

func loggingUnaryInterceptor(logger *logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		log := withRequestID(logger, ctx)
		ctx = log.WithContext(ctx)

		resp, err := handler(ctx, req)

		fields := []any{"method", info.FullMethod, "duration", time.Since(start)}
		if err != nil {
			log.Error("gRPC unary call completed", logging.AttachError(err, fields...)...)
		} else {
			log.Debug("gRPC unary call completed", fields...)
		}
		return resp, err
	}
}

func loggingStreamInterceptor(logger *logging.Logger) grpc.StreamServerInterceptor {
	return func(srv any, stream grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		log := withRequestID(logger, stream.Context())
		wrapped := &streamWithContext{ServerStream: stream, ctx: log.WithContext(stream.Context())}

		err := handler(srv, wrapped)

		fields := []any{"method", info.FullMethod, "duration", time.Since(start)}
		if err != nil {
			log.Error("gRPC stream call completed", logging.AttachError(err, fields...)...)
		} else {
			log.Info("gRPC stream call completed", fields...)
		}
		return err
	}
}

func withRequestID(logger *logging.Logger, ctx context.Context) *logging.Logger {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return logger
	}
	if values := md.Get(requestIDHeader); len(values) > 0 && values[0] != "" {
		return logger.With("requestId", values[0])
	}
	return logger
}

type streamWithContext struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *streamWithContext) Context() context.Context {
	return s.ctx
}
