package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"security-monitor-service/internal/application/worker"
	"security-monitor-service/internal/domain"
	"security-monitor-service/internal/infrastructure/metrics"
	"security-monitor-service/internal/logging"
)

const defaultShutdownTimeout = 10 * time.Second

// AlertService is the alert lifecycle used by the REST API.
type AlertService interface {
	ListActive(ctx context.Context) ([]domain.Alert, error)
	ListActivePrioritized(ctx context.Context) ([]domain.Alert, error)
	Acknowledge(ctx context.Context, id int64, actor string) (domain.Alert, error)
	Resolve(ctx context.Context, id int64, actor string) (domain.Alert, error)
}

// DiagnosticsProvider builds the stats snapshot.
type DiagnosticsProvider interface {
	Diagnostics(ctx context.Context) (domain.Diagnostics, error)
}

// Submitter hands readings to the dispatcher.
type Submitter interface {
	Submit(reading domain.Reading) (*worker.Future, error)
}

// SimulationControl toggles and triggers the batch driver.
type SimulationControl interface {
	Enable()
	Disable()
	Enabled() bool
	Tick(ctx context.Context, n int) *worker.BatchFuture
}

// Deps wires the handlers. Nil members disable their routes.
type Deps struct {
	Readings    domain.ReadingReader
	Alerts      AlertService
	Diagnostics DiagnosticsProvider
	Submitter   Submitter
	Simulation  SimulationControl
	Stream      http.Handler
	Logger      *logging.Logger
}

// Server exposes the REST, metrics and websocket endpoints.
type Server struct {
	router chi.Router
	logger *logging.Logger
}

func NewServer(deps Deps) *Server {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		metrics.HTTPMiddleware(routePattern),
	)

	h := &handler{deps: deps, logger: deps.Logger.With("component", "http")}
	registerRoutes(router, h)

	return &Server{router: router, logger: h.logger}
}

// Router returns the configured chi router for reuse in tests or external HTTP servers.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	s.logger.Info("HTTP server started", "address", listener.Addr().String())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		s.logger.Info("HTTP server stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}
