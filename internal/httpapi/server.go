package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/siteauth"
)

const (
	gracefulShutdownTimeout = 10 * time.Second
	readTimeout             = 10 * time.Second
	writeTimeout            = 15 * time.Second
	idleTimeout             = 60 * time.Second
)

// ReadyFunc reports whether a dependency outside the engine is reachable.
type ReadyFunc func(ctx context.Context) error

// Deps are the collaborators of a Server. Engine and Logger are required.
type Deps struct {
	Addr    string
	Engine  *siteauth.Engine
	Logger  *slog.Logger
	Metrics http.Handler // mounted at /metrics when set
	Ready   ReadyFunc    // checked by /healthz after the engine
	Version string
}

// Server owns the HTTP listener.
type Server struct {
	addr    string
	engine  *siteauth.Engine
	logger  *slog.Logger
	metrics http.Handler
	ready   ReadyFunc
	version string
	server  *http.Server
}

func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}

	return &Server{
		addr:    deps.Addr,
		engine:  deps.Engine,
		logger:  deps.Logger,
		metrics: deps.Metrics,
		ready:   deps.Ready,
		version: deps.Version,
	}, nil
}

// Handler returns the full router.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start listens in the background. Listener errors other than a clean
// shutdown are logged.
func (s *Server) Start(_ context.Context) error {
	if s.server != nil {
		return errors.New("server already started")
	}

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.buildRouter(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	go func() {
		s.logger.Info("http server starting", "address", s.addr, "version", s.version)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Close drains in-flight requests for up to gracefulShutdownTimeout.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}
