package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sclab-io/sclab-sqlserver-connector/internal/auth"
	"github.com/sclab-io/sclab-sqlserver-connector/internal/infrastructure/config"
	"github.com/sclab-io/sclab-sqlserver-connector/internal/infrastructure/logging"
	"github.com/sclab-io/sclab-sqlserver-connector/internal/metrics"
	"github.com/sclab-io/sclab-sqlserver-connector/internal/query"
	"github.com/sclab-io/sclab-sqlserver-connector/internal/recordset"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Executor runs final SQL text and returns the rows.
// Implemented by database.DB.
type Executor interface {
	Query(ctx context.Context, sqlText string) (recordset.Rows, error)
}

// TokenVerifier validates request tokens. Implemented by auth.Keys.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// HealthChecker is a component reported on GET /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger

	// Items are the API-mode query items to mount. Other modes are ignored.
	Items []query.Item

	// Executor runs bound queries.
	Executor Executor

	// QueryTimeout bounds each request's query. Zero means no limit
	// beyond the request context.
	QueryTimeout time.Duration

	// Verifier enables token authentication when set.
	Verifier TokenVerifier

	// Metrics is optional; when set request metrics are recorded and
	// GET /metrics serves the registry.
	Metrics *metrics.Registry

	// Hub is the telemetry WebSocket relay. Created when nil.
	Hub *Hub

	// Checks are the components reported on GET /health, by name.
	Checks map[string]HealthChecker

	Version string
}

// Server is the HTTP API server for the connector.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg          config.APIConfig
	wsCfg        config.WebSocketConfig
	secCfg       config.SecurityConfig
	logger       *logging.Logger
	items        []query.Item
	executor     Executor
	queryTimeout time.Duration
	verifier     TokenVerifier
	metrics      *metrics.Registry
	hub          *Hub
	checks       map[string]HealthChecker
	version      string
	startTime    time.Time

	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc // cancels background goroutines on Close()

	// mounted lists the endpoints actually routed, for the index page.
	mounted []string
	mu      sync.RWMutex
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, executor) and options
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Executor == nil {
		return nil, fmt.Errorf("query executor is required")
	}

	s := &Server{
		cfg:          deps.Config,
		wsCfg:        deps.WS,
		secCfg:       deps.Security,
		logger:       deps.Logger,
		items:        deps.Items,
		executor:     deps.Executor,
		queryTimeout: deps.QueryTimeout,
		verifier:     deps.Verifier,
		metrics:      deps.Metrics,
		hub:          deps.Hub,
		checks:       deps.Checks,
		version:      deps.Version,
		startTime:    time.Now(),
	}

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}

	return s, nil
}

// Hub returns the WebSocket hub so it can be registered as a telemetry sink.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler builds the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, builds the router, binds the listen
// address and serves in a background goroutine. The server can be stopped
// with Close().
//
// Parameters:
//   - ctx: Parent context for background goroutines
//
// Returns:
//   - error: If the listen address cannot be bound (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port)),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.listener = ln

	s.logger.Info("API server listening", "address", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

// Endpoints returns the query endpoints mounted by the last router build.
func (s *Server) Endpoints() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.mounted))
	copy(out, s.mounted)
	return out
}
