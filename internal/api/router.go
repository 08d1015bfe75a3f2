package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sclab-io/sclab-sqlserver-connector/internal/query"
)

// compressionLevel is the gzip level for response compression.
const compressionLevel = 5

// System route paths. Query items may not use these.
const (
	routeIndex   = "/"
	routeHealth  = "/health"
	routeMetrics = "/metrics"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.securityHeadersMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(middleware.StripSlashes)
	r.Use(middleware.Compress(compressionLevel))
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusNotFound, msgNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
	})

	// Health check (no auth required)
	r.Get(routeHealth, s.handleHealth)

	// Protected routes
	r.Group(func(r chi.Router) {
		if s.verifier != nil {
			r.Use(s.authMiddleware)
		}

		r.Get(routeIndex, s.handleIndex)

		if s.metrics != nil {
			r.Method(http.MethodGet, routeMetrics, s.metrics.Handler())
		}

		if s.wsCfg.Enabled {
			r.Get(s.wsPath(), s.handleWebSocket)
		}

		s.mountQueryRoutes(r)
	})

	return r
}

// mountQueryRoutes registers one GET route per API item.
//
// Items whose endpoint collides with a system route, or that contain
// router pattern characters, are skipped with an error log.
func (s *Server) mountQueryRoutes(r chi.Router) {
	mounted := make([]string, 0, len(s.items))
	seen := make(map[string]bool, len(s.items))

	for _, item := range s.items {
		if item.Mode != query.ModeAPI || item.API == nil {
			continue
		}
		endpoint := normalizeEndpoint(item.API.Endpoint)

		switch {
		case s.isSystemRoute(endpoint):
			s.logger.Error("query endpoint collides with a system route, skipped",
				"source", item.Source,
				"endpoint", endpoint,
			)
			continue
		case strings.ContainsAny(endpoint, "{}*"):
			s.logger.Error("query endpoint contains route pattern characters, skipped",
				"source", item.Source,
				"endpoint", endpoint,
			)
			continue
		case seen[endpoint]:
			s.logger.Error("duplicate query endpoint, skipped",
				"source", item.Source,
				"endpoint", endpoint,
			)
			continue
		}

		seen[endpoint] = true
		r.Get(endpoint, s.queryHandler(item))
		mounted = append(mounted, endpoint)

		s.logger.Info("API query endpoint generated",
			"source", item.Source,
			"endpoint", endpoint,
			"sql", item.Template,
		)
	}

	s.mu.Lock()
	s.mounted = mounted
	s.mu.Unlock()
}

// normalizeEndpoint drops trailing slashes, which routing ignores.
func normalizeEndpoint(endpoint string) string {
	trimmed := strings.TrimRight(endpoint, "/")
	if trimmed == "" {
		return "/"
	}
	return trimmed
}

// isSystemRoute reports whether endpoint is reserved.
func (s *Server) isSystemRoute(endpoint string) bool {
	switch normalizeEndpoint(endpoint) {
	case routeIndex, routeHealth, routeMetrics, s.wsPath():
		return true
	}
	return false
}

// wsPath returns the WebSocket route path.
func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}

// handleIndex returns service identification and the mounted endpoints.
func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":   "sclab-sqlserver-connector",
		"version":   s.version,
		"endpoints": s.Endpoints(),
	})
}
