package handler

import (
	"fmt"
	"log/slog"

	"github.com/labstack/echo/v4"

	"feed-proxy-go/internal/config"
	"feed-proxy-go/internal/metrics"
	"feed-proxy-go/internal/router"
)

// NewRouter builds the route table under cfg.Server.Root.
func NewRouter(cfg *config.Config, logger *slog.Logger, proxy *ProxyHandler, health *HealthHandler, notFound *NotFoundHandler) *router.Router {
	r := router.New(
		router.WithRoot(cfg.Server.Root),
		router.WithLogger(logger.With("component", "router")),
	)
	r.Register("proxy", proxy.Handle)
	r.Register("healthz", health.Healthz)
	r.Register("status", health.Status)
	r.Fallback(notFound.Handle)
	return r
}

// RegisterRoutes compiles rt and mounts it on e for every path echo does
// not serve itself. A table without a fallback fails here, before the
// server binds.
func RegisterRoutes(e *echo.Echo, rt *router.Router, cfg *config.Config, m *metrics.Metrics) error {
	dispatch, err := rt.Compile()
	if err != nil {
		return fmt.Errorf("compile routes: %w", err)
	}

	if cfg.Metrics.Enabled {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(m.Handler()))
	}

	e.Any("/*", dispatch)
	return nil
}

// KnownPaths returns the absolute paths served, for bounded metric labels.
func KnownPaths(rt *router.Router, cfg *config.Config) []string {
	routes := rt.Routes()
	out := make([]string, 0, len(routes)+1)
	for _, r := range routes {
		out = append(out, r.Path)
	}
	if cfg.Metrics.Enabled {
		out = append(out, cfg.Metrics.Path)
	}
	return out
}
