package handler

import (
	"net/http"
	"net/url"

	"feed-proxy-go/internal/config"
	"feed-proxy-go/internal/router"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(r *router.Request, _ url.Values) error {
	return r.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns proxy status information.
func (h *HealthHandler) Status(r *router.Request, _ url.Values) error {
	return r.JSON(http.StatusOK, map[string]string{
		"status":         "ok",
		"version":        string(h.version),
		"environment":    h.cfg.Environment,
		"allowed_origin": h.cfg.CORS.AllowedOrigin,
	})
}
