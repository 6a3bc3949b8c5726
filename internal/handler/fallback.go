package handler

import (
	"net/http"
	"net/url"

	"feed-proxy-go/internal/config"
	"feed-proxy-go/internal/router"
)

const msgNotFound = "Not Found"

// NotFoundHandler answers every path the router does not know.
type NotFoundHandler struct {
	origin string
}

// NewNotFoundHandler creates a NotFoundHandler. Its 404s carry the same CORS
// pair as the proxy route so the browser can read them.
func NewNotFoundHandler(cfg *config.Config) *NotFoundHandler {
	return &NotFoundHandler{origin: cfg.CORS.AllowedOrigin}
}

// Handle logs the unknown path and returns 404.
func (h *NotFoundHandler) Handle(r *router.Request, _ url.Values) error {
	r.Logger.Error("Unrecognized path")
	setCORSHeaders(r.Response().Header(), h.origin)
	return r.String(http.StatusNotFound, msgNotFound)
}
