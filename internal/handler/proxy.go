package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"feed-proxy-go/internal/client"
	"feed-proxy-go/internal/config"
	"feed-proxy-go/internal/router"
	"feed-proxy-go/internal/service"
)

// Plain-text bodies returned by the proxy route. Browser clients compare
// against these strings.
const (
	msgNoURL               = "No URL Provided"
	msgInvalidURL          = "Invalid URL Provided"
	msgUpstreamTimeout     = "Upstream request timed out"
	msgClientDisconnected  = "Client disconnected"
	msgUpstreamUnreachable = "Upstream host unreachable"
	msgTooManyRedirects    = "Too many redirects"
	msgUpstreamFailed      = "Upstream request failed"
)

// ProxyHandler relays feed fetches for the browser client.
type ProxyHandler struct {
	service *service.FeedService
	origin  string
}

// NewProxyHandler creates a ProxyHandler that answers for cfg.CORS.AllowedOrigin.
func NewProxyHandler(svc *service.FeedService, cfg *config.Config) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		origin:  cfg.CORS.AllowedOrigin,
	}
}

// Handle fetches the feed named by the url query parameter and streams it back.
func (h *ProxyHandler) Handle(r *router.Request, params url.Values) error {
	setCORSHeaders(r.Response().Header(), h.origin)

	target := params.Get("url")
	if target == "" {
		r.Logger.Error("No URL provided")
		return r.String(http.StatusBadRequest, msgNoURL)
	}

	resp, err := h.service.Fetch(r.Request().Context(), target)
	if err != nil {
		return h.mapError(r, err)
	}
	defer func() { _ = resp.Body.Close() }()

	r.Logger.Info(fmt.Sprintf("Received response from proxied url: %d - %s", resp.StatusCode, resp.StatusText),
		"proxied_status", resp.StatusCode,
	)

	if !resp.OK() {
		return r.String(resp.StatusCode, service.DescribeStatus(resp.StatusCode, resp.StatusText))
	}

	r.Response().Header().Set(echo.HeaderContentType, echo.MIMEApplicationXML)
	r.Response().WriteHeader(http.StatusOK)

	// Once the status is sent a mid-stream failure can only truncate the
	// body; log it and let the client see the short read.
	if _, err := io.Copy(r.Response(), resp.Body); err != nil {
		r.Logger.Error("streaming response body", "err", err)
	}

	return nil
}

func (h *ProxyHandler) mapError(r *router.Request, err error) error {
	if errors.Is(err, service.ErrMissingURL) {
		r.Logger.Error("No URL provided")
		return r.String(http.StatusBadRequest, msgNoURL)
	}
	if errors.Is(err, service.ErrInvalidURL) {
		r.Logger.Error("Invalid URL provided", "err", err)
		return r.String(http.StatusBadRequest, msgInvalidURL)
	}

	r.Logger.Error("proxy error", "err", err)

	if errors.Is(err, context.Canceled) {
		return r.String(http.StatusBadGateway, msgClientDisconnected)
	}

	if errors.Is(err, context.DeadlineExceeded) || client.ErrorReason(err) == "timeout" {
		return r.String(http.StatusGatewayTimeout, msgUpstreamTimeout)
	}

	if errors.Is(err, client.ErrTooManyRedirects) {
		return r.String(http.StatusBadGateway, msgTooManyRedirects)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return r.String(http.StatusBadGateway, msgUpstreamUnreachable)
	}

	return r.String(http.StatusBadGateway, msgUpstreamFailed)
}
