package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"feed-proxy-go/internal/client"
	"feed-proxy-go/internal/config"
	"feed-proxy-go/internal/metrics"
	"feed-proxy-go/internal/service"
)

const testOrigin = "https://reader.example.com"

func testConfig() *config.Config {
	return &config.Config{
		Environment: config.EnvProduction,
		Server:      config.ServerConfig{Root: "/"},
		CORS:        config.CORSConfig{AllowedOrigin: testOrigin},
		Upstream: config.UpstreamConfig{
			TimeoutSeconds:  10,
			IdleConnections: 10,
			MaxRedirects:    5,
			UserAgent:       "feed-proxy-test",
		},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer wires the full route table onto a fresh echo instance.
func newTestServer(t *testing.T, cfg *config.Config) *echo.Echo {
	t.Helper()
	logger := discardLogger()
	m := metrics.New()

	fc := client.NewFeedClient(cfg, logger, m)
	svc := service.NewFeedService(fc, logger)
	rt := NewRouter(cfg, logger, NewProxyHandler(svc, cfg), NewHealthHandler(cfg, "test"), NewNotFoundHandler(cfg))

	e := echo.New()
	if err := RegisterRoutes(e, rt, cfg, m); err != nil {
		t.Fatalf("RegisterRoutes: %v", err)
	}
	return e
}

func do(e *echo.Echo, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func assertCORS(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	if v := rec.Header().Get("Access-Control-Allow-Origin"); v != testOrigin {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", v, testOrigin)
	}
	if v := rec.Header().Get("Vary"); v != "Origin" {
		t.Errorf("Vary = %q, want %q", v, "Origin")
	}
}

func slogJSON(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, nil))
}
