package router

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feed-proxy-go/internal/reqctx"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func text(body string, status int) HandlerFunc {
	return func(r *Request, _ url.Values) error {
		return r.String(status, body)
	}
}

// serve mounts h the way the server does and performs one request.
func serve(t *testing.T, h echo.HandlerFunc, target string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.Any("/*", h)
	req := httptest.NewRequest(http.MethodGet, target, http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCompile_RequiresFallback(t *testing.T) {
	r := New(WithLogger(discardLogger()))
	r.Register("proxy", text("ok", http.StatusOK))

	_, err := r.Compile()
	require.ErrorIs(t, err, ErrNoFallback)
}

func TestCompile_RejectsDuplicateRoutes(t *testing.T) {
	r := New(WithLogger(discardLogger()))
	r.Register("proxy", text("a", http.StatusOK))
	r.Register("/proxy", text("b", http.StatusOK))
	r.Fallback(text("Not Found", http.StatusNotFound))

	_, err := r.Compile()
	require.ErrorIs(t, err, ErrDuplicateRoute)
	assert.Contains(t, err.Error(), "/proxy")
}

func TestCompile_RejectsNilHandler(t *testing.T) {
	r := New(WithLogger(discardLogger()))
	r.Register("proxy", nil)
	r.Fallback(text("Not Found", http.StatusNotFound))

	_, err := r.Compile()
	require.Error(t, err)
}

func TestRoutes_JoinsRoot(t *testing.T) {
	tests := []struct {
		root string
		path string
		want string
	}{
		{"/", "proxy", "/proxy"},
		{"/", "/proxy", "/proxy"},
		{"", "proxy", "/proxy"},
		{"/api/", "/proxy", "/api/proxy"},
		{"/api", "proxy", "/api/proxy"},
		{"api//", "//proxy", "/api/proxy"},
		{"/api/", "", "/api"},
	}

	for _, tt := range tests {
		t.Run(tt.root+"+"+tt.path, func(t *testing.T) {
			r := New(WithRoot(tt.root))
			r.Register(tt.path, text("ok", http.StatusOK))
			routes := r.Routes()
			require.Len(t, routes, 1)
			assert.Equal(t, tt.want, routes[0].Path)
		})
	}
}

func TestDispatch_ExactMatch(t *testing.T) {
	r := New(WithLogger(discardLogger()))
	r.Register("proxy", text("proxied", http.StatusOK))
	r.Fallback(text("Not Found", http.StatusNotFound))
	h, err := r.Compile()
	require.NoError(t, err)

	tests := []struct {
		target     string
		wantStatus int
		wantBody   string
	}{
		{"/proxy", http.StatusOK, "proxied"},
		{"/proxy?url=x", http.StatusOK, "proxied"},
		{"/proxy/", http.StatusNotFound, "Not Found"},
		{"/PROXY", http.StatusNotFound, "Not Found"},
		{"/proxy/extra", http.StatusNotFound, "Not Found"},
		{"/", http.StatusNotFound, "Not Found"},
		{"/other", http.StatusNotFound, "Not Found"},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := serve(t, h, tt.target)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestDispatch_RootPrefix(t *testing.T) {
	r := New(WithRoot("/api/"), WithLogger(discardLogger()))
	r.Register("proxy", text("proxied", http.StatusOK))
	r.Fallback(text("Not Found", http.StatusNotFound))
	h, err := r.Compile()
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, serve(t, h, "/api/proxy").Code)
	assert.Equal(t, http.StatusNotFound, serve(t, h, "/proxy").Code)
}

func TestDispatch_FallbackLastWins(t *testing.T) {
	r := New(WithLogger(discardLogger()))
	r.Fallback(text("first", http.StatusNotFound))
	r.Fallback(text("second", http.StatusNotFound))
	h, err := r.Compile()
	require.NoError(t, err)

	assert.Equal(t, "second", serve(t, h, "/nope").Body.String())
}

func TestDispatch_PassesParamsAndIdentity(t *testing.T) {
	var (
		gotParams url.Values
		gotReq    *Request
		ctxInfo   *reqctx.Info
	)
	r := New(WithLogger(discardLogger()))
	r.Register("proxy", func(req *Request, params url.Values) error {
		gotParams = params
		gotReq = req
		ctxInfo, _ = reqctx.FromContext(req.Request().Context())
		return req.NoContent(http.StatusNoContent)
	})
	r.Fallback(text("Not Found", http.StatusNotFound))
	h, err := r.Compile()
	require.NoError(t, err)

	e := echo.New()
	e.Any("/*", h)
	req := httptest.NewRequest(http.MethodGet, "/proxy?url=https%3A%2F%2Fexample.com%2Ffeed&a=1&a=2", http.NoBody)
	req.Header.Set("X-Forwarded-For", "1.2.3.4")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, gotReq)
	assert.Equal(t, "https://example.com/feed", gotParams.Get("url"))
	assert.Equal(t, []string{"1", "2"}, gotParams["a"])
	assert.Equal(t, "1.2.3.4", gotReq.ClientIP)
	assert.Len(t, gotReq.ID, 32)
	assert.Equal(t, gotReq.ID, rec.Header().Get(echo.HeaderXRequestID))
	require.NotNil(t, ctxInfo)
	assert.Equal(t, gotReq.ID, ctxInfo.ID)
	assert.Equal(t, "2", ctxInfo.Params["a"])
}

func TestDispatch_LogsRoutingWithRequestFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := New(WithLogger(logger))
	r.Register("proxy", func(req *Request, _ url.Values) error {
		req.Logger.Info("inside handler")
		return req.NoContent(http.StatusOK)
	})
	r.Fallback(text("Not Found", http.StatusNotFound))
	h, err := r.Compile()
	require.NoError(t, err)

	rec := serve(t, h, "/proxy?url=x")
	require.Equal(t, http.StatusOK, rec.Code)

	var lines []map[string]any
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 2)

	routing := lines[0]
	assert.Equal(t, "routing request", routing["msg"])
	assert.Equal(t, "INFO", routing["level"])
	assert.Equal(t, "/proxy", routing["path"])
	assert.Equal(t, rec.Header().Get(echo.HeaderXRequestID), routing["request_id"])
	assert.Equal(t, "192.0.2.1", routing["client_ip"])
	assert.Equal(t, map[string]any{"url": "x"}, routing["params"])

	assert.Equal(t, "inside handler", lines[1]["msg"])
	assert.Equal(t, routing["request_id"], lines[1]["request_id"])
}

func TestDispatch_HandlerErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	r := New(WithLogger(discardLogger()))
	r.Register("proxy", func(*Request, url.Values) error { return boom })
	r.Fallback(text("Not Found", http.StatusNotFound))
	h, err := r.Compile()
	require.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/proxy", http.NoBody)
	c := e.NewContext(req, httptest.NewRecorder())

	assert.ErrorIs(t, h(c), boom)
}

func TestDispatch_NoFallbackIsUnroutable(t *testing.T) {
	d := &dispatcher{table: map[string]HandlerFunc{}, logger: discardLogger()}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/missing", http.NoBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := d.serve(c)
	require.ErrorIs(t, err, ErrUnroutable)
	assert.Contains(t, err.Error(), "/missing")
}

func TestDispatch_ConcurrentRequestIDsAreUnique(t *testing.T) {
	r := New(WithLogger(discardLogger()))
	r.Register("proxy", func(req *Request, _ url.Values) error {
		return req.String(http.StatusOK, req.ID)
	})
	r.Fallback(text("Not Found", http.StatusNotFound))
	h, err := r.Compile()
	require.NoError(t, err)

	e := echo.New()
	e.Any("/*", h)

	const n = 50
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodGet, "/proxy", http.NoBody)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			ids[i] = rec.Body.String()
		}()
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for _, id := range ids {
		require.Len(t, id, 32)
		require.False(t, seen[id], "request id %q reused", id)
		seen[id] = true
	}
}
