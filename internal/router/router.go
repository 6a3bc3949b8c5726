// Package router maps exact request paths to handlers and drives each
// invocation with a request-scoped logger.
package router

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"feed-proxy-go/internal/reqctx"
)

var (
	// ErrNoFallback is returned by Compile when no fallback handler is registered.
	ErrNoFallback = errors.New("router: no fallback handler registered")
	// ErrDuplicateRoute is returned by Compile when two routes share an absolute path.
	ErrDuplicateRoute = errors.New("router: duplicate route")
	// ErrUnroutable is returned by a dispatcher that has neither a matching
	// route nor a fallback. Compile rejects such tables, so seeing it live
	// means the table was bypassed.
	ErrUnroutable = errors.New("router: unhandled route with no fallback")
)

// Request is the value handed to every route handler: the echo context plus
// the request identity and a logger carrying it.
type Request struct {
	echo.Context

	ID       string
	ClientIP string
	Logger   *slog.Logger
}

// HandlerFunc handles one routed request. Errors are returned to echo unchanged.
type HandlerFunc func(r *Request, params url.Values) error

// Route is a registered handler bound to an absolute path.
type Route struct {
	Path    string
	Handler HandlerFunc
}

// Router collects routes under a root prefix. It is not safe for concurrent
// registration; build it once, then Compile.
type Router struct {
	root     string
	routes   []Route
	fallback HandlerFunc
	logger   *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithRoot sets the prefix prepended to every registered path. Default "/".
func WithRoot(root string) Option {
	return func(r *Router) { r.root = root }
}

// WithLogger sets the logger request loggers are derived from.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

// New creates an empty Router.
func New(opts ...Option) *Router {
	r := &Router{
		root:   "/",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register appends a route. path is relative to the router root.
func (r *Router) Register(path string, h HandlerFunc) {
	r.routes = append(r.routes, Route{Path: path, Handler: h})
}

// Fallback sets the handler for unmatched paths. A later call replaces an
// earlier one.
func (r *Router) Fallback(h HandlerFunc) {
	r.fallback = h
}

// Routes returns the registered routes with absolute paths, in registration order.
func (r *Router) Routes() []Route {
	out := make([]Route, len(r.routes))
	for i, rt := range r.routes {
		out[i] = Route{Path: joinPath(r.root, rt.Path), Handler: rt.Handler}
	}
	return out
}

// Compile validates the route table and returns an immutable dispatcher.
func (r *Router) Compile() (echo.HandlerFunc, error) {
	if r.fallback == nil {
		return nil, ErrNoFallback
	}

	table := make(map[string]HandlerFunc, len(r.routes))
	for _, rt := range r.Routes() {
		if rt.Handler == nil {
			return nil, fmt.Errorf("router: nil handler for %q", rt.Path)
		}
		if _, ok := table[rt.Path]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateRoute, rt.Path)
		}
		table[rt.Path] = rt.Handler
	}

	d := &dispatcher{
		table:    table,
		fallback: r.fallback,
		logger:   r.logger,
	}
	return d.serve, nil
}

type dispatcher struct {
	table    map[string]HandlerFunc
	fallback HandlerFunc
	logger   *slog.Logger
}

func (d *dispatcher) serve(c echo.Context) error {
	req := c.Request()
	params := req.URL.Query()
	info := reqctx.New(req)

	handler, matched := d.table[info.Path]

	logger := d.logger.With(info.LogAttrs()...)
	c.SetRequest(req.WithContext(reqctx.NewContext(req.Context(), info, logger)))
	c.Response().Header().Set(echo.HeaderXRequestID, info.ID)

	r := &Request{
		Context:  c,
		ID:       info.ID,
		ClientIP: info.ClientIP,
		Logger:   logger,
	}

	logger.Info("routing request")

	if matched {
		return handler(r, params)
	}
	if d.fallback != nil {
		return d.fallback(r, params)
	}

	logger.Error("unhandled route with no fallback")
	return fmt.Errorf("%w: %s", ErrUnroutable, info.Path)
}

// joinPath joins root and path with exactly one slash between them.
func joinPath(root, path string) string {
	root = "/" + strings.Trim(root, "/")
	path = strings.TrimLeft(path, "/")
	if root == "/" {
		return "/" + path
	}
	if path == "" {
		return root
	}
	return root + "/" + path
}
