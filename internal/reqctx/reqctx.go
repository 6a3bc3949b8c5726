// Package reqctx builds the per-request identity carried through routing and logging.
package reqctx

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// Info describes a single inbound request. It lives only for the duration
// of that request.
type Info struct {
	ID       string
	ClientIP string // empty when undeterminable
	Path     string
	Params   map[string]string
}

// LogAttrs returns the request fields as slog key/value pairs. An unknown client IP
// is logged as null.
func (i *Info) LogAttrs() []any {
	var ip any
	if i.ClientIP != "" {
		ip = i.ClientIP
	}
	return []any{
		"request_id", i.ID,
		"client_ip", ip,
		"path", i.Path,
		"params", i.Params,
	}
}

// New builds the Info for r: a fresh request id, the resolved client IP,
// the path and a flattened copy of the query parameters.
func New(r *http.Request) *Info {
	return &Info{
		ID:       GenerateRequestID(),
		ClientIP: ResolveClientIP(r),
		Path:     r.URL.Path,
		Params:   FlattenParams(r.URL.Query()),
	}
}

// GenerateRequestID returns 16 random bytes encoded as 32 lowercase hex characters.
func GenerateRequestID() string {
	var b [16]byte
	// crypto/rand.Read never returns an error since Go 1.24.
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// ResolveClientIP returns the first non-empty of X-Forwarded-For,
// X-Real-IP and the connection's remote address, or "" when none is set.
//
// The forwarding headers are taken at face value. The result is only
// trustworthy when the server sits behind an edge proxy that overwrites
// them; never use it for authorization.
func ResolveClientIP(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); v != "" {
		return v
	}
	if v := strings.TrimSpace(r.Header.Get("X-Real-IP")); v != "" {
		return v
	}
	if r.RemoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// FlattenParams collapses query values to one value per key, last value wins.
func FlattenParams(q url.Values) map[string]string {
	out := make(map[string]string, len(q))
	for k, vs := range q {
		if len(vs) == 0 {
			out[k] = ""
			continue
		}
		out[k] = vs[len(vs)-1]
	}
	return out
}

type ctxKey int

const (
	infoKey ctxKey = iota
	loggerKey
)

// NewContext returns a copy of ctx carrying info and its request logger.
func NewContext(ctx context.Context, info *Info, logger *slog.Logger) context.Context {
	ctx = context.WithValue(ctx, infoKey, info)
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the Info stored in ctx, if any.
func FromContext(ctx context.Context) (*Info, bool) {
	info, ok := ctx.Value(infoKey).(*Info)
	return info, ok
}

// Logger returns the request logger stored in ctx, or fallback.
func Logger(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
		return l
	}
	return fallback
}
