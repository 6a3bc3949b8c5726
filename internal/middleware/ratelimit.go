package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"feed-proxy-go/internal/reqctx"
)

const msgRateLimited = "Too many requests, rate-limited"

// RateLimiter returns a per-client token bucket limiter. Clients are keyed
// by the same IP the router logs, so it inherits that IP's trust caveats.
func RateLimiter(rps float64) echo.MiddlewareFunc {
	store := echomw.NewRateLimiterMemoryStore(rate.Limit(rps))
	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return reqctx.ResolveClientIP(c.Request()), nil
		},
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return c.String(http.StatusTooManyRequests, msgRateLimited)
		},
		ErrorHandler: func(c echo.Context, _ error) error {
			return c.String(http.StatusForbidden, "Client could not be identified")
		},
	})
}
