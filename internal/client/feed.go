// Package client provides the outbound HTTP client used to fetch feeds.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"feed-proxy-go/internal/config"
	"feed-proxy-go/internal/metrics"
	"feed-proxy-go/internal/model"
	"feed-proxy-go/internal/reqctx"
)

// ErrTooManyRedirects is returned when the redirect chain exceeds upstream.max_redirects.
var ErrTooManyRedirects = errors.New("too many redirects")

// feedAccept asks for feed formats first without refusing anything else.
const feedAccept = "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.9, */*;q=0.8"

// FeedClient fetches arbitrary feed URLs, following redirects.
type FeedClient struct {
	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewFeedClient creates a FeedClient with connection pooling, a bounded
// redirect chain and an overall timeout per fetch.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewFeedClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *FeedClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	maxRedirects := cfg.Upstream.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 10
	}

	return &FeedClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("%w: stopped after %d", ErrTooManyRedirects, maxRedirects)
				}
				return nil
			},
		},
		userAgent: cfg.Upstream.UserAgent,
		logger:    logger.With("component", "feed_client"),
		metrics:   m,
	}
}

// Get fetches target with a GET request and returns the final response
// after redirects. The caller is responsible for closing the response body.
// ctx bounds the whole fetch: when it is canceled (e.g. the inbound client
// disconnects) the upstream request is canceled too.
func (c *FeedClient) Get(ctx context.Context, target string) (*model.FeedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Accept", feedAccept)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	logger := reqctx.Logger(ctx, c.logger)
	logger.Debug("upstream request", "url", target)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via FeedResponse
	duration := time.Since(start).Seconds()

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues("error").Observe(duration)
			c.metrics.UpstreamErrors.WithLabelValues(ErrorReason(err)).Inc()
		}
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	if c.metrics != nil {
		c.metrics.UpstreamDuration.WithLabelValues("response").Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(metrics.StatusClass(resp.StatusCode)).Inc()
	}

	return &model.FeedResponse{
		StatusCode: resp.StatusCode,
		StatusText: statusText(resp),
		Header:     resp.Header,
		Body:       resp.Body,
		FinalURL:   resp.Request.URL.String(),
	}, nil
}

// ErrorReason classifies a failed fetch into a bounded label.
func ErrorReason(err error) string {
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded), isTimeout(err):
		return "timeout"
	case errors.Is(err, ErrTooManyRedirects):
		return "redirects"
	case errors.As(err, &dnsErr):
		return "dns"
	default:
		return "transport"
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// statusText returns the reason phrase sent by the upstream, e.g. "Not Found"
// for "404 Not Found", falling back to the standard text for the code.
func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		return http.StatusText(resp.StatusCode)
	}
	return text
}
