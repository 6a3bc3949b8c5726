// Package service implements the feed fetch logic behind the proxy route.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"feed-proxy-go/internal/model"
	"feed-proxy-go/internal/reqctx"
)

var (
	// ErrMissingURL is returned when the request carries no target URL.
	ErrMissingURL = errors.New("no url provided")
	// ErrInvalidURL is returned when the target is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid url")
)

// Fetcher performs the outbound fetch. *client.FeedClient implements it.
type Fetcher interface {
	Get(ctx context.Context, target string) (*model.FeedResponse, error)
}

// FeedService validates feed URLs and fetches them upstream.
type FeedService struct {
	fetcher Fetcher
	logger  *slog.Logger
}

// NewFeedService creates a FeedService.
func NewFeedService(f Fetcher, logger *slog.Logger) *FeedService {
	return &FeedService{
		fetcher: f,
		logger:  logger.With("component", "feed_service"),
	}
}

// Fetch validates target and fetches it. The caller is responsible for
// closing the response body.
func (s *FeedService) Fetch(ctx context.Context, target string) (*model.FeedResponse, error) {
	u, err := ParseTarget(target)
	if err != nil {
		return nil, err
	}

	reqctx.Logger(ctx, s.logger).Debug("fetching feed", "host", u.Host)

	resp, err := s.fetcher.Get(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u.Host, err)
	}
	return resp, nil
}

// ParseTarget checks that target is an absolute http or https URL.
func ParseTarget(target string) (*url.URL, error) {
	if target == "" {
		return nil, ErrMissingURL
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return u, nil
}

// Messages returned to the browser for non-2xx upstream responses. Clients
// match on these strings.
const (
	MsgAuthRequired = "Authentication or authorization required"
	MsgRateLimited  = "Too many requests, rate-limited"
)

// DescribeStatus returns the message relayed to the client for a non-2xx
// upstream status.
func DescribeStatus(code int, text string) string {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return MsgAuthRequired
	case http.StatusTooManyRequests:
		return MsgRateLimited
	}
	if code >= 400 && code < 500 {
		return fmt.Sprintf("Unknown client error occurred: %d - %s", code, text)
	}
	return fmt.Sprintf("Server returned an error: %d - %s", code, text)
}
