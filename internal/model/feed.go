// Package model defines shared types for the proxy.
package model

import (
	"io"
	"net/http"
)

// FeedResponse is the upstream response to a feed fetch, to be relayed back
// to the browser client.
type FeedResponse struct {
	StatusCode int
	StatusText string
	Header     http.Header
	Body       io.ReadCloser
	// FinalURL is the URL that produced the response after redirects.
	FinalURL string
}

// OK reports whether the upstream answered with a 2xx status.
func (r *FeedResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
