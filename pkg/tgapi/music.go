package tgapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Timeouts and retry budgets per endpoint.
const (
	searchTimeout  = 12 * time.Second
	resolveTimeout = 15 * time.Second
	readRetries    = 2
)

// MusicService talks to the catalog endpoints.
type MusicService struct {
	client *Client
}

// Search queries the catalog. A blank query returns no results without
// touching the network.
func (s *MusicService) Search(ctx context.Context, query string) ([]Track, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}

	var body json.RawMessage
	err := s.client.call(ctx, request{
		op:      "search",
		method:  http.MethodGet,
		path:    "/api/music/search",
		query:   url.Values{"q": {q}},
		timeout: searchTimeout,
		retries: readRetries,
	}, &body)
	if err != nil {
		return nil, err
	}

	return decodeTrackList(body)
}

// Resolve asks the backend for a directly playable URL for id.
//
// Returns ErrNoStream if the backend answers successfully but without a URL.
func (s *MusicService) Resolve(ctx context.Context, id string) (Resolved, error) {
	return s.ResolveWith(ctx, id, resolveTimeout, readRetries)
}

// ResolveWith is Resolve with an explicit per-attempt timeout and retry
// budget.
func (s *MusicService) ResolveWith(ctx context.Context, id string, timeout time.Duration, retries int) (Resolved, error) {
	if id == "" {
		return Resolved{}, fmt.Errorf("tgapi: resolve: empty track id")
	}

	var resp resolveResponse
	err := s.client.call(ctx, request{
		op:      "resolve",
		method:  http.MethodGet,
		path:    "/api/music/resolve/" + url.PathEscape(id),
		timeout: timeout,
		retries: retries,
	}, &resp)
	if err != nil {
		return Resolved{}, err
	}

	if resp.URL == "" {
		return Resolved{}, ErrNoStream
	}

	return Resolved{URL: resp.URL, HLS: resp.HLS}, nil
}

// DownloadURL returns the proxy streaming URL for id. It performs no I/O.
func (s *MusicService) DownloadURL(id string) string {
	return s.client.baseURL + "/api/music/download/" + url.PathEscape(id)
}
