// Package fetch retrieves remote artifact bytes over HTTP.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"launcher-core/internal/launcher"
)

// HTTPFetcher implements launcher.Fetcher.
//
// Client errors other than 408 and 429 wrap launcher.ErrPermanentFetch;
// server errors and network failures are transient.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

var _ launcher.Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates a fetcher whose requests time out after timeout.
func NewHTTPFetcher(timeout time.Duration, userAgent string) *HTTPFetcher {
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("fetch %q: unsupported url: %w", rawURL, launcher.ErrPermanentFetch)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, launcher.ErrPermanentFetch)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	if resp.StatusCode == http.StatusOK {
		return resp.Body, nil
	}

	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
	if permanentStatus(resp.StatusCode) {
		return nil, fmt.Errorf("fetch %s: %s: %w", rawURL, resp.Status, launcher.ErrPermanentFetch)
	}
	return nil, fmt.Errorf("fetch %s: %s", rawURL, resp.Status)
}

func permanentStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return false
	}
	return code >= 400 && code < 500
}
