package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrMediaTooLarge is returned when a download exceeds the size cap.
var ErrMediaTooLarge = errors.New("media too large")

// Fetcher downloads provider-hosted media.
type Fetcher interface {
	// Fetch returns the body and the served Content-Type.
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// HTTPFetcher GETs media with HTTP basic auth (the provider's account SID and
// auth token), bounded by a timeout and a byte cap.
type HTTPFetcher struct {
	client   *http.Client
	username string
	password string
	maxBytes int64
}

// NewHTTPFetcher builds a fetcher. Redirects are followed; provider media
// URLs redirect to short-lived storage links.
func NewHTTPFetcher(username, password string, timeout time.Duration, maxBytes int64) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &HTTPFetcher{
		client:   &http.Client{Timeout: timeout},
		username: username,
		password: password,
		maxBytes: maxBytes,
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("content.HTTPFetcher.Fetch: %w", err)
	}
	if f.username != "" {
		req.SetBasicAuth(f.username, f.password)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("content.HTTPFetcher.Fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("content.HTTPFetcher.Fetch: unexpected status %d", resp.StatusCode)
	}
	if resp.ContentLength > f.maxBytes {
		return nil, "", fmt.Errorf("content.HTTPFetcher.Fetch: %w: declared %d bytes", ErrMediaTooLarge, resp.ContentLength)
	}

	data, err := readAllWithLimit(resp.Body, f.maxBytes)
	if err != nil {
		return nil, "", fmt.Errorf("content.HTTPFetcher.Fetch: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// readAllWithLimit reads at most maxBytes, failing instead of truncating.
func readAllWithLimit(r io.Reader, maxBytes int64) ([]byte, error) {
	limited := &io.LimitedReader{R: r, N: maxBytes + 1}
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: max %d bytes", ErrMediaTooLarge, maxBytes)
	}
	return data, nil
}
