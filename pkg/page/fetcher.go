// Package page fetches the raw HTML of the watched page. Fetch failures are
// transient by definition: the caller aborts the run without mutating any
// state and the next scheduled run retries from the last good artifacts.
package page

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-pkgz/repeater/v2"
)

// Fetcher retrieves the configured target page over HTTP
type Fetcher struct {
	url       string
	userAgent string
	client    *http.Client
}

// New creates a fetcher for the target URL.
func New(targetURL string, timeout time.Duration, userAgent string) *Fetcher {
	return &Fetcher{
		url:       targetURL,
		userAgent: userAgent,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		},
	}
}

// criticalError wraps an error to signal repeater to stop retrying
type criticalError struct {
	err error
}

func (e *criticalError) Error() string {
	return e.err.Error()
}

// Fetch retrieves the page body. Network errors and 5xx responses are
// retried with backoff; 4xx responses fail immediately since retrying a
// rejected request won't help.
func (f *Fetcher) Fetch(ctx context.Context) (string, error) {
	var body string

	retrier := repeater.NewBackoff(3, 500*time.Millisecond, repeater.WithMaxDelay(5*time.Second))
	err := retrier.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, http.NoBody)
		if err != nil {
			return &criticalError{err: fmt.Errorf("create request: %w", err)}
		}
		req.Header.Set("User-Agent", f.userAgent)
		addBrowserHeaders(req)

		resp, err := f.client.Do(req)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", f.url, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return &criticalError{err: fmt.Errorf("fetch %s: status %d", f.url, resp.StatusCode)}
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("fetch %s: status %d", f.url, resp.StatusCode)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read body of %s: %w", f.url, err)
		}
		body = string(data)
		return nil
	})

	if err != nil {
		if critical, ok := err.(*criticalError); ok {
			return "", critical.err
		}
		return "", err
	}
	return body, nil
}
