// Package scrape downloads web pages and reduces them to readable markdown.
package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"interview-agent/internal/gate"
)

const (
	userAgent      = "Mozilla/5.0 (compatible; interview-agent/1.0)"
	maxBodyBytes   = 2 << 20
	defaultTimeout = 60 * time.Second
	acceptHTMLLike = "text/html,application/xhtml+xml,application/xml;q=0.9,text/plain;q=0.8,*/*;q=0.5"
)

// Gated sends every fetch through a concurrency gate.
type Gated struct {
	Base Fetcher
	Gate *gate.Gate
}

// Fetch acquires a gate slot for the duration of the download.
func (f *Gated) Fetch(ctx context.Context, url string) (string, error) {
	return gate.Do(ctx, f.Gate, func(ctx context.Context) (string, error) {
		return f.Base.Fetch(ctx, url)
	})
}

// StatusError is a non-200 page response. Classifiers decide on the status
// alone; the URL is only for logs.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
}

// HTTPStatus reports the response status for error classifiers.
func (e *StatusError) HTTPStatus() int {
	return e.StatusCode
}

// Fetcher returns the readable text of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// HTTPFetcher fetches pages over HTTP and converts HTML to markdown.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher returns a fetcher with the given timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPFetcher{Client: &http.Client{Timeout: timeout}}
}

// Fetch downloads url. Plain text and markdown responses are returned as is.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHTMLLike)

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/plain") || strings.Contains(contentType, "text/markdown") {
		return strings.TrimSpace(string(body)), nil
	}
	return HTMLToMarkdown(string(body))
}

var _ Fetcher = (*HTTPFetcher)(nil)
var _ Fetcher = (*Gated)(nil)
