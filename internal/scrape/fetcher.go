// Package scrape fetches and extracts content from configured external
// sources under politeness constraints, and orchestrates concurrent searches
// across them.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const (
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) Faultline/1.0 (+maintenance knowledge search)"
	maxBodyBytes     = 2 << 20 // 2MB per page
	fetchRetries     = 1
)

// ErrSourceUnavailable marks a per-source fetch failure. It never propagates
// past the search batch boundary.
var ErrSourceUnavailable = errors.New("source unavailable")

// ErrDisallowed marks a page the host's robots.txt excludes.
var ErrDisallowed = errors.New("disallowed by robots policy")

// Fetcher fetches a single external page with browser-like headers, a bounded
// timeout, a small retry budget, and an optional robots.txt policy check.
type Fetcher struct {
	client    *http.Client
	robots    *robotsChecker
	userAgent string
}

// NewFetcher creates a Fetcher with the given per-request timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		robots:    newRobotsChecker(defaultUserAgent, timeout),
		userAgent: defaultUserAgent,
	}
}

// Fetch retrieves the raw HTML of a page. When checkRobots is set, the host's
// exclusion policy is consulted first; only an explicit disallow blocks the
// fetch. Auth headers are attached when the source names a credential env var.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string, checkRobots bool, authKeyEnv *string) (string, error) {
	if checkRobots && !f.robots.Allowed(ctx, pageURL) {
		return "", fmt.Errorf("%w: %s", ErrDisallowed, pageURL)
	}

	var lastErr error
	for attempt := 0; attempt <= fetchRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Second):
			}
		}

		body, err := f.fetchOnce(ctx, pageURL, authKeyEnv)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("%w: %v", ErrSourceUnavailable, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, pageURL string, authKeyEnv *string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	if authKeyEnv != nil && *authKeyEnv != "" {
		if key := os.Getenv(*authKeyEnv); key != "" {
			req.Header.Set("Authorization", "Bearer "+key)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
