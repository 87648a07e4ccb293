package scrape

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// robotsChecker checks robots.txt exclusion rules per host. Checks fail open:
// an unreachable or malformed robots.txt never blocks a legitimate source,
// only an explicit disallow rule does.
type robotsChecker struct {
	client    *http.Client
	userAgent string

	mu    sync.Mutex
	cache map[string]*robotstxt.Group
}

func newRobotsChecker(userAgent string, timeout time.Duration) *robotsChecker {
	return &robotsChecker{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		cache:     make(map[string]*robotstxt.Group),
	}
}

// Allowed reports whether the page may be fetched under the host's robots.txt.
func (rc *robotsChecker) Allowed(ctx context.Context, pageURL string) bool {
	u, err := url.Parse(pageURL)
	if err != nil {
		return true
	}

	group := rc.groupFor(ctx, u)
	if group == nil {
		return true
	}
	return group.Test(u.Path)
}

func (rc *robotsChecker) groupFor(ctx context.Context, u *url.URL) *robotstxt.Group {
	host := u.Scheme + "://" + u.Host

	rc.mu.Lock()
	group, cached := rc.cache[host]
	rc.mu.Unlock()
	if cached {
		return group
	}

	group = rc.fetchGroup(ctx, host)
	rc.mu.Lock()
	rc.cache[host] = group
	rc.mu.Unlock()
	return group
}

func (rc *robotsChecker) fetchGroup(ctx context.Context, host string) *robotstxt.Group {
	req, err := http.NewRequestWithContext(ctx, "GET", host+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", rc.userAgent)

	resp, err := rc.client.Do(req)
	if err != nil {
		log.Printf("robots.txt check failed for %s (allowing): %v", host, err)
		return nil
	}
	defer resp.Body.Close()

	robots, err := robotstxt.FromResponse(resp)
	if err != nil {
		log.Printf("robots.txt parse failed for %s (allowing): %v", host, err)
		return nil
	}
	return robots.FindGroup(rc.userAgent)
}
