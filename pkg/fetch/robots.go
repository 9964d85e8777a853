package fetch

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

// RobotsHandler fetches, caches and evaluates robots.txt per host.
// A host whose robots.txt cannot be obtained is treated as allowing everything.
type RobotsHandler struct {
	fetcher     *Fetcher
	userAgent   string
	robotsCache map[string]*robotstxt.RobotsData // host -> parsed data (or nil)
	mu          sync.Mutex
	log         *logrus.Entry
}

// NewRobotsHandler creates a RobotsHandler
func NewRobotsHandler(fetcher *Fetcher, userAgent string, log *logrus.Entry) *RobotsHandler {
	return &RobotsHandler{
		fetcher:     fetcher,
		userAgent:   userAgent,
		robotsCache: make(map[string]*robotstxt.RobotsData),
		log:         log,
	}
}

// GetRobotsData retrieves robots.txt data for the targetURL's host, using cache or fetching.
// Returns nil when the file is unavailable (network error, 5xx) or unparseable.
func (rh *RobotsHandler) GetRobotsData(ctx context.Context, targetURL *url.URL) *robotstxt.RobotsData {
	host := targetURL.Host

	rh.mu.Lock()
	data, found := rh.robotsCache[host]
	rh.mu.Unlock()
	if found {
		return data
	}

	robotsURL := (&url.URL{Scheme: targetURL.Scheme, Host: host, Path: "/robots.txt"}).String()
	robotsLog := rh.log.WithField("robots_url", robotsURL)
	robotsLog.Debug("Fetching robots.txt...")

	data = rh.fetch(ctx, robotsURL, robotsLog)
	if ctx.Err() != nil {
		return data // Do not cache an answer cut short by cancellation
	}

	rh.mu.Lock()
	rh.robotsCache[host] = data
	rh.mu.Unlock()
	return data
}

func (rh *RobotsHandler) fetch(ctx context.Context, robotsURL string, robotsLog *logrus.Entry) *robotstxt.RobotsData {
	resp, err := rh.fetcher.Fetch(ctx, http.MethodGet, robotsURL)
	if err != nil {
		robotsLog.Warnf("Fetching robots.txt failed: %v", err)
		return nil
	}
	if resp.StatusCode >= 500 {
		robotsLog.WithField("status_code", resp.StatusCode).Warn("robots.txt unavailable, allowing all")
		return nil
	}

	// FromStatusAndBytes treats 4xx as "allow all"
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, resp.Body)
	if err != nil {
		robotsLog.Warnf("Error parsing robots.txt: %v", err)
		return nil
	}
	robotsLog.WithField("status_code", resp.StatusCode).Debug("robots.txt loaded")
	return data
}

// Allowed reports whether the configured user agent may fetch targetURL.
// Returns true if robots data could not be obtained.
func (rh *RobotsHandler) Allowed(ctx context.Context, targetURL *url.URL) bool {
	data := rh.GetRobotsData(ctx, targetURL)
	if data == nil {
		return true
	}
	return data.TestAgent(targetURL.RequestURI(), rh.userAgent)
}
