package server

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Sriram-PR/seo-audit/pkg/utils"
)

// ClientLimiter admits at most max scans per client within a rolling window.
// Each client keeps the timestamps of its admitted scans; the least recently seen
// clients are forgotten once maxClients are tracked.
type ClientLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	clients *lru.Cache[string, []time.Time]
	now     func() time.Time
}

// NewClientLimiter creates a limiter. maxClients bounds memory use.
func NewClientLimiter(max int, window time.Duration, maxClients int) (*ClientLimiter, error) {
	if maxClients <= 0 {
		maxClients = 10000
	}
	cache, err := lru.New[string, []time.Time](maxClients)
	if err != nil {
		return nil, fmt.Errorf("create client cache: %w", err)
	}
	return &ClientLimiter{
		max:     max,
		window:  window,
		clients: cache,
		now:     time.Now,
	}, nil
}

// RateLimitError is returned when a client exceeded its quota. It wraps utils.ErrRateLimited.
type RateLimitError struct {
	Max        int
	Window     time.Duration
	RetryAfter time.Duration // Until the oldest admitted scan leaves the window
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("Too many scans. Try later. (%d/%ds)", e.Max, int(e.Window.Seconds()))
}

func (e *RateLimitError) Unwrap() error { return utils.ErrRateLimited }

// Allow records a scan for client if it is under its quota, otherwise returns a *RateLimitError
func (l *ClientLimiter) Allow(client string) error {
	if l.max <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	hits, _ := l.clients.Get(client)

	// Drop hits older than the window; the slice is oldest first
	kept := hits[:0]
	for _, h := range hits {
		if now.Sub(h) <= l.window {
			kept = append(kept, h)
		}
	}

	if len(kept) >= l.max {
		l.clients.Add(client, kept)
		return &RateLimitError{Max: l.max, Window: l.window, RetryAfter: l.window - now.Sub(kept[0])}
	}
	l.clients.Add(client, append(kept, now))
	return nil
}

// Tracked returns the number of clients currently remembered
func (l *ClientLimiter) Tracked() int {
	return l.clients.Len()
}
