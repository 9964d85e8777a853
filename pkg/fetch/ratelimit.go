package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimiter spaces out requests per host for politeness.
// A zero delay disables limiting.
type RateLimiter struct {
	limiters map[string]*rate.Limiter // host -> token bucket
	mu       sync.Mutex
	delay    time.Duration
	log      *logrus.Entry
}

// NewRateLimiter creates a RateLimiter allowing one request per host every delay
func NewRateLimiter(delay time.Duration, log *logrus.Entry) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		delay:    delay,
		log:      log,
	}
}

// Wait blocks until a request to host is allowed or ctx is done
func (rl *RateLimiter) Wait(ctx context.Context, host string) error {
	if rl == nil || rl.delay <= 0 {
		return nil
	}

	rl.mu.Lock()
	lim, ok := rl.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Every(rl.delay), 1)
		rl.limiters[host] = lim
	}
	rl.mu.Unlock()

	reservation := lim.Reserve()
	if wait := reservation.Delay(); wait > 0 {
		rl.log.WithFields(logrus.Fields{"host": host, "sleep": wait}).Debug("Rate limit applying sleep")
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			reservation.Cancel()
			return ctx.Err()
		}
	}
	return nil
}

// Len returns the number of hosts with a limiter
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}
