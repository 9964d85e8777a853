package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/Sriram-PR/seo-audit/pkg/metrics"
	"github.com/Sriram-PR/seo-audit/pkg/utils"
)

const defaultRequestsPerHost = 2

// hostSlot is the request budget of one audited host
type hostSlot struct {
	sem       *semaphore.Weighted
	users     int       // holders plus waiters
	idleSince time.Time // set when users drops to zero
}

// HostSlots bounds concurrent requests per audited host. Crawl fetches and link probes
// of every scan draw from the same slots, so a site never sees more than the limit
// from this service at once. A request that cannot get a slot within the wait bound
// fails with utils.ErrHostBusy and is reported like any other transport failure.
type HostSlots struct {
	mu      sync.Mutex
	hosts   map[string]*hostSlot
	limit   int64
	wait    time.Duration // 0 waits as long as ctx allows
	metrics *metrics.Metrics
	log     *logrus.Entry
}

// NewHostSlots creates slots allowing perHost concurrent requests per host.
// wait bounds how long a request queues for a slot, normally scan.fetch_timeout.
func NewHostSlots(perHost int, wait time.Duration, m *metrics.Metrics, log *logrus.Entry) *HostSlots {
	limit := int64(perHost)
	if limit <= 0 {
		limit = defaultRequestsPerHost
		log.Warnf("max_requests_per_host invalid or zero, defaulting to %d", limit)
	}
	return &HostSlots{
		hosts:   make(map[string]*hostSlot),
		limit:   limit,
		wait:    wait,
		metrics: m,
		log:     log,
	}
}

// Acquire takes one request slot for host. The returned release func gives it back
// and is safe to call more than once.
func (h *HostSlots) Acquire(ctx context.Context, host string) (release func(), err error) {
	h.mu.Lock()
	slot, ok := h.hosts[host]
	if !ok {
		slot = &hostSlot{sem: semaphore.NewWeighted(h.limit)}
		h.hosts[host] = slot
	}
	slot.users++
	h.mu.Unlock()

	waitCtx := ctx
	if h.wait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, h.wait)
		defer cancel()
	}

	if err := slot.sem.Acquire(waitCtx, 1); err != nil {
		h.leave(slot)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			h.metrics.IncHostSlotTimeout()
			h.log.WithFields(logrus.Fields{"host": host, "limit": h.limit, "wait": h.wait}).Warn("No request slot free for host")
			return nil, fmt.Errorf("%w: %s after %s", utils.ErrHostBusy, host, h.wait)
		}
		return nil, err
	}
	h.metrics.HostSlotAcquired()

	var once sync.Once
	return func() {
		once.Do(func() {
			slot.sem.Release(1)
			h.metrics.HostSlotReleased()
			h.leave(slot)
		})
	}, nil
}

func (h *HostSlots) leave(slot *hostSlot) {
	h.mu.Lock()
	slot.users--
	if slot.users == 0 {
		slot.idleSince = time.Now()
	}
	h.mu.Unlock()
}

// Busy returns the number of requests holding or waiting for a slot of host
func (h *HostSlots) Busy(host string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if slot, ok := h.hosts[host]; ok {
		return slot.users
	}
	return 0
}

// Hosts returns the number of hosts currently tracked
func (h *HostSlots) Hosts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.hosts)
}

// Sweep forgets hosts idle for at least interval, checking every interval until ctx is done.
func (h *HostSlots) Sweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.sweep(interval)
		case <-ctx.Done():
			h.log.Debugf("Host slot sweep stopped: %v", ctx.Err())
			return
		}
	}
}

func (h *HostSlots) sweep(idleFor time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	forgotten := 0
	for host, slot := range h.hosts {
		if slot.users == 0 && now.Sub(slot.idleSince) >= idleFor {
			delete(h.hosts, host)
			forgotten++
		}
	}
	if forgotten > 0 {
		h.log.Debugf("Forgot %d idle hosts, %d tracked", forgotten, len(h.hosts))
	}
}
