package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/seo-audit/pkg/metrics"
	"github.com/Sriram-PR/seo-audit/pkg/utils"
)

// concurrencySite answers after delay and records the peak number of requests in flight
func concurrencySite(t *testing.T, delay time.Duration) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var current, peak atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(delay)
		current.Add(-1)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	t.Cleanup(server.Close)
	return server, &peak
}

func TestHostSlots_CrawlAndLinkChecksShareTheLimit(t *testing.T) {
	server, peak := concurrencySite(t, 20*time.Millisecond)
	m := metrics.NewMetrics()
	slots := NewHostSlots(2, 5*time.Second, m, testLogger())
	fetcher := NewFetcher(testClient(), testConfig(0), testLogger(), WithHostSlots(slots))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			resp, err := fetcher.Fetch(context.Background(), http.MethodGet, server.URL+"/page")
			assert.NoError(t, err)
			if resp != nil {
				assert.True(t, resp.IsHTML())
			}
		}()
		go func() {
			defer wg.Done()
			status, err := fetcher.Probe(context.Background(), server.URL+"/link")
			assert.NoError(t, err)
			assert.Equal(t, http.StatusOK, status)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2), "page fetches and link probes draw from one limit")
	assert.Equal(t, 0, slots.Busy(strings.TrimPrefix(server.URL, "http://")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HostRequests))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HostSlotWaits))
}

func TestHostSlots_WaitTimeoutIsTransportError(t *testing.T) {
	server, attempts := mockServer(t, []int{200})
	host := strings.TrimPrefix(server.URL, "http://")
	m := metrics.NewMetrics()
	slots := NewHostSlots(1, 30*time.Millisecond, m, testLogger())
	fetcher := NewFetcher(testClient(), testConfig(0), testLogger(), WithHostSlots(slots))

	release, err := slots.Acquire(context.Background(), host)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HostRequests))

	_, err = fetcher.Fetch(context.Background(), http.MethodGet, server.URL+"/page")
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrHostBusy)
	assert.Equal(t, "Network_HostBusy", utils.CategorizeError(err))
	assert.Equal(t, int32(0), attempts.Load(), "no request is sent without a slot")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HostSlotWaits))

	release()
	release()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HostRequests), "release is idempotent")

	_, err = fetcher.Fetch(context.Background(), http.MethodGet, server.URL+"/page")
	require.NoError(t, err)
}

func TestHostSlots_CancelledScanIsNotHostBusy(t *testing.T) {
	slots := NewHostSlots(1, time.Second, nil, testLogger())
	release, err := slots.Acquire(context.Background(), "example.com")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = slots.Acquire(ctx, "example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, utils.ErrHostBusy)
	assert.Equal(t, 1, slots.Busy("example.com"), "the failed waiter leaves")
}

func TestHostSlots_SweepForgetsIdleHosts(t *testing.T) {
	slots := NewHostSlots(1, 0, nil, testLogger())

	held, err := slots.Acquire(context.Background(), "busy.example")
	require.NoError(t, err)
	for _, host := range []string{"a.example", "b.example"} {
		release, err := slots.Acquire(context.Background(), host)
		require.NoError(t, err)
		release()
	}
	require.Equal(t, 3, slots.Hosts())

	time.Sleep(5 * time.Millisecond)
	slots.sweep(time.Millisecond)
	assert.Equal(t, 1, slots.Hosts(), "a host with a request in flight is kept")

	held()
	time.Sleep(5 * time.Millisecond)
	slots.sweep(time.Millisecond)
	assert.Equal(t, 0, slots.Hosts())
}

func TestHostSlots_SweepStopsWithContext(t *testing.T) {
	slots := NewHostSlots(0, 0, nil, testLogger())
	assert.Equal(t, int64(defaultRequestsPerHost), slots.limit)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		slots.Sweep(ctx, time.Minute)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Sweep did not stop after cancellation")
	}
}
