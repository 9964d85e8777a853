package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/seo-audit/pkg/config"
	"github.com/Sriram-PR/seo-audit/pkg/metrics"
	"github.com/Sriram-PR/seo-audit/pkg/models"
	"github.com/Sriram-PR/seo-audit/pkg/orchestrate"
	"github.com/Sriram-PR/seo-audit/pkg/storage"
	"github.com/Sriram-PR/seo-audit/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// fakeScanner replays a short event sequence and records requests
type fakeScanner struct {
	mu       sync.Mutex
	requests []orchestrate.Request
	fail     error
	block    bool // wait for cancellation before finishing
}

func (f *fakeScanner) Run(ctx context.Context, req orchestrate.Request, emit orchestrate.EmitFunc) (*models.ScanReport, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	emit(models.NewProgressEvent(5, "Starting scan"))
	if f.block {
		<-ctx.Done()
		emit(models.NewErrorEvent(ctx.Err()))
		return nil, ctx.Err()
	}
	if f.fail != nil {
		emit(models.NewErrorEvent(f.fail))
		return nil, f.fail
	}
	emit(models.NewPingEvent(time.Unix(1700000000, 0)))
	emit(models.NewProgressEvent(100, "Scan completed"))
	report := &models.ScanReport{
		KPIs:   models.KPIs{PagesCrawled: 3},
		Health: models.Health{Score: 90, MainIssue: "Missing H1 on 1 item(s)"},
		Meta:   models.ReportMeta{TargetURL: req.URL, Host: "example.com", MaxPages: req.MaxPages, ScanID: req.ScanID, ClientIP: req.ClientIP},
	}
	emit(models.NewDoneEvent(report))
	return report, nil
}

func (f *fakeScanner) last() orchestrate.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

// fakeGuard blocks hosts containing "internal" and rejects inputs without a dot
type fakeGuard struct{}

func (fakeGuard) Validate(_ context.Context, raw string) (string, error) {
	switch {
	case strings.Contains(raw, "internal"):
		return "", fmt.Errorf("%w: %s is private", utils.ErrBlockedHost, raw)
	case !strings.Contains(raw, "."):
		return "", fmt.Errorf("%w: missing host", utils.ErrInvalidInput)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	return strings.TrimSuffix(raw, "/") + "/", nil
}

func testConfig() *config.AppConfig {
	cfg := config.Default()
	cfg.Server.RateLimitMax = 2
	cfg.Server.RateLimitWindow = time.Minute
	return cfg
}

func newTestServer(t *testing.T, scanner Scanner, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	srv, err := New(testConfig(), scanner, fakeGuard{}, testLogger(), opts...)
	require.NoError(t, err)
	ids := 0
	srv.newID = func() string {
		ids++
		return fmt.Sprintf("scan-%d", ids)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

type sseEvent struct {
	Name string
	Data string
}

func readEvents(t *testing.T, body io.Reader) []sseEvent {
	t.Helper()
	var events []sseEvent
	var cur sseEvent
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.Name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.Data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if cur.Name != "" {
				events = append(events, cur)
			}
			cur = sseEvent{}
		}
	}
	require.NoError(t, scanner.Err())
	return events
}

func decodeDetail(t *testing.T, resp *http.Response) string {
	t.Helper()
	var payload models.ErrorPayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload.Detail
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, &fakeScanner{})
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestScanStream_Events(t *testing.T) {
	scanner := &fakeScanner{}
	_, ts := newTestServer(t, scanner)

	resp, err := http.Get(ts.URL + "/seo/scan/stream?url=example.com&max_pages=7")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "scan-1", resp.Header.Get("X-Scan-ID"))

	events := readEvents(t, resp.Body)
	require.Len(t, events, 4)
	assert.Equal(t, "progress", events[0].Name)
	assert.JSONEq(t, `{"progress":5,"label":"Starting scan"}`, events[0].Data)
	assert.Equal(t, "ping", events[1].Name)
	assert.JSONEq(t, `{"ts":1700000000}`, events[1].Data)
	assert.Equal(t, "progress", events[2].Name)
	assert.Equal(t, "done", events[3].Name)

	var report models.ScanReport
	require.NoError(t, json.Unmarshal([]byte(events[3].Data), &report))
	assert.Equal(t, 90, report.Health.Score)
	assert.Equal(t, "https://example.com/", report.Meta.TargetURL)

	req := scanner.last()
	assert.Equal(t, "https://example.com/", req.URL)
	assert.Equal(t, 7, req.MaxPages)
	assert.Equal(t, "127.0.0.1", req.ClientIP)
	assert.Equal(t, "scan-1", req.ScanID)
}

func TestScanStream_DefaultMaxPages(t *testing.T) {
	scanner := &fakeScanner{}
	srv, ts := newTestServer(t, scanner)

	resp, err := http.Get(ts.URL + "/seo/scan/stream?url=example.com")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	assert.Equal(t, srv.cfg.Scan.DefaultMaxPages, scanner.last().MaxPages)
}

func TestScanStream_ErrorEvent(t *testing.T) {
	scanner := &fakeScanner{fail: fmt.Errorf("%w during crawl: boom", utils.ErrScanAborted)}
	_, ts := newTestServer(t, scanner)

	resp, err := http.Get(ts.URL + "/seo/scan/stream?url=example.com")
	require.NoError(t, err)
	defer resp.Body.Close()

	events := readEvents(t, resp.Body)
	require.Len(t, events, 2)
	assert.Equal(t, "error", events[1].Name)
	assert.JSONEq(t, `{"detail":"scan aborted during crawl: boom"}`, events[1].Data)
}

func TestScanStream_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantDetail string
	}{
		{"max_pages not a number", "url=example.com&max_pages=ten", http.StatusBadRequest, "max_pages must be an integer between 1 and 200"},
		{"max_pages zero", "url=example.com&max_pages=0", http.StatusBadRequest, "max_pages must be an integer between 1 and 200"},
		{"max_pages too large", "url=example.com&max_pages=201", http.StatusBadRequest, "max_pages must be an integer between 1 and 200"},
		{"invalid url", "url=nohost", http.StatusBadRequest, "invalid input: missing host"},
		{"blocked host", "url=internal.corp", http.StatusForbidden, "Blocked host (localhost/private IP/DNS invalid)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scanner := &fakeScanner{}
			_, ts := newTestServer(t, scanner)

			resp, err := http.Get(ts.URL + "/seo/scan/stream?" + tt.query)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
			assert.Equal(t, tt.wantDetail, decodeDetail(t, resp))
			assert.Empty(t, scanner.requests)
		})
	}
}

func TestScanStream_RateLimit(t *testing.T) {
	m := metrics.NewMetrics()
	_, ts := newTestServer(t, &fakeScanner{}, WithMetrics(m))

	get := func(query string) *http.Response {
		resp, err := http.Get(ts.URL + "/seo/scan/stream?" + query)
		require.NoError(t, err)
		return resp
	}

	// A bad max_pages is rejected before the limiter and does not use quota
	resp := get("url=example.com&max_pages=0")
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	for i := 0; i < 2; i++ {
		resp := get("url=example.com")
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp = get("url=example.com")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Equal(t, "Too many scans. Try later. (2/60s)", decodeDetail(t, resp))
	assert.Equal(t, 1.0, counterValue(t, m, "seo_audit_rate_limited_total"))
}

func TestScanStream_ClientDisconnectCancelsScan(t *testing.T) {
	scanner := &fakeScanner{block: true}
	_, ts := newTestServer(t, scanner)

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/seo/scan/stream?url=example.com", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: progress\n", line)

	cancel()
	resp.Body.Close()
	// The blocked scan returns once its context is cancelled; the test server
	// would hang on Close otherwise.
}

func TestScanStream_SavesReport(t *testing.T) {
	store, err := storage.NewBadgerStore(config.StorageConfig{StateDir: t.TempDir()}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	_, ts := newTestServer(t, &fakeScanner{}, WithStore(store))

	resp, err := http.Get(ts.URL + "/seo/scan/stream?url=example.com")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	report, err := store.GetReport("scan-1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/", report.Meta.TargetURL)

	resp, err = http.Get(ts.URL + "/seo/scans")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listing struct {
		Scans []models.ReportSummary `json:"scans"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listing))
	require.Len(t, listing.Scans, 1)
	assert.Equal(t, "scan-1", listing.Scans[0].ID)
	assert.Equal(t, 90, listing.Scans[0].Score)

	resp2, err := http.Get(ts.URL + "/seo/scans/scan-1")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)

	resp3, err := http.Get(ts.URL + "/seo/scans/missing")
	require.NoError(t, err)
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp3.StatusCode)
	assert.Equal(t, "scan missing not found", decodeDetail(t, resp3))
}

func TestHistoryRoutes_Disabled(t *testing.T) {
	_, ts := newTestServer(t, &fakeScanner{})

	for _, path := range []string{"/seo/scans", "/seo/scans/abc"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, path)
	}
}

func TestListScans_BadLimit(t *testing.T) {
	store, err := storage.NewBadgerStore(config.StorageConfig{StateDir: t.TempDir()}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	_, ts := newTestServer(t, &fakeScanner{}, WithStore(store))

	resp, err := http.Get(ts.URL + "/seo/scans?limit=abc")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	_, ts := newTestServer(t, &fakeScanner{})

	t.Run("preflight from allowed origin", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/seo/scan/stream", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", "GET")
		req.Header.Set("Access-Control-Request-Headers", "X-Custom")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "GET, POST, OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "X-Custom", resp.Header.Get("Access-Control-Allow-Headers"))
		assert.Empty(t, resp.Header.Get("Access-Control-Allow-Credentials"))
	})

	t.Run("simple request from unknown origin", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
		req.Header.Set("Origin", "http://evil.example")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	})

	t.Run("exposes scan id header", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
		req.Header.Set("Origin", "http://127.0.0.1:3000")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, "http://127.0.0.1:3000", resp.Header.Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "X-Scan-ID", resp.Header.Get("Access-Control-Expose-Headers"))
	})
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		trust      bool
		remoteAddr string
		forwarded  string
		want       string
	}{
		{"remote host", false, "203.0.113.9:5555", "", "203.0.113.9"},
		{"forwarded ignored", false, "203.0.113.9:5555", "198.51.100.1", "203.0.113.9"},
		{"forwarded first hop", true, "10.0.0.1:5555", "198.51.100.1, 10.0.0.2", "198.51.100.1"},
		{"forwarded empty", true, "10.0.0.1:5555", "", "10.0.0.1"},
		{"no port", false, "203.0.113.9", "", "203.0.113.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Server.TrustForwardedFor = tt.trust
			srv, err := New(cfg, &fakeScanner{}, fakeGuard{}, testLogger())
			require.NoError(t, err)

			r := httptest.NewRequest(http.MethodGet, "/health", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, srv.clientIP(r))
		})
	}
}

func TestMetricsRoute(t *testing.T) {
	m := metrics.NewMetrics()
	m.IncBlocked()
	_, ts := newTestServer(t, &fakeScanner{}, WithMetrics(m))

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "seo_audit_blocked_targets_total 1")
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.ShutdownTimeout = time.Second
	srv, err := New(cfg, &fakeScanner{}, fakeGuard{}, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}

func counterValue(t *testing.T, m *metrics.Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			var total float64
			for _, metric := range f.GetMetric() {
				total += metric.GetCounter().GetValue()
			}
			return total
		}
	}
	return 0
}
