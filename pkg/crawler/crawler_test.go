package crawler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/seo-audit/pkg/config"
	"github.com/Sriram-PR/seo-audit/pkg/fetch"
	"github.com/Sriram-PR/seo-audit/pkg/metrics"
	"github.com/Sriram-PR/seo-audit/pkg/models"
)

// testLogger returns a logger that discards output
func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

type page struct {
	status      int
	contentType string
	body        string
	hangup      bool // close the connection without answering
}

func htmlPage(title string, links ...string) page {
	var b strings.Builder
	b.WriteString("<html><head><title>" + title + "</title></head><body><h1>" + title + "</h1>")
	for _, l := range links {
		b.WriteString(`<a href="` + l + `">link</a>`)
	}
	b.WriteString("</body></html>")
	return page{status: http.StatusOK, contentType: "text/html; charset=utf-8", body: b.String()}
}

// newSite serves pages by path and records the order of GET requests
func newSite(t *testing.T, pages map[string]page) (*httptest.Server, func() []string) {
	t.Helper()
	var mu sync.Mutex
	var hits []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, r.URL.Path)
		mu.Unlock()

		p, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if p.hangup {
			hj, _ := w.(http.Hijacker)
			conn, _, _ := hj.Hijack()
			conn.Close()
			return
		}
		w.Header().Set("Content-Type", p.contentType)
		w.WriteHeader(p.status)
		_, _ = io.WriteString(w, p.body)
	}))
	t.Cleanup(server.Close)
	return server, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), hits...)
	}
}

func testScanConfig(workers int) config.ScanConfig {
	return config.ScanConfig{NumWorkers: workers, UserAgent: "seo-audit-test", MaxBodyBytes: 1 << 20}
}

func newTestCrawler(workers int, opts ...Option) *Crawler {
	appCfg := &config.AppConfig{Scan: testScanConfig(workers)}
	fetcher := fetch.NewFetcher(&http.Client{Timeout: 5 * time.Second}, appCfg, testLogger())
	return New(appCfg.Scan, fetcher, testLogger(), opts...)
}

func pageURLs(pages []models.PageAnalysis) []string {
	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = p.URL
	}
	return out
}

func TestCrawl_BreadthFirstOrder(t *testing.T) {
	server, hits := newSite(t, map[string]page{
		"/":    htmlPage("Home", "/a", "/b"),
		"/a":   htmlPage("A", "/a/1", "/"),
		"/b":   htmlPage("B", "/b/1", "/a"),
		"/a/1": htmlPage("A1"),
		"/b/1": htmlPage("B1"),
	})
	target := server.URL + "/"

	res, err := newTestCrawler(1).Crawl(context.Background(), target, 25, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		server.URL + "/",
		server.URL + "/a",
		server.URL + "/b",
		server.URL + "/a/1",
		server.URL + "/b/1",
	}, pageURLs(res.Pages))
	assert.Equal(t, 5, res.Visited)
	assert.Empty(t, res.Broken)
	assert.Equal(t, []string{"/", "/a", "/b", "/a/1", "/b/1"}, hits(), "each page fetched exactly once")
}

func TestCrawl_Budget(t *testing.T) {
	pages := map[string]page{"/": htmlPage("Home", "/1", "/2", "/3", "/4", "/5")}
	for _, p := range []string{"/1", "/2", "/3", "/4", "/5"} {
		pages[p] = htmlPage(p)
	}
	server, hits := newSite(t, pages)

	res, err := newTestCrawler(1).Crawl(context.Background(), server.URL+"/", 3, nil)
	require.NoError(t, err)
	assert.Len(t, res.Pages, 3)
	assert.Equal(t, 3, res.Visited)
	assert.Len(t, hits(), 3)
}

func TestCrawl_BrokenAndSkippedPages(t *testing.T) {
	server, _ := newSite(t, map[string]page{
		"/":          htmlPage("Home", "/missing", "/data.json", "/gone", "/hangup", "/ok"),
		"/data.json": {status: http.StatusOK, contentType: "application/json", body: `{"a":1}`},
		"/gone":      {status: http.StatusGone, contentType: "text/html", body: "gone"},
		"/hangup":    {hangup: true},
		"/ok":        htmlPage("OK"),
	})

	res, err := newTestCrawler(1).Crawl(context.Background(), server.URL+"/", 25, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{server.URL + "/", server.URL + "/ok"}, pageURLs(res.Pages))
	assert.Equal(t, 6, res.Visited, "failures and non-HTML responses count towards the budget")

	require.Len(t, res.Broken, 3)
	assert.Equal(t, server.URL+"/missing", res.Broken[0].To)
	assert.Equal(t, models.HTTPStatus(404), res.Broken[0].Status)
	assert.Nil(t, res.Broken[0].From)

	assert.Equal(t, server.URL+"/gone", res.Broken[1].To)
	assert.Equal(t, models.HTTPStatus(410), res.Broken[1].Status)

	assert.Equal(t, server.URL+"/hangup", res.Broken[2].To)
	assert.True(t, res.Broken[2].Status.IsTransportError())
	assert.NotEmpty(t, res.Broken[2].Error)
}

func TestCrawl_SeedFailure(t *testing.T) {
	server, _ := newSite(t, map[string]page{})

	res, err := newTestCrawler(1).Crawl(context.Background(), server.URL+"/", 25, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Pages)
	require.Len(t, res.Broken, 1)
	assert.Equal(t, models.HTTPStatus(404), res.Broken[0].Status)
}

func TestCrawl_StaysOnHost(t *testing.T) {
	other, otherHits := newSite(t, map[string]page{"/": htmlPage("Other")})
	server, _ := newSite(t, map[string]page{
		"/":      htmlPage("Home", other.URL+"/", "/local#frag", "/local"),
		"/local": htmlPage("Local"),
	})

	res, err := newTestCrawler(1).Crawl(context.Background(), server.URL+"/", 25, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{server.URL + "/", server.URL + "/local"}, pageURLs(res.Pages))
	assert.Empty(t, otherHits(), "foreign host must never be fetched")
}

func TestCrawl_Progress(t *testing.T) {
	server, _ := newSite(t, map[string]page{
		"/":  htmlPage("Home", "/a", "/bad"),
		"/a": htmlPage("A"),
	})

	type call struct{ visited, budget int }
	var calls []call
	_, err := newTestCrawler(1).Crawl(context.Background(), server.URL+"/", 10, func(visited, budget int) {
		calls = append(calls, call{visited, budget})
	})
	require.NoError(t, err)

	// Only analyzed pages report progress; /bad (404) does not
	assert.Equal(t, []call{{1, 10}, {2, 10}}, calls)
}

func TestCrawl_ConcurrentWorkers(t *testing.T) {
	pages := map[string]page{}
	var rootLinks []string
	for i := 0; i < 30; i++ {
		p := "/p" + string(rune('a'+i%26)) + strings.Repeat("x", i/26)
		rootLinks = append(rootLinks, p)
		pages[p] = htmlPage(p, "/", rootLinks[0])
	}
	pages["/"] = htmlPage("Home", rootLinks...)
	server, hits := newSite(t, pages)

	res, err := newTestCrawler(4).Crawl(context.Background(), server.URL+"/", 12, nil)
	require.NoError(t, err)

	assert.Len(t, res.Pages, 12)
	assert.Equal(t, server.URL+"/", res.Pages[0].URL, "seed is always first")

	seen := map[string]bool{}
	for _, h := range hits() {
		assert.False(t, seen[h], "path %s fetched twice", h)
		seen[h] = true
	}
	assert.Len(t, seen, 12)
}

func TestCrawl_Cancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.Header().Set("Content-Type", "text/html")
			_, _ = io.WriteString(w, `<a href="/slow">slow</a><a href="/never">never</a>`)
			return
		}
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() { close(release); server.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	res, err := newTestCrawler(1).Crawl(ctx, server.URL+"/", 25, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Len(t, res.Pages, 1)
	assert.Empty(t, res.Broken, "abandoned fetches are not reported as broken")
}

type denyPrefix string

func (d denyPrefix) Allowed(_ context.Context, u *url.URL) bool {
	return !strings.HasPrefix(u.Path, string(d))
}

func TestCrawl_RespectsRobots(t *testing.T) {
	server, hits := newSite(t, map[string]page{
		"/":          htmlPage("Home", "/private/x", "/public"),
		"/private/x": htmlPage("Secret"),
		"/public":    htmlPage("Public"),
	})

	m := metrics.NewMetrics()
	c := newTestCrawler(1, WithRobots(denyPrefix("/private")), WithMetrics(m))
	c.cfg.RespectRobots = true

	res, err := c.Crawl(context.Background(), server.URL+"/", 25, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{server.URL + "/", server.URL + "/public"}, pageURLs(res.Pages))
	assert.NotContains(t, hits(), "/private/x")
	assert.Equal(t, 2, res.Visited, "disallowed links do not consume the budget")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("Policy_Robots")))
	assert.Empty(t, res.Broken, "robots skips are not findings")
}
