package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/seo-audit/pkg/config"
	"github.com/Sriram-PR/seo-audit/pkg/fetch"
	"github.com/Sriram-PR/seo-audit/pkg/metrics"
	"github.com/Sriram-PR/seo-audit/pkg/models"
	"github.com/Sriram-PR/seo-audit/pkg/parse"
	"github.com/Sriram-PR/seo-audit/pkg/process"
	"github.com/Sriram-PR/seo-audit/pkg/queue"
	"github.com/Sriram-PR/seo-audit/pkg/utils"
)

// PageFetcher is the subset of *fetch.Fetcher the crawler needs
type PageFetcher interface {
	Fetch(ctx context.Context, method, rawURL string) (*fetch.Response, error)
}

// RobotsChecker decides whether a URL may be crawled
type RobotsChecker interface {
	Allowed(ctx context.Context, targetURL *url.URL) bool
}

// ProgressFunc is called after each analyzed page with the visited count and the page budget.
// It is called from worker goroutines and must not block for long.
type ProgressFunc func(visited, budget int)

// Result is the outcome of a crawl, in crawl order
type Result struct {
	Pages   []models.PageAnalysis // Successfully analyzed HTML pages
	Broken  []models.BrokenLink   // Crawled URLs that failed or answered >= 400 (From is nil)
	Visited int                   // URLs claimed, including failures and non-HTML responses
}

// outcome is what processing one claimed URL produced
type outcome struct {
	seq    int64
	page   *models.PageAnalysis
	broken *models.BrokenLink
}

// Crawler performs a breadth-first, same-host crawl bounded by a page budget
type Crawler struct {
	cfg     config.ScanConfig
	fetcher PageFetcher
	robots  RobotsChecker    // nil unless robots.txt is respected
	metrics *metrics.Metrics // optional
	log     *logrus.Entry
}

// Option customizes a Crawler
type Option func(*Crawler)

// WithRobots skips URLs disallowed by robots.txt
func WithRobots(rc RobotsChecker) Option {
	return func(c *Crawler) { c.robots = rc }
}

// WithMetrics records per-page fetch results
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Crawler) { c.metrics = m }
}

// New creates a Crawler
func New(cfg config.ScanConfig, fetcher PageFetcher, log *logrus.Entry, opts ...Option) *Crawler {
	c := &Crawler{
		cfg:     cfg,
		fetcher: fetcher,
		log:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Crawl visits pages of target's host starting at target, until the queue runs dry or budget URLs were claimed.
// With num_workers > 1 pages are fetched concurrently; results are still reported in claim order.
// On cancellation Crawl stops claiming new URLs and returns the partial result with ctx.Err().
func (c *Crawler) Crawl(ctx context.Context, target string, budget int, onProgress ProgressFunc) (*Result, error) {
	crawlLog := c.log.WithFields(logrus.Fields{"target": target, "max_pages": budget})
	frontier := queue.NewFrontier(budget, crawlLog)
	budget = frontier.Budget()

	if c.allowedByRobots(ctx, target, crawlLog) {
		frontier.Enqueue(target)
	}

	var (
		seq      atomic.Int64
		mu       sync.Mutex
		outcomes []outcome
		wg       sync.WaitGroup
	)
	record := func(o outcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
	}

	numWorkers := c.cfg.NumWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}
	if numWorkers > budget {
		numWorkers = budget
	}

	start := time.Now()
	crawlLog.WithField("workers", numWorkers).Info("Crawl starting")
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		workerLog := crawlLog.WithField("worker_id", i)
		go func() {
			defer wg.Done()
			for {
				pageURL, ok := frontier.Next(ctx)
				if !ok {
					return
				}
				claim := seq.Add(1)
				o := c.processPage(ctx, pageURL, target, frontier, workerLog)
				o.seq = claim
				if o.page != nil || o.broken != nil {
					record(o)
				}
				frontier.Done()
				if o.page != nil && onProgress != nil {
					onProgress(frontier.Visited(), budget)
				}
			}
		}()
	}
	wg.Wait()

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].seq < outcomes[j].seq })
	result := &Result{
		Pages:   []models.PageAnalysis{},
		Broken:  []models.BrokenLink{},
		Visited: frontier.Visited(),
	}
	for _, o := range outcomes {
		if o.page != nil {
			result.Pages = append(result.Pages, *o.page)
		}
		if o.broken != nil {
			result.Broken = append(result.Broken, *o.broken)
		}
	}

	crawlLog.WithFields(logrus.Fields{
		"visited":  result.Visited,
		"analyzed": len(result.Pages),
		"broken":   len(result.Broken),
		"duration": time.Since(start).String(),
	}).Info("Crawl finished")

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// processPage fetches and analyzes one claimed URL, enqueueing its same-host links
func (c *Crawler) processPage(ctx context.Context, pageURL, target string, frontier *queue.Frontier, workerLog *logrus.Entry) (o outcome) {
	taskLog := workerLog.WithField("url", pageURL)
	startTime := time.Now()

	defer func() {
		if r := recover(); r != nil {
			taskLog.WithFields(logrus.Fields{
				"panic_info":  r,
				"duration":    time.Since(startTime).String(),
				"stack_trace": string(debug.Stack()),
			}).Error("PANIC recovered while processing page")
			o = outcome{broken: &models.BrokenLink{
				To:     pageURL,
				Status: models.TransportError,
				Error:  fmt.Sprintf("panic: %v", r),
			}}
		}
	}()

	resp, err := c.fetcher.Fetch(ctx, http.MethodGet, pageURL)
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled mid-fetch: not a finding about the site
			taskLog.Debugf("Fetch abandoned: %v", ctx.Err())
			return outcome{}
		}
		c.metrics.IncPageFetch("transport_error")
		c.metrics.IncError(utils.CategorizeError(err))
		taskLog.WithField("category", utils.CategorizeError(err)).Warnf("Page fetch failed: %v", err)
		return outcome{broken: &models.BrokenLink{
			To:     pageURL,
			Status: models.TransportError,
			Error:  err.Error(),
		}}
	}

	if resp.StatusCode >= 400 {
		c.metrics.IncPageFetch("http_error")
		taskLog.WithField("status_code", resp.StatusCode).Info("Page answered with error status")
		return outcome{broken: &models.BrokenLink{
			To:     pageURL,
			Status: models.HTTPStatus(resp.StatusCode),
		}}
	}

	if !resp.IsHTML() {
		c.metrics.IncPageFetch("skipped")
		taskLog.WithField("content_type", resp.ContentType).Debug("Skipping non-HTML response")
		return outcome{}
	}

	analysis := process.AnalyzePage(pageURL, resp.Body)
	c.metrics.IncPageFetch("analyzed")

	queued := 0
	for _, link := range analysis.InternalLinks {
		if !parse.SameHost(link, target) || frontier.IsVisited(link) {
			continue
		}
		if !c.allowedByRobots(ctx, link, taskLog) {
			continue
		}
		if frontier.Enqueue(link) {
			queued++
		}
	}

	taskLog.WithFields(logrus.Fields{
		"status_code": resp.StatusCode,
		"words":       analysis.WordCount,
		"links":       len(analysis.InternalLinks),
		"queued":      queued,
		"duration":    time.Since(startTime).String(),
	}).Debug("Page analyzed")

	return outcome{page: &analysis}
}

func (c *Crawler) allowedByRobots(ctx context.Context, rawURL string, log *logrus.Entry) bool {
	if c.robots == nil || !c.cfg.RespectRobots {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if !c.robots.Allowed(ctx, u) {
		skipErr := fmt.Errorf("%w: %s", utils.ErrRobotsDisallowed, rawURL)
		category := utils.CategorizeError(skipErr)
		c.metrics.IncError(category)
		log.WithFields(logrus.Fields{"link": rawURL, "category": category}).Debug(skipErr)
		return false
	}
	return true
}
