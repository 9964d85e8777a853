package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/seo-audit/pkg/config"
	"github.com/Sriram-PR/seo-audit/pkg/crawler"
	"github.com/Sriram-PR/seo-audit/pkg/fetch"
	"github.com/Sriram-PR/seo-audit/pkg/linkcheck"
	"github.com/Sriram-PR/seo-audit/pkg/metrics"
	"github.com/Sriram-PR/seo-audit/pkg/models"
	"github.com/Sriram-PR/seo-audit/pkg/parse"
	"github.com/Sriram-PR/seo-audit/pkg/score"
	"github.com/Sriram-PR/seo-audit/pkg/utils"
)

// Phase labels and their fixed progress values
const (
	labelStarting     = "Starting scan"
	labelCrawling     = "Fetching & crawling pages"
	labelLinkCheck    = "Checking internal links"
	labelScoring      = "Computing SEO score"
	labelCompleted    = "Scan completed"
	progressStarting  = 5
	progressCrawling  = 10
	progressCrawlMax  = 70
	progressLinkCheck = 75
	progressScoring   = 85
	progressCompleted = 100

	defaultPingInterval = 10 * time.Second
	finishedAtLayout    = "2006-01-02T15:04:05Z"
)

// Request describes one scan
type Request struct {
	URL                string
	MaxPages           int           // 0 means the configured default
	FetchTimeout       time.Duration // Per-request bound for this scan; 0 means scan.fetch_timeout
	ThinWordsThreshold int           // 0 means scan.thin_words_threshold
	ClientIP           string        // Recorded in the report meta
	ScanID             string        // Recorded in the report meta
}

// EmitFunc receives scan events in order. It is never called concurrently.
type EmitFunc func(models.Event)

// Scanner runs SEO scans. The HTTP client, per-host rate limiter and per-host
// request slots are shared by every scan run through the same Scanner.
type Scanner struct {
	appCfg  *config.AppConfig
	fetcher *fetch.Fetcher
	slots   *fetch.HostSlots
	crawler *crawler.Crawler
	checker *linkcheck.Checker
	metrics *metrics.Metrics
	log     *logrus.Entry

	httpClient *http.Client
}

// Option customizes a Scanner
type Option func(*Scanner)

// WithMetrics records scan, fetch and link-check metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scanner) { s.metrics = m }
}

// WithHTTPClient replaces the client built from http_client_settings
func WithHTTPClient(c *http.Client) Option {
	return func(s *Scanner) { s.httpClient = c }
}

// NewScanner wires the fetch layer, crawler and link checker from appCfg
func NewScanner(appCfg *config.AppConfig, log *logrus.Entry, opts ...Option) *Scanner {
	s := &Scanner{
		appCfg: appCfg,
		log:    log.WithField("component", "scanner"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.httpClient == nil {
		s.httpClient = fetch.NewClient(appCfg.HTTPClientSettings, log)
	}
	rateLimiter := fetch.NewRateLimiter(appCfg.Scan.DelayPerHost, log)
	s.slots = fetch.NewHostSlots(appCfg.Scan.MaxRequestsPerHost, appCfg.Scan.FetchTimeout, s.metrics, log.WithField("component", "host_slots"))
	s.fetcher = fetch.NewFetcher(s.httpClient, appCfg, log,
		fetch.WithRateLimiter(rateLimiter),
		fetch.WithHostSlots(s.slots),
		fetch.WithMetrics(s.metrics),
	)

	crawlOpts := []crawler.Option{crawler.WithMetrics(s.metrics)}
	if appCfg.Scan.RespectRobots {
		crawlOpts = append(crawlOpts, crawler.WithRobots(fetch.NewRobotsHandler(s.fetcher, appCfg.Scan.UserAgent, log)))
	}
	s.crawler = crawler.New(appCfg.Scan, s.fetcher, log.WithField("component", "crawler"), crawlOpts...)
	s.checker = linkcheck.New(appCfg.Scan, s.fetcher, log, linkcheck.WithMetrics(s.metrics))
	return s
}

// RunMaintenance forgets idle per-host request slots until ctx is done. Long-running services call it in a goroutine.
func (s *Scanner) RunMaintenance(ctx context.Context) {
	s.slots.Sweep(ctx, 5*time.Minute)
}

// Run executes one scan: crawl, link check, score. Events are delivered to emit in order:
// progress updates (non-decreasing), occasional pings, then exactly one terminal event,
// done with the report on success or error on failure. Nothing is emitted after it.
func (s *Scanner) Run(ctx context.Context, req Request, emit EmitFunc) (*models.ScanReport, error) {
	em := newEmitter(emit)
	defer em.close()

	target, err := parse.NormalizeTarget(req.URL)
	if err != nil {
		em.terminal(models.NewErrorEvent(err))
		return nil, err
	}
	start := time.Now()
	budget := s.appCfg.Scan.EffectiveMaxPages(req.MaxPages)

	scanLog := s.log.WithFields(logrus.Fields{"target": target, "max_pages": budget})
	if req.ScanID != "" {
		scanLog = scanLog.WithField("scan_id", req.ScanID)
	}
	scanLog.Info("Scan starting")
	s.metrics.ScanStarted()
	if req.FetchTimeout > 0 {
		ctx = fetch.WithRequestTimeout(ctx, req.FetchTimeout)
		scanLog.WithField("fetch_timeout", req.FetchTimeout).Debug("Using per-scan fetch timeout")
	}

	em.progress(progressStarting, labelStarting)

	pingCtx, stopPing := context.WithCancel(ctx)
	pingDone := make(chan struct{})
	go func() {
		defer close(pingDone)
		s.pingLoop(pingCtx, em)
	}()
	defer func() {
		stopPing()
		<-pingDone
	}()

	em.progress(progressCrawling, labelCrawling)
	crawlResult, err := s.crawler.Crawl(ctx, target, budget, func(visited, budget int) {
		ev := models.NewProgressEvent(CrawlProgress(visited, budget), fmt.Sprintf("Crawling pages (%d/%d)", visited, budget))
		ev.Visited = visited
		em.progressEvent(ev)
	})
	if err != nil {
		return nil, s.abort(em, scanLog, start, "crawl", err)
	}

	em.progress(progressLinkCheck, labelLinkCheck)
	linkBroken, err := s.checker.Check(ctx, crawlResult.Pages)
	if err != nil {
		return nil, s.abort(em, scanLog, start, "link check", err)
	}

	em.progress(progressScoring, labelScoring)
	broken := make([]models.BrokenLink, 0, len(crawlResult.Broken)+len(linkBroken))
	broken = append(broken, crawlResult.Broken...)
	broken = append(broken, linkBroken...)
	thinThreshold := s.appCfg.Scan.ThinWordsThreshold
	if req.ThinWordsThreshold > 0 {
		thinThreshold = req.ThinWordsThreshold
	}
	issues, kpis, health := score.Aggregate(crawlResult.Pages, broken, thinThreshold)

	elapsed := time.Since(start)
	report := &models.ScanReport{
		KPIs:   kpis,
		Health: health,
		Issues: issues,
		Meta: models.ReportMeta{
			TargetURL:          target,
			Host:               parse.HostOf(target),
			MaxPages:           budget,
			ThinWordsThreshold: thinThreshold,
			DurationS:          math.Round(elapsed.Seconds()*100) / 100,
			FinishedAt:         time.Now().UTC().Format(finishedAtLayout),
			ClientIP:           req.ClientIP,
			ScanID:             req.ScanID,
		},
	}

	s.metrics.AddBrokenLinks(len(broken))
	s.metrics.ScanFinished("completed", elapsed)
	scanLog.WithFields(logrus.Fields{
		"pages":    kpis.PagesCrawled,
		"broken":   len(broken),
		"score":    health.Score,
		"duration": elapsed.String(),
	}).Infof("Scan completed: %s", health.MainIssue)

	stopPing()
	<-pingDone
	em.progress(progressCompleted, labelCompleted)
	em.terminal(models.NewDoneEvent(report))
	return report, nil
}

// abort ends a scan that could not complete and emits its error event
func (s *Scanner) abort(em *emitter, scanLog *logrus.Entry, start time.Time, phase string, cause error) error {
	outcome := "failed"
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		outcome = "cancelled"
	}
	err := fmt.Errorf("%w during %s: %w", utils.ErrScanAborted, phase, cause)
	s.metrics.ScanFinished(outcome, time.Since(start))
	s.metrics.IncError(utils.CategorizeError(err))
	scanLog.WithField("outcome", outcome).Warnf("Scan aborted: %v", cause)
	em.terminal(models.NewErrorEvent(err))
	return err
}

func (s *Scanner) pingLoop(ctx context.Context, em *emitter) {
	interval := s.appCfg.Scan.PingInterval
	if interval <= 0 {
		interval = defaultPingInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ts := <-ticker.C:
			em.ping(ts)
		}
	}
}

// CrawlProgress maps crawl advancement onto the 10-70 band of the overall progress
func CrawlProgress(visited, budget int) int {
	if budget <= 0 {
		return progressCrawling
	}
	pct := progressCrawling + visited*60/budget
	return max(progressCrawling, min(progressCrawlMax, pct))
}

// emitter serializes events, keeps progress non-decreasing and drops everything after the terminal event
type emitter struct {
	mu       sync.Mutex
	emit     EmitFunc
	last     int
	finished bool
}

func newEmitter(emit EmitFunc) *emitter {
	return &emitter{emit: emit}
}

func (e *emitter) send(ev models.Event) {
	if e.emit != nil {
		e.emit(ev)
	}
}

func (e *emitter) progress(pct int, label string) {
	e.progressEvent(models.NewProgressEvent(pct, label))
}

func (e *emitter) progressEvent(ev models.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished || ev.Progress < e.last {
		return
	}
	e.last = ev.Progress
	e.send(ev)
}

func (e *emitter) ping(ts time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished {
		return
	}
	e.send(models.NewPingEvent(ts))
}

func (e *emitter) terminal(ev models.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished {
		return
	}
	e.finished = true
	e.send(ev)
}

// close suppresses any late event, e.g. from a panicking phase
func (e *emitter) close() {
	e.mu.Lock()
	e.finished = true
	e.mu.Unlock()
}
