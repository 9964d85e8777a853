package linkcheck

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Sriram-PR/seo-audit/pkg/config"
	"github.com/Sriram-PR/seo-audit/pkg/metrics"
	"github.com/Sriram-PR/seo-audit/pkg/models"
	"github.com/Sriram-PR/seo-audit/pkg/utils"
)

// DefaultCap is the link check ceiling used when none is configured
const DefaultCap = 120

// Prober is the subset of *fetch.Fetcher the checker needs
type Prober interface {
	Probe(ctx context.Context, rawURL string) (int, error)
}

// Item is one link scheduled for checking
type Item struct {
	From string // Page the link was found on
	To   string
}

// Checker probes internal links found during a crawl
type Checker struct {
	prober  Prober
	cap     int
	workers int
	metrics *metrics.Metrics // optional
	log     *logrus.Entry
}

// Option customizes a Checker
type Option func(*Checker)

// WithMetrics records probe results
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Checker) { c.metrics = m }
}

// New creates a Checker using the link check cap and worker count from cfg
func New(cfg config.ScanConfig, prober Prober, log *logrus.Entry, opts ...Option) *Checker {
	c := &Checker{
		prober:  prober,
		cap:     cfg.LinkCheckCap,
		workers: cfg.LinkCheckWorkers,
		log:     log.WithField("component", "linkcheck"),
	}
	if c.cap <= 0 {
		c.cap = DefaultCap
	}
	if c.workers < 1 {
		c.workers = 1
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Checklist flattens the pages' internal links in crawl order, then extraction order,
// and truncates the result to limit entries. The same link found on two pages is checked twice.
func Checklist(pages []models.PageAnalysis, limit int) []Item {
	var items []Item
	for _, p := range pages {
		for _, link := range p.InternalLinks {
			if len(items) >= limit {
				return items
			}
			items = append(items, Item{From: p.URL, To: link})
		}
	}
	return items
}

// Check probes the checklist of pages and returns one record per broken link, in checklist order.
// A link is broken when its final status is >= 400 or the probe failed at the transport level.
// On cancellation the records gathered so far are discarded and ctx.Err() is returned.
func (c *Checker) Check(ctx context.Context, pages []models.PageAnalysis) ([]models.BrokenLink, error) {
	items := Checklist(pages, c.cap)
	results := make([]*models.BrokenLink, len(items))
	start := time.Now()

	g := new(errgroup.Group)
	g.SetLimit(c.workers)
	for i, item := range items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = c.probe(ctx, item)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		c.log.WithField("checked", len(items)).Warnf("Link check interrupted: %v", err)
		return nil, err
	}

	broken := make([]models.BrokenLink, 0)
	for _, r := range results {
		if r != nil {
			broken = append(broken, *r)
		}
	}

	c.log.WithFields(logrus.Fields{
		"checked":  len(items),
		"broken":   len(broken),
		"duration": time.Since(start).String(),
	}).Info("Link check finished")
	return broken, nil
}

func (c *Checker) probe(ctx context.Context, item Item) *models.BrokenLink {
	from := item.From
	linkLog := c.log.WithFields(logrus.Fields{"from": item.From, "to": item.To})

	status, err := c.prober.Probe(ctx, item.To)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		c.metrics.IncLinkCheck("error")
		c.metrics.IncError(utils.CategorizeError(err))
		linkLog.Debugf("Link probe failed: %v", err)
		return &models.BrokenLink{From: &from, To: item.To, Status: models.TransportError, Error: err.Error()}
	}
	if status >= http.StatusBadRequest {
		c.metrics.IncLinkCheck("broken")
		linkLog.WithField("status_code", status).Debug("Broken link")
		return &models.BrokenLink{From: &from, To: item.To, Status: models.HTTPStatus(status)}
	}
	c.metrics.IncLinkCheck("ok")
	return nil
}
