package orchestrate

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Sriram-PR/seo-audit/pkg/models"
)

// TargetResult contains the result of scanning one target of a batch
type TargetResult struct {
	Target   string
	Report   *models.ScanReport // nil on failure
	Err      error
	Duration time.Duration
}

// ScanAll scans several targets in parallel, at most concurrency at a time,
// and returns one result per request in request order.
func (s *Scanner) ScanAll(ctx context.Context, reqs []Request, concurrency int) []TargetResult {
	if concurrency < 1 {
		concurrency = 1
	}
	startTime := time.Now()
	s.log.Infof("Starting batch scan of %d targets (concurrency %d)", len(reqs), concurrency)

	sem := semaphore.NewWeighted(int64(concurrency))
	results := make([]TargetResult, len(reqs))
	var wg sync.WaitGroup

	for i, req := range reqs {
		results[i].Target = req.URL
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i].Err = err
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			start := time.Now()
			report, err := s.Run(ctx, req, nil)
			results[i].Report = report
			results[i].Err = err
			results[i].Duration = time.Since(start)
		}()
	}

	wg.Wait()
	s.logSummary(results, time.Since(startTime))
	return results
}

// logSummary logs a summary of all batch results
func (s *Scanner) logSummary(results []TargetResult, totalDuration time.Duration) {
	s.log.Info("============================================")
	s.log.Infof("Batch scan completed in %v", totalDuration)
	s.log.Info("Target Results:")

	successCount := 0
	failCount := 0
	totalPages := 0

	for _, r := range results {
		if r.Err != nil {
			failCount++
			s.log.Infof("  %s: FAILED in %v", r.Target, r.Duration)
			s.log.Infof("    Error: %v", r.Err)
			continue
		}
		successCount++
		totalPages += r.Report.KPIs.PagesCrawled
		s.log.Infof("  %s: score %d (%s) - %d pages in %v",
			r.Target, r.Report.Health.Score, r.Report.Health.MainIssue, r.Report.KPIs.PagesCrawled, r.Duration)
	}

	s.log.Info("--------------------------------------------")
	s.log.Infof("Total: %d targets (%d success, %d failed), %d pages analyzed",
		len(results), successCount, failCount, totalPages)
	s.log.Info("============================================")
}
