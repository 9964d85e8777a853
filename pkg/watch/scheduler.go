package watch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/seo-audit/pkg/orchestrate"
	"github.com/Sriram-PR/seo-audit/pkg/storage"
)

// BatchScanner scans several targets at once. *orchestrate.Scanner satisfies it.
type BatchScanner interface {
	ScanAll(ctx context.Context, reqs []orchestrate.Request, concurrency int) []orchestrate.TargetResult
}

// Options configure a Scheduler
type Options struct {
	Targets     []string
	Interval    time.Duration
	MaxPages    int // 0 means the configured default
	Concurrency int
	StateDir    string              // Where watch_state.yaml lives; empty keeps state in memory
	Store       storage.ReportWriter // Optional; receives every finished report
}

// Scheduler re-scans watched targets periodically and reports score changes
type Scheduler struct {
	opts         Options
	scanner      BatchScanner
	log          *logrus.Entry
	stateManager *StateManager
	tick         time.Duration
	newID        func() string

	busy atomic.Bool
	wg   sync.WaitGroup
}

// NewScheduler creates a new watch scheduler
func NewScheduler(opts Options, scanner BatchScanner, log *logrus.Entry) *Scheduler {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	s := &Scheduler{
		opts:         opts,
		scanner:      scanner,
		log:          log.WithField("component", "watch"),
		stateManager: NewStateManager(opts.StateDir),
		newID:        uuid.NewString,
	}
	s.tick = calculateTickInterval(opts.Interval)
	return s
}

// Run scans due targets immediately and then on every tick, blocking until ctx is done
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.opts.Targets) == 0 {
		return fmt.Errorf("no watch targets configured")
	}
	if s.opts.Interval <= 0 {
		return fmt.Errorf("watch interval must be positive")
	}
	if err := s.stateManager.Load(); err != nil {
		s.log.Warnf("Failed to load watch state: %v (starting fresh)", err)
	}

	s.log.Infof("Starting watch mode for %d targets with interval %s", len(s.opts.Targets), FormatInterval(s.opts.Interval))
	s.logSchedule()

	s.runDueTargets(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Watch scheduler shutting down...")
			s.wg.Wait()
			return nil
		case <-ticker.C:
			s.runDueTargets(ctx)
		}
	}
}

// runDueTargets starts a batch for every due target unless one is still in flight
func (s *Scheduler) runDueTargets(ctx context.Context) {
	due := s.getDueTargets()
	if len(due) == 0 {
		s.logNextRun()
		return
	}
	if !s.busy.CompareAndSwap(false, true) {
		s.log.Debug("Previous watch batch still running, skipping tick")
		return
	}

	s.log.Infof("Scanning %d due targets: %v", len(due), due)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.busy.Store(false)
		s.scanBatch(ctx, due)
		s.logNextRun()
	}()
}

// scanBatch scans targets, saves the reports and records the new state
func (s *Scheduler) scanBatch(ctx context.Context, targets []string) {
	reqs := make([]orchestrate.Request, len(targets))
	for i, target := range targets {
		reqs[i] = orchestrate.Request{URL: target, MaxPages: s.opts.MaxPages, ScanID: s.newID()}
	}

	results := s.scanner.ScanAll(ctx, reqs, s.opts.Concurrency)
	if ctx.Err() != nil {
		// Cancelled runs are not recorded so the targets stay due on restart
		return
	}

	for i, result := range results {
		s.recordResult(reqs[i].URL, reqs[i].ScanID, result)
	}
	if err := s.stateManager.Save(); err != nil {
		s.log.Errorf("Failed to save watch state: %v", err)
	}
}

func (s *Scheduler) recordResult(target, scanID string, result orchestrate.TargetResult) {
	targetLog := s.log.WithField("target", target)
	previous, hadPrevious := s.stateManager.GetTargetState(target)

	if result.Err != nil || result.Report == nil {
		msg := "no report"
		if result.Err != nil {
			msg = result.Err.Error()
		}
		targetLog.Warnf("Watch scan failed: %s", msg)
		state := previous
		state.LastRunTime = time.Time{}
		state.LastRunSuccess = false
		state.ErrorMessage = msg
		s.stateManager.UpdateTargetState(target, state)
		return
	}

	report := result.Report
	if s.opts.Store != nil {
		if err := s.opts.Store.SaveReport(scanID, report); err != nil {
			targetLog.Errorf("Failed to save report: %v", err)
		}
	}

	fields := logrus.Fields{
		"score":  report.Health.Score,
		"pages":  report.KPIs.PagesCrawled,
		"report": scanID,
	}
	switch {
	case !hadPrevious || previous.ReportID == "":
		targetLog.WithFields(fields).Infof("Baseline score %d: %s", report.Health.Score, report.Health.MainIssue)
	case report.Health.Score != previous.Score:
		delta := report.Health.Score - previous.Score
		fields["previous_score"] = previous.Score
		fields["delta"] = delta
		entry := targetLog.WithFields(fields)
		if delta < 0 {
			entry.Warnf("Score dropped %d -> %d: %s", previous.Score, report.Health.Score, report.Health.MainIssue)
		} else {
			entry.Infof("Score improved %d -> %d", previous.Score, report.Health.Score)
		}
	default:
		targetLog.WithFields(fields).Infof("Score unchanged at %d", report.Health.Score)
	}

	s.stateManager.UpdateTargetState(target, TargetState{
		LastRunSuccess: true,
		PagesCrawled:   report.KPIs.PagesCrawled,
		Score:          report.Health.Score,
		MainIssue:      report.Health.MainIssue,
		ReportID:       scanID,
	})
}

// getDueTargets returns targets that are due for a scan
func (s *Scheduler) getDueTargets() []string {
	var due []string
	for _, target := range s.opts.Targets {
		if s.stateManager.ShouldRun(target, s.opts.Interval) {
			due = append(due, target)
		}
	}
	return due
}

// calculateTickInterval returns how often to check for due targets
func calculateTickInterval(interval time.Duration) time.Duration {
	// Check at least every minute, or every 1/10th of the interval
	checkInterval := interval / 10
	if checkInterval < time.Minute {
		checkInterval = time.Minute
	}
	if checkInterval > 10*time.Minute {
		checkInterval = 10 * time.Minute
	}
	return checkInterval
}

// logSchedule logs the current schedule
func (s *Scheduler) logSchedule() {
	s.log.Info("Watch schedule:")
	for _, target := range s.opts.Targets {
		state, exists := s.stateManager.GetTargetState(target)
		if !exists {
			s.log.Infof("  %s: never scanned, will scan immediately", target)
			continue
		}
		status := fmt.Sprintf("score %d", state.Score)
		if !state.LastRunSuccess {
			status = "failed"
		}
		nextRun := s.stateManager.GetNextRunTime(target, s.opts.Interval)
		s.log.Infof("  %s: last scan %v (%s), next scan %v",
			target,
			state.LastRunTime.Format(time.RFC3339),
			status,
			nextRun.Format(time.RFC3339))
	}
}

// logNextRun logs when the next scan will occur
func (s *Scheduler) logNextRun() {
	type nextRun struct {
		target string
		at     time.Time
	}
	var runs []nextRun
	for _, target := range s.opts.Targets {
		runs = append(runs, nextRun{target, s.stateManager.GetNextRunTime(target, s.opts.Interval)})
	}
	if len(runs) == 0 {
		return
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].at.Before(runs[j].at) })

	next := runs[0]
	until := time.Until(next.at)
	if until < 0 {
		until = 0
	}
	s.log.Infof("Next scan: %s in %v (at %s)", next.target, until.Round(time.Second), next.at.Format("15:04:05"))
}

// Status returns the last known state of every watched target
func (s *Scheduler) Status() map[string]TargetStatus {
	status := make(map[string]TargetStatus, len(s.opts.Targets))
	for _, target := range s.opts.Targets {
		state, exists := s.stateManager.GetTargetState(target)
		status[target] = TargetStatus{
			TargetState: state,
			Target:      target,
			NextRunTime: s.stateManager.GetNextRunTime(target, s.opts.Interval),
			NeverRun:    !exists,
		}
	}
	return status
}

// TargetStatus contains the status of a watched target
type TargetStatus struct {
	TargetState
	Target      string
	NextRunTime time.Time
	NeverRun    bool
}

// FormatInterval formats a duration for display
func FormatInterval(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		if mins > 0 {
			return fmt.Sprintf("%dh%dm", hours, mins)
		}
		return fmt.Sprintf("%dh", hours)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	if hours > 0 {
		return fmt.Sprintf("%dd%dh", days, hours)
	}
	return fmt.Sprintf("%dd", days)
}

// ParseInterval parses a duration string with support for a leading day count, e.g. "7d" or "1d12h"
func ParseInterval(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("interval must be positive: %s", s)
		}
		return d, nil
	}

	var days int
	var remaining string
	n, _ := fmt.Sscanf(s, "%dd%s", &days, &remaining)
	if n >= 1 && days > 0 {
		d = time.Duration(days) * 24 * time.Hour
		if remaining != "" {
			extra, err := time.ParseDuration(remaining)
			if err != nil {
				return 0, fmt.Errorf("invalid interval format: %s", s)
			}
			d += extra
		}
		return d, nil
	}

	return 0, fmt.Errorf("invalid interval format: %s (examples: 30m, 1h, 24h, 7d)", s)
}
