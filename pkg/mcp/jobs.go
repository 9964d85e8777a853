package mcp

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Sriram-PR/seo-audit/pkg/models"
)

// Job represents a background scan started through the run_scan tool
type Job struct {
	ID           string            `json:"job_id"`
	Target       string            `json:"target"`
	MaxPages     int               `json:"max_pages"`
	Status       models.ScanStatus `json:"status"`
	Progress     int               `json:"progress"`
	Label        string            `json:"label"`
	PagesVisited int               `json:"pages_visited"`
	StartedAt    time.Time         `json:"started_at"`
	CompletedAt  time.Time         `json:"completed_at,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`

	Report *models.ScanReport `json:"-"` // Set once completed

	// Internal fields
	ctx    context.Context
	cancel context.CancelFunc
}

// JobManager tracks background scans. At most one active job exists per target.
type JobManager struct {
	jobs     map[string]*Job
	mu       sync.RWMutex
	byTarget map[string]string // target -> jobID for active jobs
}

// NewJobManager creates a new job manager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:     make(map[string]*Job),
		byTarget: make(map[string]string),
	}
}

// CreateJob registers a pending job for target. When a job for the same target
// is still active it is returned instead and created is false.
func (m *JobManager) CreateJob(target string, maxPages int) (job Job, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existingID, exists := m.byTarget[target]; exists {
		if existing := m.jobs[existingID]; existing != nil && existing.Status.IsActive() {
			return *existing, false
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &Job{
		ID:        uuid.New().String(),
		Target:    target,
		MaxPages:  maxPages,
		Status:    models.ScanStatusPending,
		StartedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
	m.jobs[j.ID] = j
	m.byTarget[target] = j.ID
	return *j, true
}

// GetJob returns a snapshot of a job
func (m *JobManager) GetJob(jobID string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if job, exists := m.jobs[jobID]; exists {
		return *job, true
	}
	return Job{}, false
}

// IsRunning checks if an active job exists for target
func (m *JobManager) IsRunning(target string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if jobID, exists := m.byTarget[target]; exists {
		job := m.jobs[jobID]
		return job != nil && job.Status.IsActive()
	}
	return false
}

// MarkRunning moves a pending job to running
func (m *JobManager) MarkRunning(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, exists := m.jobs[jobID]; exists && job.Status == models.ScanStatusPending {
		job.Status = models.ScanStatusRunning
	}
}

// RecordEvent applies a scan progress event to the job
func (m *JobManager) RecordEvent(jobID string, ev models.Event) {
	if ev.Type != models.EventProgress {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, exists := m.jobs[jobID]; exists && job.Status.IsActive() {
		job.Progress = ev.Progress
		job.Label = ev.Label
		if ev.Visited > job.PagesVisited {
			job.PagesVisited = ev.Visited
		}
	}
}

// Finish records the outcome of a job. A job already cancelled stays cancelled.
func (m *JobManager) Finish(jobID string, report *models.ScanReport, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[jobID]
	if !exists || job.Status.IsTerminal() {
		return
	}
	switch {
	case err == nil:
		job.Status = models.ScanStatusCompleted
		job.Report = report
		if report != nil {
			job.PagesVisited = report.KPIs.PagesCrawled
		}
	case errors.Is(err, context.Canceled):
		job.Status = models.ScanStatusCancelled
	default:
		job.Status = models.ScanStatusFailed
		job.ErrorMessage = err.Error()
	}
	job.CompletedAt = time.Now()
	job.cancel()
	m.release(job)
}

// CancelJob cancels an active job
func (m *JobManager) CancelJob(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, exists := m.jobs[jobID]; exists && job.Status.IsActive() {
		job.cancel()
		job.Status = models.ScanStatusCancelled
		job.CompletedAt = time.Now()
		m.release(job)
		return true
	}
	return false
}

// CancelAll cancels every active job
func (m *JobManager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, job := range m.jobs {
		if job.Status.IsActive() {
			job.cancel()
			job.Status = models.ScanStatusCancelled
			job.CompletedAt = time.Now()
		}
	}
	m.byTarget = make(map[string]string)
}

// release frees the target slot held by job. Caller holds m.mu.
func (m *JobManager) release(job *Job) {
	if m.byTarget[job.Target] == job.ID {
		delete(m.byTarget, job.Target)
	}
}

// ListJobs returns snapshots of all jobs, newest first
func (m *JobManager) ListJobs() []Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, *job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].StartedAt.After(jobs[j].StartedAt) })
	return jobs
}

// GetContext returns the context a job's scan runs under
func (m *JobManager) GetContext(jobID string) context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if job, exists := m.jobs[jobID]; exists {
		return job.ctx
	}
	return context.Background()
}
