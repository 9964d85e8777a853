package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/seo-audit/pkg/models"
	"github.com/Sriram-PR/seo-audit/pkg/orchestrate"
	"github.com/Sriram-PR/seo-audit/pkg/storage"
	"github.com/Sriram-PR/seo-audit/pkg/utils"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
)

// handleRunScan handles the run_scan tool
func (s *Server) handleRunScan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL := request.GetString("url", "")
	if rawURL == "" {
		return mcp.NewToolResultError("url parameter is required"), nil
	}

	scanCfg := s.cfg.AppConfig.Scan
	maxPages := request.GetInt("max_pages", 0)
	if maxPages != 0 && !scanCfg.MaxPagesInRange(maxPages) {
		return mcp.NewToolResultError(fmt.Sprintf("max_pages must be an integer between 1 and %d", scanCfg.MaxPagesLimit)), nil
	}
	maxPages = scanCfg.EffectiveMaxPages(maxPages)

	target, err := s.cfg.Guard.Validate(ctx, rawURL)
	if err != nil {
		return mcp.NewToolResultError(targetRejection(err)), nil
	}

	job, created := s.jobManager.CreateJob(target, maxPages)
	if !created {
		result := map[string]interface{}{
			"status":  "already_running",
			"message": "A scan is already in progress for this target",
			"job_id":  job.ID,
			"target":  target,
		}
		return mcp.NewToolResultText(formatJSON(result)), nil
	}

	go s.runScanJob(job)

	result := map[string]interface{}{
		"status":    "started",
		"message":   "Scan started successfully",
		"job_id":    job.ID,
		"target":    target,
		"max_pages": maxPages,
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// runScanJob runs a scan job in the background
func (s *Server) runScanJob(job Job) {
	s.jobManager.MarkRunning(job.ID)
	jobCtx := s.jobManager.GetContext(job.ID)
	jobLog := s.log.WithFields(logrus.Fields{"job_id": job.ID, "target": job.Target})

	req := orchestrate.Request{URL: job.Target, MaxPages: job.MaxPages, ScanID: job.ID}
	report, err := s.cfg.Scanner.Run(jobCtx, req, func(ev models.Event) {
		s.jobManager.RecordEvent(job.ID, ev)
	})
	s.jobManager.Finish(job.ID, report, err)
	if err != nil {
		jobLog.Warnf("Scan job ended without a report: %v", err)
		return
	}

	if s.cfg.Store != nil {
		if err := s.cfg.Store.SaveReport(job.ID, report); err != nil {
			jobLog.Errorf("Failed to save report: %v", err)
		}
	}
	jobLog.Infof("Scan job completed with score %d", report.Health.Score)
}

// handleGetScanStatus handles the get_scan_status tool
func (s *Server) handleGetScanStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}

	job, ok := s.jobManager.GetJob(jobID)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' not found", jobID)), nil
	}

	result := map[string]interface{}{
		"job_id":        job.ID,
		"target":        job.Target,
		"status":        job.Status,
		"progress":      job.Progress,
		"label":         job.Label,
		"pages_visited": job.PagesVisited,
		"max_pages":     job.MaxPages,
		"started_at":    job.StartedAt.Format(time.RFC3339),
	}
	if !job.CompletedAt.IsZero() {
		result["completed_at"] = job.CompletedAt.Format(time.RFC3339)
		result["duration_seconds"] = job.CompletedAt.Sub(job.StartedAt).Seconds()
	}
	if job.ErrorMessage != "" {
		result["error_message"] = job.ErrorMessage
	}
	if job.Report != nil {
		result["score"] = job.Report.Health.Score
		result["main_issue"] = job.Report.Health.MainIssue
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleGetScanReport handles the get_scan_report tool. Reports of earlier
// sessions are looked up in the history store.
func (s *Server) handleGetScanReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}

	if job, ok := s.jobManager.GetJob(jobID); ok {
		switch {
		case job.Report != nil:
			return mcp.NewToolResultText(formatJSON(job.Report)), nil
		case job.Status.IsActive():
			return mcp.NewToolResultError(fmt.Sprintf("job '%s' is still %s (%d%%)", jobID, job.Status, job.Progress)), nil
		case job.ErrorMessage != "":
			return mcp.NewToolResultError(fmt.Sprintf("job '%s' %s: %s", jobID, job.Status, job.ErrorMessage)), nil
		default:
			return mcp.NewToolResultError(fmt.Sprintf("job '%s' %s without a report", jobID, job.Status)), nil
		}
	}

	if s.cfg.Store != nil {
		report, err := s.cfg.Store.GetReport(jobID)
		if err == nil {
			return mcp.NewToolResultText(formatJSON(report)), nil
		}
		if !errors.Is(err, storage.ErrReportNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load report: %v", err)), nil
		}
	}
	return mcp.NewToolResultError(fmt.Sprintf("job '%s' not found", jobID)), nil
}

// handleListScans handles the list_scans tool
func (s *Server) handleListScans(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", defaultListLimit)
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	active := make([]map[string]interface{}, 0)
	for _, job := range s.jobManager.ListJobs() {
		if job.Status.IsActive() {
			active = append(active, map[string]interface{}{
				"job_id":   job.ID,
				"target":   job.Target,
				"status":   job.Status,
				"progress": job.Progress,
			})
		}
	}

	var summaries []models.ReportSummary
	source := "session"
	if s.cfg.Store != nil {
		var err error
		summaries, err = s.cfg.Store.ListReports(limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to list scans: %v", err)), nil
		}
		source = "history"
	} else {
		for _, job := range s.jobManager.ListJobs() {
			if job.Report != nil && len(summaries) < limit {
				summaries = append(summaries, job.Report.Summary(job.ID))
			}
		}
	}
	if summaries == nil {
		summaries = []models.ReportSummary{}
	}

	result := map[string]interface{}{
		"scans":   summaries,
		"running": active,
		"source":  source,
		"total":   len(summaries),
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleCancelScan handles the cancel_scan tool
func (s *Server) handleCancelScan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}

	job, ok := s.jobManager.GetJob(jobID)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' not found", jobID)), nil
	}
	if !s.jobManager.CancelJob(jobID) {
		return mcp.NewToolResultError(fmt.Sprintf("job '%s' is already %s", jobID, job.Status)), nil
	}

	result := map[string]interface{}{
		"job_id": jobID,
		"status": models.ScanStatusCancelled,
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleInspectPage handles the inspect_page tool
func (s *Server) handleInspectPage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL := request.GetString("url", "")
	if rawURL == "" {
		return mcp.NewToolResultError("url parameter is required"), nil
	}

	target, err := s.cfg.Guard.Validate(ctx, rawURL)
	if err != nil {
		return mcp.NewToolResultError(targetRejection(err)), nil
	}

	startTime := time.Now()
	inspection, err := s.cfg.Scanner.Inspect(ctx, target)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to inspect page: %v", err)), nil
	}

	result := map[string]interface{}{
		"url":            target,
		"final_url":      inspection.FinalURL,
		"status_code":    inspection.StatusCode,
		"analysis":       inspection.Analysis,
		"headings":       inspection.Headings,
		"markdown":       inspection.Markdown,
		"content_length": len(inspection.Markdown),
		"fetch_time_ms":  time.Since(startTime).Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// targetRejection explains why a target may not be scanned
func targetRejection(err error) string {
	if errors.Is(err, utils.ErrBlockedHost) {
		return "Blocked host (localhost/private IP/DNS invalid)"
	}
	return fmt.Sprintf("invalid URL: %v", err)
}

// formatJSON formats data as an indented JSON string
func formatJSON(data interface{}) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": %q}", err.Error())
	}
	return string(b)
}
