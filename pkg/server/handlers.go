package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/seo-audit/pkg/models"
	"github.com/Sriram-PR/seo-audit/pkg/orchestrate"
	"github.com/Sriram-PR/seo-audit/pkg/storage"
	"github.com/Sriram-PR/seo-audit/pkg/utils"
)

const (
	blockedHostDetail   = "Blocked host (localhost/private IP/DNS invalid)"
	defaultListLimit    = 20
	maxListLimit        = 500
	eventChannelBacklog = 16
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleScanStream validates the request, then streams one scan as server-sent events.
// Rejections happen before any event is written and are plain JSON errors.
func (s *Server) handleScanStream(w http.ResponseWriter, r *http.Request) {
	client := s.clientIP(r)
	query := r.URL.Query()

	maxPages, err := s.parseMaxPages(query.Get("max_pages"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.limiter.Allow(client); err != nil {
		var rlErr *RateLimitError
		if errors.As(err, &rlErr) {
			retry := int(rlErr.RetryAfter.Round(time.Second) / time.Second)
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
		}
		s.metrics.IncRateLimited()
		s.log.WithField("client", client).Warn("Scan rejected: rate limit exceeded")
		writeError(w, http.StatusTooManyRequests, err.Error())
		return
	}

	target, err := s.guard.Validate(r.Context(), query.Get("url"))
	if err != nil {
		status, detail := rejection(err)
		if status == http.StatusForbidden {
			s.metrics.IncBlocked()
		}
		s.log.WithFields(logrus.Fields{"client": client, "url": query.Get("url")}).Warnf("Scan rejected: %v", err)
		writeError(w, status, detail)
		return
	}

	sse, ok := newSSEWriter(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	scanID := s.newID()
	scanLog := s.log.WithFields(logrus.Fields{"scan_id": scanID, "target": target, "client": client})
	w.Header().Set(scanIDHeader, scanID)
	sse.start()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events := make(chan models.Event, eventChannelBacklog)
	var report *models.ScanReport
	go func() {
		defer close(events)
		req := orchestrate.Request{URL: target, MaxPages: maxPages, ClientIP: client, ScanID: scanID}
		report, _ = s.scanner.Run(ctx, req, func(ev models.Event) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		})
	}()

	streaming := true
	for ev := range events {
		if !streaming {
			continue
		}
		if err := sse.send(ev); err != nil {
			scanLog.Infof("Client went away, cancelling scan: %v", err)
			streaming = false
			cancel()
		}
	}

	if report != nil && s.store != nil {
		if err := s.store.SaveReport(scanID, report); err != nil {
			scanLog.Errorf("Failed to save report: %v", err)
		}
	}
}

// parseMaxPages accepts an absent value (the default) or an integer within the configured limit
func (s *Server) parseMaxPages(raw string) (int, error) {
	scanCfg := s.cfg.Scan
	if strings.TrimSpace(raw) == "" {
		return scanCfg.EffectiveMaxPages(0), nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || !scanCfg.MaxPagesInRange(n) {
		return 0, fmt.Errorf("max_pages must be an integer between 1 and %d", scanCfg.MaxPagesLimit)
	}
	return n, nil
}

// rejection maps a target validation error to a status code and client-facing detail
func rejection(err error) (int, string) {
	switch {
	case errors.Is(err, utils.ErrBlockedHost):
		return http.StatusForbidden, blockedHostDetail
	case errors.Is(err, utils.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	}
	return http.StatusInternalServerError, "internal error"
}

func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "scan history is disabled")
		return
	}
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxListLimit {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be an integer between 1 and %d", maxListLimit))
			return
		}
		limit = n
	}
	summaries, err := s.store.ListReports(limit)
	if err != nil {
		s.log.Errorf("Failed to list reports: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list scans")
		return
	}
	if summaries == nil {
		summaries = []models.ReportSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"scans": summaries})
}

func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "scan history is disabled")
		return
	}
	id := r.PathValue("id")
	report, err := s.store.GetReport(id)
	if errors.Is(err, storage.ErrReportNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("scan %s not found", id))
		return
	}
	if err != nil {
		s.log.WithField("scan_id", id).Errorf("Failed to load report: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load scan")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, models.ErrorPayload{Detail: detail})
}
