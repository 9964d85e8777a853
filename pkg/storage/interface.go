package storage

import (
	"context"
	"time"

	"github.com/Sriram-PR/seo-audit/pkg/models"
)

// ReportReader gives read access to finished reports
type ReportReader interface {
	// GetReport returns the report stored under id, or ErrReportNotFound
	GetReport(id string) (*models.ScanReport, error)

	// ListReports returns summaries of the most recent reports, newest first.
	// limit <= 0 returns every stored report.
	ListReports(limit int) ([]models.ReportSummary, error)
}

// ReportWriter records and removes finished reports
type ReportWriter interface {
	// SaveReport stores a finished report under id, replacing any previous report with that id
	SaveReport(id string, report *models.ScanReport) error

	// DeleteReport removes a report. Deleting an unknown id returns ErrReportNotFound.
	DeleteReport(id string) error
}

// StoreAdmin handles lifecycle and administrative operations
type StoreAdmin interface {
	// RunGC runs periodic garbage collection. Should be run in a goroutine
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the database connection
	Close() error
}

// ReportStore combines all store interfaces for components that need full access
type ReportStore interface {
	ReportReader
	ReportWriter
	StoreAdmin
}
