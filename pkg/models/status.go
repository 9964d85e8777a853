package models

// ScanStatus represents the lifecycle state of a background scan
type ScanStatus string

const (
	ScanStatusUnset     ScanStatus = ""          // Zero value = unset/unknown
	ScanStatusPending   ScanStatus = "pending"   // Created, not started
	ScanStatusRunning   ScanStatus = "running"   // Crawl or link check in progress
	ScanStatusCompleted ScanStatus = "completed" // Report delivered
	ScanStatusFailed    ScanStatus = "failed"    // Aborted by an orchestration error
	ScanStatusCancelled ScanStatus = "cancelled" // Cancelled by the caller
)

// String implements fmt.Stringer for logging
func (s ScanStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsActive returns true while the scan may still emit events
func (s ScanStatus) IsActive() bool {
	return s == ScanStatusPending || s == ScanStatusRunning
}

// IsTerminal returns true once the scan has finished one way or another
func (s ScanStatus) IsTerminal() bool {
	switch s {
	case ScanStatusCompleted, ScanStatusFailed, ScanStatusCancelled:
		return true
	}
	return false
}
