package models

import "time"

// EventType tags a scan event. The values double as SSE event names.
type EventType string

const (
	EventProgress EventType = "progress"
	EventPing     EventType = "ping"
	EventDone     EventType = "done"
	EventError    EventType = "error"
)

// Event is a transient notification produced while a scan runs
type Event struct {
	Type      EventType
	Progress  int         // EventProgress: 0..100
	Label     string      // EventProgress
	Visited   int         // EventProgress: pages visited so far, set during the crawl
	Timestamp time.Time   // EventPing
	Report    *ScanReport // EventDone
	Err       error       // EventError
}

// ProgressPayload is the wire body of a progress event
type ProgressPayload struct {
	Progress int    `json:"progress"`
	Label    string `json:"label"`
}

// PingPayload is the wire body of a liveness ping
type PingPayload struct {
	TS float64 `json:"ts"` // Unix seconds
}

// ErrorPayload is the wire body of an error event or a rejected request
type ErrorPayload struct {
	Detail string `json:"detail"`
}

// NewProgressEvent builds a progress update
func NewProgressEvent(pct int, label string) Event {
	return Event{Type: EventProgress, Progress: pct, Label: label}
}

// NewPingEvent builds a liveness ping
func NewPingEvent(ts time.Time) Event {
	return Event{Type: EventPing, Timestamp: ts}
}

// NewDoneEvent builds the terminal report event
func NewDoneEvent(report *ScanReport) Event {
	return Event{Type: EventDone, Report: report}
}

// NewErrorEvent builds the terminal abort event
func NewErrorEvent(err error) Event {
	return Event{Type: EventError, Err: err}
}

// IsTerminal reports whether no further events may follow this one
func (e Event) IsTerminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// Payload returns the JSON-serializable body delivered to clients
func (e Event) Payload() interface{} {
	switch e.Type {
	case EventProgress:
		return ProgressPayload{Progress: e.Progress, Label: e.Label}
	case EventPing:
		return PingPayload{TS: float64(e.Timestamp.Unix()) + float64(e.Timestamp.Nanosecond())/1e9}
	case EventDone:
		return e.Report
	case EventError:
		detail := "scan aborted"
		if e.Err != nil {
			detail = e.Err.Error()
		}
		return ErrorPayload{Detail: detail}
	}
	return nil
}
