package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// PageAnalysis holds the SEO signals extracted from one successfully fetched HTML page
type PageAnalysis struct {
	URL             string   `json:"url" yaml:"url"`
	Title           string   `json:"title" yaml:"title"`
	MetaDescription string   `json:"meta_description" yaml:"meta_description"`
	H1Count         int      `json:"h1_count" yaml:"h1_count"`
	WordCount       int      `json:"word_count" yaml:"word_count"`
	InternalLinks   []string `json:"internal_links" yaml:"internal_links"` // Same-host, fragment-stripped, first-seen order
}

// transportErrorMarker is the status value reported when no HTTP response was received
const transportErrorMarker = "error"

// LinkStatus is either a numeric HTTP status or the transport-error marker.
// The zero value represents a transport error.
type LinkStatus struct {
	Code int
}

// HTTPStatus wraps a numeric HTTP status code
func HTTPStatus(code int) LinkStatus { return LinkStatus{Code: code} }

// TransportError is the status for fetches that never produced a response
var TransportError = LinkStatus{}

// IsTransportError reports whether the status is the transport-error marker
func (s LinkStatus) IsTransportError() bool { return s.Code == 0 }

// String implements fmt.Stringer for logging
func (s LinkStatus) String() string {
	if s.IsTransportError() {
		return transportErrorMarker
	}
	return strconv.Itoa(s.Code)
}

// MarshalJSON renders the status as a number or the string "error"
func (s LinkStatus) MarshalJSON() ([]byte, error) {
	if s.IsTransportError() {
		return json.Marshal(transportErrorMarker)
	}
	return json.Marshal(s.Code)
}

// UnmarshalJSON accepts a number or the string "error"
func (s *LinkStatus) UnmarshalJSON(data []byte) error {
	var code int
	if err := json.Unmarshal(data, &code); err == nil {
		s.Code = code
		return nil
	}
	var marker string
	if err := json.Unmarshal(data, &marker); err != nil {
		return fmt.Errorf("link status: %w", err)
	}
	if marker != transportErrorMarker {
		return fmt.Errorf("link status: unexpected marker %q", marker)
	}
	s.Code = 0
	return nil
}

// MarshalYAML mirrors MarshalJSON for YAML reports
func (s LinkStatus) MarshalYAML() (interface{}, error) {
	if s.IsTransportError() {
		return transportErrorMarker, nil
	}
	return s.Code, nil
}

// BrokenLink records a URL that could not be fetched or answered with status >= 400
type BrokenLink struct {
	From   *string    `json:"from" yaml:"from"` // nil when the crawled page itself failed
	To     string     `json:"to" yaml:"to"`
	Status LinkStatus `json:"status" yaml:"status"`
	Error  string     `json:"error,omitempty" yaml:"error,omitempty"`
}

// IsCritical reports whether the record carries a numeric status >= 400
func (b BrokenLink) IsCritical() bool {
	return !b.Status.IsTransportError() && b.Status.Code >= 400
}

// Source returns the linking page, or "" for self-fetch failures
func (b BrokenLink) Source() string {
	if b.From == nil {
		return ""
	}
	return *b.From
}

// PageRef identifies a page in an issue list
type PageRef struct {
	URL string `json:"url" yaml:"url"`
}

// ThinPage is a page whose word count is below the thin-content threshold
type ThinPage struct {
	URL   string `json:"url" yaml:"url"`
	Words int    `json:"words" yaml:"words"`
}

// IssueSet aggregates every finding of a scan
type IssueSet struct {
	MissingMetaDescriptions []PageRef           `json:"missing_meta_descriptions" yaml:"missing_meta_descriptions"`
	BrokenLinks             []BrokenLink        `json:"broken_links" yaml:"broken_links"`
	DuplicateTitles         map[string][]string `json:"duplicate_titles" yaml:"duplicate_titles"`
	ThinPages               []ThinPage          `json:"thin_pages" yaml:"thin_pages"`
	MissingH1               []PageRef           `json:"missing_h1" yaml:"missing_h1"`
}

// KPIs are the headline counters of a report
type KPIs struct {
	PagesCrawled            int `json:"pages_crawled" yaml:"pages_crawled"`
	CriticalIssues          int `json:"critical_issues" yaml:"critical_issues"`
	MissingMetaDescriptions int `json:"missing_meta_descriptions" yaml:"missing_meta_descriptions"`
	ThinPages               int `json:"thin_pages" yaml:"thin_pages"`
}

// Health is the derived 0-100 score and its headline issue
type Health struct {
	Score     int    `json:"score" yaml:"score"`
	MainIssue string `json:"main_issue" yaml:"main_issue"`
}

// ReportMeta describes how and when a scan ran
type ReportMeta struct {
	TargetURL          string  `json:"target_url" yaml:"target_url"`
	Host               string  `json:"host" yaml:"host"`
	MaxPages           int     `json:"max_pages" yaml:"max_pages"`
	ThinWordsThreshold int     `json:"thin_words_threshold" yaml:"thin_words_threshold"`
	DurationS          float64 `json:"duration_s" yaml:"duration_s"`
	FinishedAt         string  `json:"finished_at" yaml:"finished_at"` // UTC, RFC3339 with "Z"
	ClientIP           string  `json:"client_ip,omitempty" yaml:"client_ip,omitempty"`
	ScanID             string  `json:"scan_id,omitempty" yaml:"scan_id,omitempty"`
}

// ScanReport is the terminal deliverable of a completed scan
type ScanReport struct {
	KPIs   KPIs       `json:"kpis" yaml:"kpis"`
	Health Health     `json:"health" yaml:"health"`
	Issues IssueSet   `json:"issues" yaml:"issues"`
	Meta   ReportMeta `json:"meta" yaml:"meta"`
}

// ReportSummary is the compact form of a stored report used for history listings
type ReportSummary struct {
	ID           string `json:"id"`
	TargetURL    string `json:"target_url"`
	Host         string `json:"host"`
	Score        int    `json:"score"`
	MainIssue    string `json:"main_issue"`
	PagesCrawled int    `json:"pages_crawled"`
	FinishedAt   string `json:"finished_at"`
}

// Summary condenses the report for history listings
func (r *ScanReport) Summary(id string) ReportSummary {
	return ReportSummary{
		ID:           id,
		TargetURL:    r.Meta.TargetURL,
		Host:         r.Meta.Host,
		Score:        r.Health.Score,
		MainIssue:    r.Health.MainIssue,
		PagesCrawled: r.KPIs.PagesCrawled,
		FinishedAt:   r.Meta.FinishedAt,
	}
}
