package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the Prometheus collectors of the audit service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry       *prometheus.Registry
	ScansTotal     *prometheus.CounterVec
	PagesFetched   *prometheus.CounterVec
	LinkChecks     *prometheus.CounterVec
	BrokenLinks    prometheus.Counter
	RetriesTotal   prometheus.Counter
	ErrorsTotal    *prometheus.CounterVec
	RateLimited    prometheus.Counter
	BlockedTargets prometheus.Counter
	FetchDuration  prometheus.Histogram
	ScanDuration   prometheus.Histogram
	ScansInFlight  prometheus.Gauge
	HostRequests   prometheus.Gauge
	HostSlotWaits  prometheus.Counter
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	scans := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seo_audit_scans_total",
			Help: "Scans finished, by outcome (completed, failed, cancelled).",
		},
		[]string{"outcome"},
	)
	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seo_audit_pages_fetched_total",
			Help: "Crawl fetches by result (analyzed, http_error, transport_error, skipped).",
		},
		[]string{"result"},
	)
	linkChecks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seo_audit_link_checks_total",
			Help: "Internal link probes by result (ok, broken, error).",
		},
		[]string{"result"},
	)
	broken := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "seo_audit_broken_links_total",
			Help: "Broken link records reported across all scans.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "seo_audit_fetch_retries_total",
			Help: "Total number of fetch retry attempts scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seo_audit_errors_total",
			Help: "Errors by category.",
		},
		[]string{"category"},
	)
	rateLimited := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "seo_audit_rate_limited_total",
			Help: "Scan requests rejected by the per-client rate limit.",
		},
	)
	blocked := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "seo_audit_blocked_targets_total",
			Help: "Scan requests rejected by the host safety gate.",
		},
	)
	fetchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "seo_audit_fetch_duration_seconds",
			Help:    "Latency of individual HTTP fetches and probes.",
			Buckets: prometheus.DefBuckets,
		},
	)
	scanDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "seo_audit_scan_duration_seconds",
			Help:    "Wall time of whole scans.",
			Buckets: []float64{1, 2.5, 5, 10, 20, 40, 80, 160, 320},
		},
	)
	inFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "seo_audit_scans_in_flight",
			Help: "Scans currently running.",
		},
	)

	hostRequests := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "seo_audit_host_requests_in_flight",
			Help: "Requests currently holding a per-host request slot.",
		},
	)
	hostSlotWaits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "seo_audit_host_slot_timeouts_total",
			Help: "Requests that gave up waiting for a per-host request slot.",
		},
	)

	registry.MustRegister(scans, pages, linkChecks, broken, retries, errorsTotal,
		rateLimited, blocked, fetchDuration, scanDuration, inFlight, hostRequests, hostSlotWaits)

	return &Metrics{
		Registry:       registry,
		ScansTotal:     scans,
		PagesFetched:   pages,
		LinkChecks:     linkChecks,
		BrokenLinks:    broken,
		RetriesTotal:   retries,
		ErrorsTotal:    errorsTotal,
		RateLimited:    rateLimited,
		BlockedTargets: blocked,
		FetchDuration:  fetchDuration,
		ScanDuration:   scanDuration,
		ScansInFlight:  inFlight,
		HostRequests:   hostRequests,
		HostSlotWaits:  hostSlotWaits,
	}
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ScanStarted increments the in-flight gauge.
func (m *Metrics) ScanStarted() {
	if m == nil {
		return
	}
	m.ScansInFlight.Inc()
}

// ScanFinished records the outcome and wall time of a scan and decrements the in-flight gauge.
func (m *Metrics) ScanFinished(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ScansInFlight.Dec()
	m.ScansTotal.WithLabelValues(outcome).Inc()
	m.ScanDuration.Observe(d.Seconds())
}

// IncPageFetch counts one crawl fetch by result.
func (m *Metrics) IncPageFetch(result string) {
	if m == nil {
		return
	}
	m.PagesFetched.WithLabelValues(result).Inc()
}

// IncLinkCheck counts one link probe by result.
func (m *Metrics) IncLinkCheck(result string) {
	if m == nil {
		return
	}
	m.LinkChecks.WithLabelValues(result).Inc()
}

// AddBrokenLinks adds the broken link records of a finished scan.
func (m *Metrics) AddBrokenLinks(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BrokenLinks.Add(float64(n))
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a category label.
func (m *Metrics) IncError(category string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(category).Inc()
}

// IncRateLimited counts a request rejected by the client rate limit.
func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}

// IncBlocked counts a target rejected by the host safety gate.
func (m *Metrics) IncBlocked() {
	if m == nil {
		return
	}
	m.BlockedTargets.Inc()
}

// ObserveFetch records an HTTP fetch duration.
func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

// HostSlotAcquired counts a request entering a per-host slot.
func (m *Metrics) HostSlotAcquired() {
	if m == nil {
		return
	}
	m.HostRequests.Inc()
}

// HostSlotReleased counts a request leaving a per-host slot.
func (m *Metrics) HostSlotReleased() {
	if m == nil {
		return
	}
	m.HostRequests.Dec()
}

// IncHostSlotTimeout counts a request that gave up waiting for a per-host slot.
func (m *Metrics) IncHostSlotTimeout() {
	if m == nil {
		return
	}
	m.HostSlotWaits.Inc()
}
