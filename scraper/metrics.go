package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry         *prometheus.Registry
	PagesTotal       *prometheus.CounterVec
	FetchDuration    prometheus.Histogram
	RecordsTotal     prometheus.Counter
	DroppedTotal     *prometheus.CounterVec
	MissingFieldsTot *prometheus.CounterVec
	RetriesTotal     prometheus.Counter
	ErrorsTotal      *prometheus.CounterVec
	DuplicatesTotal  prometheus.Counter
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_pages_total",
			Help: "Listing pages fetched, by outcome.",
		},
		[]string{"outcome"},
	)
	fetchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_page_fetch_duration_seconds",
			Help:    "Latency of a single page fetch including parsing.",
			Buckets: prometheus.DefBuckets,
		},
	)
	records := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_records_extracted_total",
			Help: "Total number of records extracted from item elements.",
		},
	)
	dropped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_records_dropped_total",
			Help: "Item elements that produced no record, by reason.",
		},
		[]string{"reason"},
	)
	missing := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_missing_fields_total",
			Help: "Optional fields left absent on kept records, by field.",
		},
		[]string{"field"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_retries_total",
			Help: "Total number of page retry attempts.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of page fetch errors by type.",
		},
		[]string{"error_type"},
	)

	duplicates := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_duplicates_total",
			Help: "Extracted records whose name and link were already seen in the run.",
		},
	)

	registry.MustRegister(pages, fetchDuration, records, dropped, missing, retries, errorsTotal, duplicates)

	return &Metrics{
		Registry:         registry,
		PagesTotal:       pages,
		FetchDuration:    fetchDuration,
		RecordsTotal:     records,
		DroppedTotal:     dropped,
		MissingFieldsTot: missing,
		RetriesTotal:     retries,
		ErrorsTotal:      errorsTotal,
		DuplicatesTotal:  duplicates,
	}
}

// IncPage increments the page counter for an outcome
// (items, empty, error, discarded).
func (m *Metrics) IncPage(outcome string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetch records a page fetch duration.
func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

// IncRecords increments the extracted records counter.
func (m *Metrics) IncRecords() {
	if m == nil {
		return
	}
	m.RecordsTotal.Inc()
}

// IncDropped increments the dropped elements counter.
func (m *Metrics) IncDropped(reason string) {
	if m == nil {
		return
	}
	m.DroppedTotal.WithLabelValues(reason).Inc()
}

// IncMissing increments the absent field counter.
func (m *Metrics) IncMissing(field string) {
	if m == nil {
		return
	}
	m.MissingFieldsTot.WithLabelValues(field).Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncDuplicate increments the duplicate records counter.
func (m *Metrics) IncDuplicate() {
	if m == nil {
		return
	}
	m.DuplicatesTotal.Inc()
}
