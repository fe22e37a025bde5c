// Package models defines data structures for the scraper.
package models

import (
	"sort"
	"time"
)

// Record is one product pulled out of a listing page.
//
// Name is the only required field. Price is nil when the price element is
// missing or its text does not parse; ImageURL and Link are empty when absent.
type Record struct {
	Name     string            `json:"name"`
	Price    *float64          `json:"price"`
	ImageURL string            `json:"image_url,omitempty"`
	Link     string            `json:"link,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
	Page     int               `json:"-"`
}

// HasPrice reports whether a price was extracted.
func (r *Record) HasPrice() bool {
	return r != nil && r.Price != nil
}

// ExtraKeys returns the record's extra field names in sorted order.
func (r *Record) ExtraKeys() []string {
	keys := make([]string, 0, len(r.Extra))
	for k := range r.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Stop reasons reported in RunResult.
const (
	StopExhausted  = "exhausted"
	StopFetchError = "fetch_error"
	StopMaxPages   = "max_pages"
	StopCanceled   = "canceled"
)

// RunResult holds the overall result of a pagination run.
type RunResult struct {
	Records      []*Record
	StartTime    time.Time
	EndTime      time.Time
	PageCount    int
	LastPage     int
	StopReason   string
	DroppedCount int
	// DuplicateCount is how many kept records repeated an earlier
	// (name, link) pair. Records still holds them.
	DuplicateCount int
	ErrorCount     int
	ErrorsByType   map[string]int
	RetryCount     int
}

// Duration returns how long the run took.
func (r *RunResult) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}
