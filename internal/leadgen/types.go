// Package leadgen defines core types shared across subsystems.
package leadgen

import (
	"strings"
	"time"
)

// RunStatus represents the lifecycle state of a lead-discovery run.
type RunStatus string

// Run status values persisted in the run store.
const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// AbsentValue is substituted for raw-item fields missing from the crawl output.
const AbsentValue = "N/A"

// RunParameters captures per-run configuration knobs requested by the client.
// All location fields may be empty; they are joined best-effort.
type RunParameters struct {
	Sector     string `json:"sector"`
	City       string `json:"city"`
	State      string `json:"state"`
	Postcode   string `json:"postcode"`
	Country    string `json:"country"`
	Keyword    string `json:"keyword"`
	MaxResults int    `json:"max_results"`
}

// Location joins the non-empty location fields in a fixed order.
func (p RunParameters) Location() string {
	parts := make([]string, 0, 4)
	for _, f := range []string{p.City, p.State, p.Postcode, p.Country} {
		if s := strings.TrimSpace(f); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// Run represents the metadata persisted for each submitted discovery request.
type Run struct {
	ID         string        `json:"id"`
	Status     RunStatus     `json:"status"`
	Submitted  time.Time     `json:"submitted_at"`
	Started    *time.Time    `json:"started_at,omitempty"`
	Finished   *time.Time    `json:"finished_at,omitempty"`
	ErrorText  string        `json:"error_text,omitempty"`
	Parameters RunParameters `json:"parameters"`
	Counters   RunCounters   `json:"counters"`
}

// RunCounters tracks per-run progress stats.
type RunCounters struct {
	ItemsObserved int `json:"items_observed"`
	LeadsEmitted  int `json:"leads_emitted"`
}

// RunError is the structured error record pushed to the sink when a run
// fails before producing a lead set.
type RunError struct {
	RunID      string    `json:"run_id"`
	Stage      string    `json:"stage"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RawItem is one loosely-typed place record from the external crawl. Any
// field may be absent in any given item, so access goes through the
// defaulting accessors below.
type RawItem map[string]any

// Str returns the string value for key, or AbsentValue when the key is
// missing or holds a non-string.
func (it RawItem) Str(key string) string {
	if v, ok := it[key].(string); ok {
		return v
	}
	return AbsentValue
}

// Float returns the numeric value for key, or 0 when absent. JSON decoding
// yields float64 for all numbers.
func (it RawItem) Float(key string) float64 {
	if v, ok := it[key].(float64); ok {
		return v
	}
	return 0
}

// Int returns the numeric value for key truncated to int, or 0 when absent.
func (it RawItem) Int(key string) int {
	return int(it.Float(key))
}

// Lead is the normalized business record emitted as final output.
type Lead struct {
	Name        string  `json:"name"`
	Sector      string  `json:"sector"`
	Keyword     string  `json:"keyword"`
	City        string  `json:"city"`
	Phone       string  `json:"phone"`
	Email       string  `json:"email"`
	Website     string  `json:"website"`
	Address     string  `json:"address"`
	Rating      float64 `json:"rating"`
	ReviewCount int     `json:"reviewCount"`
	MapsURL     string  `json:"googleMapsUrl"`
	Category    string  `json:"category"`
	SearchQuery string  `json:"searchQuery"`
}

// Key returns the uniqueness key for deduplication: name and address joined
// verbatim. No case or whitespace normalization is applied, so records
// differing only in casing count as distinct.
func (l Lead) Key() string {
	return l.Name + "_" + l.Address
}

// CrawlRequest is the configuration submitted to the external crawl service
// for one search. Expensive extras (reviews, images, web results) stay
// disabled and geographic expansion is forbidden to bound cost.
type CrawlRequest struct {
	SearchStrings      []string
	MaxPlacesPerSearch int
	Language           string
	CountryCode        string
}

// CrawlJob is the handle returned by a successful crawl start. It is owned
// exclusively by the controller that started it.
type CrawlJob struct {
	ID        string
	DatasetID string
}

// QueueItem wraps a run ready to execute.
type QueueItem struct {
	RunID     string
	Params    RunParameters
	Submitted int64
}
