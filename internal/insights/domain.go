// Package insights implements the analytics pipeline: a query-driven context
// analyzer, per-domain metric aggregation, wellness scoring with an LLM
// refinement path and a deterministic fallback, insight generation with
// freshness reuse, and a dedup/cache coordinator in front of it all.
package insights

import (
	"time"

	"github.com/har5h1l/wellnessgrid/internal/db"
)

// Domain is one tracked health category.
type Domain string

const (
	DomainGlucose    Domain = "glucose"
	DomainMood       Domain = "mood"
	DomainSleep      Domain = "sleep"
	DomainExercise   Domain = "exercise"
	DomainMedication Domain = "medication"
	DomainSymptom    Domain = "symptom"
	// DomainProfile is the non-windowed health profile pseudo-domain.
	DomainProfile Domain = "health-profile"
)

// TrackedDomains are the event-bearing domains, in display order.
var TrackedDomains = []Domain{
	DomainGlucose, DomainMood, DomainSleep,
	DomainExercise, DomainMedication, DomainSymptom,
}

// ValidDomain reports whether id names an event-bearing domain.
func ValidDomain(id string) bool {
	for _, d := range TrackedDomains {
		if string(d) == id {
			return true
		}
	}
	return false
}

// Trend labels a domain's direction over its window.
type Trend string

const (
	TrendImproving        Trend = "improving"
	TrendDeclining        Trend = "declining"
	TrendStable           Trend = "stable"
	TrendInsufficientData Trend = "insufficient_data"
)

// Window is the time range a summary is computed over.
type Window struct {
	Label string // "today", "7d", "30d", "all"
	Days  int    // 0 = unbounded
}

var (
	WindowToday = Window{Label: "today", Days: 1}
	Window7d    = Window{Label: "7d", Days: 7}
	Window30d   = Window{Label: "30d", Days: 30}
	WindowAll   = Window{Label: "all", Days: 0}
)

// Since resolves the window's lower bound relative to now. "today" means the
// start of the current calendar day; an unbounded window returns the zero time.
func (w Window) Since(now time.Time) time.Time {
	switch {
	case w.Days == 0:
		return time.Time{}
	case w.Label == "today":
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	default:
		return now.AddDate(0, 0, -w.Days)
	}
}

// WindowForLabel maps a time-range label to a Window, defaulting to 7d.
func WindowForLabel(label string) Window {
	switch label {
	case "today":
		return WindowToday
	case "30d", "month", "monthly":
		return Window30d
	case "all", "history":
		return WindowAll
	default:
		return Window7d
	}
}

// DomainSummary is the derived statistics for one domain over one window.
// Pointer fields distinguish "not computable" (nil) from a genuine zero;
// downstream consumers must preserve that distinction.
type DomainSummary struct {
	Domain      Domain  `json:"domain_id"`
	Window      string  `json:"window"`
	SampleCount int     `json:"sample_count"`
	Trend       Trend   `json:"trend"`
	Direction   string  `json:"direction,omitempty"` // raw numeric direction: increasing/decreasing/stable

	Average      *float64 `json:"average,omitempty"`
	Average30d   *float64 `json:"average_30d,omitempty"`    // glucose only
	InRangePct   *float64 `json:"in_range_ratio,omitempty"` // percent of values in target range
	SpikeCount   int      `json:"spike_count,omitempty"`
	AdherencePct *float64 `json:"adherence_pct,omitempty"` // medication only; 0 when empty, never nil for medication
	Consistency  *float64 `json:"consistency,omitempty"`   // entries per day in window
	Modal        string   `json:"modal,omitempty"`         // most frequent categorical value
	Streak       int      `json:"streak"`
}

// ContextRequirements is the output of query analysis: which domains a
// question needs and over what window.
type ContextRequirements struct {
	Domains        []Domain `json:"domains"`
	Window         Window   `json:"window"`
	IncludeProfile bool     `json:"include_profile"`
}

// UserDataSummary is the fetched context for one user: windowed per-domain
// summaries plus the non-windowed profile and conditions.
type UserDataSummary struct {
	Profile         *db.HealthProfile        `json:"profile,omitempty"`
	Conditions      []db.Condition           `json:"conditions,omitempty"`
	Summaries       map[Domain]DomainSummary `json:"summaries"`
	Window          string                   `json:"window"`
	TotalDataPoints int                      `json:"total_data_points"`
}
