// CLAUDE:SUMMARY Metric aggregator — fixed per-domain numeric policies turning raw events into DomainSummaries
package insights

import (
	"math"
	"time"

	"github.com/har5h1l/wellnessgrid/internal/config"
	"github.com/har5h1l/wellnessgrid/internal/db"
)

// Glucose target range in mg/dL; values above the ceiling count as spikes.
const (
	glucoseRangeLow  = 70.0
	glucoseRangeHigh = 180.0
)

// Aggregator turns per-domain event lists into summary statistics. It is
// pure computation: no I/O, no provider calls.
type Aggregator struct {
	glucoseDeadband float64
	moodDeadband    float64
	now             func() time.Time
}

func NewAggregator(cfg config.InsightsConfig) *Aggregator {
	a := &Aggregator{
		glucoseDeadband: cfg.GlucoseTrendDeadband,
		moodDeadband:    cfg.MoodTrendDeadband,
		now:             time.Now,
	}
	if a.glucoseDeadband == 0 {
		a.glucoseDeadband = 10
	}
	if a.moodDeadband == 0 {
		a.moodDeadband = 0.5
	}
	return a
}

// SetClock overrides the aggregator's clock (tests pin it).
func (a *Aggregator) SetClock(now func() time.Time) { a.now = now }

// Summarize computes the summary for one domain over one window. Events are
// expected newest first (the store's order). A domain with zero events
// yields trend insufficient_data and nil numeric fields; it never fails.
func (a *Aggregator) Summarize(domain Domain, window Window, events []db.TrackingEvent) DomainSummary {
	s := DomainSummary{
		Domain:      domain,
		Window:      window.Label,
		SampleCount: len(events),
		Trend:       TrendInsufficientData,
		Streak:      CalendarStreak(a.now(), events),
	}
	if domain == DomainMedication {
		// Adherence is 0 for an empty window, not null.
		zero := 0.0
		s.AdherencePct = &zero
	}
	if len(events) == 0 {
		return s
	}

	switch domain {
	case DomainGlucose:
		a.summarizeGlucose(&s, events)
	case DomainMood:
		a.summarizeMood(&s, events)
	case DomainMedication:
		a.summarizeMedication(&s, events)
	case DomainSleep:
		a.summarizeScalar(&s, window, events, []string{"hours", "duration_hours"}, "quality")
	case DomainExercise:
		a.summarizeScalar(&s, window, events, []string{"minutes", "duration_min"}, "type")
	case DomainSymptom:
		a.summarizeScalar(&s, window, events, []string{"severity"}, "name")
	}
	return s
}

// summarizeGlucose computes 7d and 30d averages independently of the
// requested window, spike and in-range counts over the window, and a trend
// from the difference of the two averages against the configured deadband.
func (a *Aggregator) summarizeGlucose(s *DomainSummary, events []db.TrackingEvent) {
	now := a.now()
	cut7 := now.AddDate(0, 0, -7)
	cut30 := now.AddDate(0, 0, -30)

	var sum7, sum30 float64
	var n7, n30, spikes, inRange, valued int
	for _, ev := range events {
		v := payloadNumber(ev.Payload, "level", "glucose_level")
		if v == nil {
			continue
		}
		valued++
		if *v > glucoseRangeHigh {
			spikes++
		}
		if *v >= glucoseRangeLow && *v <= glucoseRangeHigh {
			inRange++
		}
		if ev.Timestamp.After(cut7) {
			sum7 += *v
			n7++
		}
		if ev.Timestamp.After(cut30) {
			sum30 += *v
			n30++
		}
	}
	if valued == 0 {
		return
	}

	s.SpikeCount = spikes
	pct := float64(inRange) / float64(valued) * 100
	s.InRangePct = &pct

	if n7 > 0 {
		avg7 := sum7 / float64(n7)
		s.Average = &avg7
	}
	if n30 > 0 {
		avg30 := sum30 / float64(n30)
		s.Average30d = &avg30
	}

	s.Trend = TrendStable
	s.Direction = "stable"
	if s.Average != nil && s.Average30d != nil {
		// A rising average means worse glucose control.
		switch diff := *s.Average - *s.Average30d; {
		case diff > a.glucoseDeadband:
			s.Direction = "increasing"
			s.Trend = TrendDeclining
		case diff < -a.glucoseDeadband:
			s.Direction = "decreasing"
			s.Trend = TrendImproving
		}
	}
}

// summarizeMood averages the score (1 decimal) and derives the trend by
// splitting the ordered samples at the midpoint and comparing half means
// against the configured deadband.
func (a *Aggregator) summarizeMood(s *DomainSummary, events []db.TrackingEvent) {
	// Oldest first for the midpoint split.
	var values []float64
	for i := len(events) - 1; i >= 0; i-- {
		if v := payloadNumber(events[i].Payload, "score", "mood_score"); v != nil {
			values = append(values, *v)
		}
	}
	if len(values) == 0 {
		return
	}

	avg := round1(mean(values))
	s.Average = &avg
	s.Trend = TrendStable
	s.Direction = "stable"

	mid := len(values) / 2
	older, newer := values[:mid], values[mid:]
	if len(older) == 0 || len(newer) == 0 {
		return
	}
	switch diff := mean(newer) - mean(older); {
	case diff > a.moodDeadband:
		s.Trend = TrendImproving
		s.Direction = "increasing"
	case diff < -a.moodDeadband:
		s.Trend = TrendDeclining
		s.Direction = "decreasing"
	}
}

func (a *Aggregator) summarizeMedication(s *DomainSummary, events []db.TrackingEvent) {
	taken := 0
	for _, ev := range events {
		if b, ok := ev.Payload["taken"].(bool); ok && b {
			taken++
		}
	}
	pct := float64(taken) / float64(len(events)) * 100
	s.AdherencePct = &pct
	s.Trend = TrendStable
}

// summarizeScalar is the shared policy for sleep, exercise, and symptom:
// a primary numeric average, a consistency ratio (entries per day in
// window), and the modal value of a categorical payload field.
func (a *Aggregator) summarizeScalar(s *DomainSummary, window Window, events []db.TrackingEvent, keys []string, modalKey string) {
	var values []float64
	counts := map[string]int{}
	for _, ev := range events {
		if v := payloadNumber(ev.Payload, keys...); v != nil {
			values = append(values, *v)
		}
		if c, ok := ev.Payload[modalKey].(string); ok && c != "" {
			counts[c]++
		}
	}
	if len(values) > 0 {
		avg := round1(mean(values))
		s.Average = &avg
	}

	days := window.Days
	if days == 0 {
		// Unbounded window: measure from the oldest entry (events are
		// newest first).
		oldest := events[len(events)-1].Timestamp
		days = int(a.now().Sub(oldest).Hours()/24) + 1
	}
	if days > 0 {
		ratio := float64(len(events)) / float64(days)
		s.Consistency = &ratio
	}

	best := 0
	for c, n := range counts {
		if n > best {
			best = n
			s.Modal = c
		}
	}
	s.Trend = TrendStable
}

// CalendarStreak counts consecutive calendar days with at least one entry,
// walking backward from today. A gap of exactly one day at the head is
// tolerated so a still-pending "today" entry does not zero the streak; any
// larger gap terminates it.
func CalendarStreak(now time.Time, events []db.TrackingEvent) int {
	if len(events) == 0 {
		return 0
	}
	days := make(map[string]bool, len(events))
	for _, ev := range events {
		days[ev.Timestamp.Format("2006-01-02")] = true
	}

	day := now
	if !days[day.Format("2006-01-02")] {
		day = day.AddDate(0, 0, -1)
		if !days[day.Format("2006-01-02")] {
			return 0
		}
	}

	streak := 0
	for days[day.Format("2006-01-02")] {
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}

// payloadNumber extracts the first non-null numeric value among the given
// payload keys. JSON numbers decode as float64; ints appear from direct
// construction in tests and tools.
func payloadNumber(p map[string]any, keys ...string) *float64 {
	for _, k := range keys {
		switch v := p[k].(type) {
		case float64:
			f := v
			return &f
		case int:
			f := float64(v)
			return &f
		case int64:
			f := float64(v)
			return &f
		}
	}
	return nil
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
