package insights

import (
	"testing"
	"time"

	"github.com/har5h1l/wellnessgrid/internal/config"
	"github.com/har5h1l/wellnessgrid/internal/db"
)

func testAggregator(now time.Time) *Aggregator {
	a := NewAggregator(config.DefaultConfig().Insights)
	a.SetClock(func() time.Time { return now })
	return a
}

// eventsAt builds one event per payload, spaced hoursApart going back in
// time from now, newest first (matching the store's order).
func eventsAt(now time.Time, domain Domain, hoursApart int, payloads []map[string]any) []db.TrackingEvent {
	events := make([]db.TrackingEvent, len(payloads))
	for i, p := range payloads {
		events[i] = db.TrackingEvent{
			ID:        "evt_test",
			UserID:    "usr_test",
			DomainID:  string(domain),
			Payload:   p,
			Timestamp: now.Add(-time.Duration(i*hoursApart) * time.Hour),
		}
	}
	return events
}

func TestSummarizeGlucose(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	agg := testAggregator(now)

	payloads := []map[string]any{
		{"level": 90.0},
		{"level": 95.0},
		{"level": 200.0},
		{"level": 205.0},
		{"level": 100.0},
	}
	s := agg.Summarize(DomainGlucose, Window7d, eventsAt(now, DomainGlucose, 6, payloads))

	if s.SpikeCount != 2 {
		t.Errorf("SpikeCount = %d, want 2", s.SpikeCount)
	}
	if s.InRangePct == nil || *s.InRangePct != 60 {
		t.Errorf("InRangePct = %v, want 60", s.InRangePct)
	}
	if s.Average == nil || *s.Average != 138 {
		t.Errorf("Average = %v, want 138", s.Average)
	}
	// All five readings fall inside both windows, so the averages match and
	// the trend sits inside the deadband.
	if s.Trend != TrendStable {
		t.Errorf("Trend = %q, want stable", s.Trend)
	}
}

func TestSummarizeGlucoseTrendMapping(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	agg := testAggregator(now)

	// Recent week at ~200, older weeks at ~100: the 7d average exceeds the
	// 30d average by more than the deadband, which is worse control.
	var events []db.TrackingEvent
	for day := 0; day < 28; day++ {
		level := 100.0
		if day < 7 {
			level = 200.0
		}
		events = append(events, db.TrackingEvent{
			DomainID:  string(DomainGlucose),
			Payload:   map[string]any{"level": level},
			Timestamp: now.AddDate(0, 0, -day),
		})
	}
	s := agg.Summarize(DomainGlucose, Window30d, events)
	if s.Trend != TrendDeclining {
		t.Errorf("Trend = %q, want declining for rising averages", s.Trend)
	}
	if s.Direction != "increasing" {
		t.Errorf("Direction = %q, want increasing", s.Direction)
	}
}

func TestSummarizeGlucoseDualKey(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	agg := testAggregator(now)

	payloads := []map[string]any{
		{"glucose_level": 120.0},
		{"level": 130.0},
	}
	s := agg.Summarize(DomainGlucose, Window7d, eventsAt(now, DomainGlucose, 6, payloads))
	if s.Average == nil || *s.Average != 125 {
		t.Errorf("Average = %v, want 125 across both payload keys", s.Average)
	}
}

func TestSummarizeMoodDeclining(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	agg := testAggregator(now)

	// Newest first in store order: recent scores 2, older scores 5.
	payloads := []map[string]any{
		{"score": 2.0},
		{"score": 2.0},
		{"score": 5.0},
		{"score": 5.0},
	}
	s := agg.Summarize(DomainMood, Window7d, eventsAt(now, DomainMood, 12, payloads))
	if s.Average == nil || *s.Average != 3.5 {
		t.Errorf("Average = %v, want 3.5", s.Average)
	}
	if s.Trend != TrendDeclining {
		t.Errorf("Trend = %q, want declining", s.Trend)
	}
}

func TestSummarizeMoodInsideDeadband(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	agg := testAggregator(now)

	payloads := []map[string]any{
		{"score": 3.4},
		{"score": 3.0},
	}
	s := agg.Summarize(DomainMood, Window7d, eventsAt(now, DomainMood, 12, payloads))
	if s.Trend != TrendStable {
		t.Errorf("Trend = %q, want stable inside deadband", s.Trend)
	}
}

func TestSummarizeMedication(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	agg := testAggregator(now)

	payloads := []map[string]any{
		{"taken": true},
		{"taken": true},
		{"taken": false},
		{"taken": true},
	}
	s := agg.Summarize(DomainMedication, Window7d, eventsAt(now, DomainMedication, 12, payloads))
	if s.AdherencePct == nil || *s.AdherencePct != 75 {
		t.Errorf("AdherencePct = %v, want 75", s.AdherencePct)
	}
}

func TestSummarizeMedicationEmptyIsZeroNotNil(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	agg := testAggregator(now)

	s := agg.Summarize(DomainMedication, Window7d, nil)
	if s.AdherencePct == nil {
		t.Fatal("AdherencePct is nil for empty window, want pointer to 0")
	}
	if *s.AdherencePct != 0 {
		t.Errorf("AdherencePct = %v, want 0", *s.AdherencePct)
	}
	if s.Trend != TrendInsufficientData {
		t.Errorf("Trend = %q, want insufficient_data", s.Trend)
	}
}

func TestSummarizeEmptyDomain(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	agg := testAggregator(now)

	s := agg.Summarize(DomainSleep, Window7d, nil)
	if s.Trend != TrendInsufficientData {
		t.Errorf("Trend = %q, want insufficient_data", s.Trend)
	}
	if s.Average != nil {
		t.Errorf("Average = %v, want nil", s.Average)
	}
	if s.Streak != 0 {
		t.Errorf("Streak = %d, want 0", s.Streak)
	}
}

func TestSummarizeSleepConsistencyAndModal(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	agg := testAggregator(now)

	payloads := []map[string]any{
		{"hours": 7.0, "quality": "good"},
		{"hours": 6.0, "quality": "good"},
		{"hours": 8.0, "quality": "poor"},
	}
	events := make([]db.TrackingEvent, len(payloads))
	for i, p := range payloads {
		events[i] = db.TrackingEvent{
			DomainID:  string(DomainSleep),
			Payload:   p,
			Timestamp: now.AddDate(0, 0, -i),
		}
	}

	s := agg.Summarize(DomainSleep, Window7d, events)
	if s.Average == nil || *s.Average != 7 {
		t.Errorf("Average = %v, want 7", s.Average)
	}
	if s.Consistency == nil {
		t.Fatal("Consistency is nil")
	}
	want := 3.0 / 7.0
	if *s.Consistency != want {
		t.Errorf("Consistency = %v, want %v", *s.Consistency, want)
	}
	if s.Modal != "good" {
		t.Errorf("Modal = %q, want good", s.Modal)
	}
}

func TestCalendarStreakHeadGrace(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	// Entries yesterday and the two days before, nothing yet today.
	var events []db.TrackingEvent
	for d := 1; d <= 3; d++ {
		events = append(events, db.TrackingEvent{
			Timestamp: now.AddDate(0, 0, -d),
		})
	}
	if got := CalendarStreak(now, events); got != 3 {
		t.Errorf("streak = %d, want 3 with one-day head grace", got)
	}

	// A two-day head gap zeroes the streak.
	var stale []db.TrackingEvent
	for d := 2; d <= 4; d++ {
		stale = append(stale, db.TrackingEvent{
			Timestamp: now.AddDate(0, 0, -d),
		})
	}
	if got := CalendarStreak(now, stale); got != 0 {
		t.Errorf("streak = %d, want 0 after a two-day gap", got)
	}
}

func TestCalendarStreakGapInPast(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	// Today, yesterday, then a gap, then older entries: only the unbroken
	// run counts.
	events := []db.TrackingEvent{
		{Timestamp: now},
		{Timestamp: now.AddDate(0, 0, -1)},
		{Timestamp: now.AddDate(0, 0, -4)},
		{Timestamp: now.AddDate(0, 0, -5)},
	}
	if got := CalendarStreak(now, events); got != 2 {
		t.Errorf("streak = %d, want 2", got)
	}
}

func TestCalendarStreakMultipleEntriesSameDay(t *testing.T) {
	now := time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)

	events := []db.TrackingEvent{
		{Timestamp: now},
		{Timestamp: now.Add(-2 * time.Hour)},
		{Timestamp: now.AddDate(0, 0, -1)},
	}
	if got := CalendarStreak(now, events); got != 2 {
		t.Errorf("streak = %d, want 2 (same-day entries count once)", got)
	}
}
