package insights

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/har5h1l/wellnessgrid/internal/config"
	"github.com/har5h1l/wellnessgrid/internal/db"
	"github.com/har5h1l/wellnessgrid/internal/llm"
)

func testService(t *testing.T, database *db.DB, providers ...llm.Provider) (*Service, *Coordinator) {
	t.Helper()
	cfg := config.DefaultConfig().Insights
	agg := NewAggregator(cfg)
	analyzer := NewAnalyzer(database, agg)
	coord := NewCoordinator(cfg)
	client := llm.New(providers)
	client.SetBackoff(time.Millisecond)
	orch := NewOrchestrator(database, analyzer, client, coord, cfg, nil)
	scorer := NewScoreCalculator(database, agg, client, nil)
	return NewService(database, agg, analyzer, orch, scorer, coord, client, nil), coord
}

// seedDailyPair inserts one event per day for two domains with the given
// per-day values, newest day first.
func seedDailyPair(t *testing.T, database *db.DB, userID string, a Domain, aKey string, aVals []float64, b Domain, bKey string, bVals []float64) {
	t.Helper()
	now := time.Now().UTC()
	for i := range aVals {
		ts := now.AddDate(0, 0, -i)
		if _, err := database.InsertEvent(db.CreateEventInput{
			UserID: userID, DomainID: string(a),
			Payload: map[string]any{aKey: aVals[i]}, Timestamp: ts,
		}); err != nil {
			t.Fatalf("seeding %s: %v", a, err)
		}
		if _, err := database.InsertEvent(db.CreateEventInput{
			UserID: userID, DomainID: string(b),
			Payload: map[string]any{bKey: bVals[i]}, Timestamp: ts,
		}); err != nil {
			t.Fatalf("seeding %s: %v", b, err)
		}
	}
}

func TestPearson(t *testing.T) {
	tests := []struct {
		name string
		xs   []float64
		ys   []float64
		want float64
		ok   bool
	}{
		{"perfect positive", []float64{1, 2, 3, 4}, []float64{2, 4, 6, 8}, 1, true},
		{"perfect negative", []float64{1, 2, 3, 4}, []float64{8, 6, 4, 2}, -1, true},
		{"partial", []float64{1, 2, 3}, []float64{1, 3, 2}, 0.5, true},
		{"zero variance", []float64{5, 5, 5}, []float64{1, 2, 3}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pearson(tt.xs, tt.ys)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("pearson = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDailyAverages(t *testing.T) {
	day := time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC)
	events := []db.TrackingEvent{
		{Payload: map[string]any{"level": 100.0}, Timestamp: day},
		{Payload: map[string]any{"glucose_level": 120.0}, Timestamp: day.Add(6 * time.Hour)},
		{Payload: map[string]any{"note": "no number"}, Timestamp: day},
		{Payload: map[string]any{"level": 90.0}, Timestamp: day.AddDate(0, 0, -1)},
	}
	got := dailyAverages(events, []string{"level", "glucose_level"})
	if len(got) != 2 {
		t.Fatalf("days = %d, want 2 (%v)", len(got), got)
	}
	if got["2026-08-20"] != 110 {
		t.Errorf("same-day average = %v, want 110", got["2026-08-20"])
	}
	if got["2026-08-19"] != 90 {
		t.Errorf("prior-day average = %v, want 90", got["2026-08-19"])
	}
}

func TestGetAnalyticsCorrelations(t *testing.T) {
	database := openTestDB(t)
	u, _ := database.CreateUser("corr@example.com", "h")

	// More exercise tracks with lower glucose across four days.
	seedDailyPair(t, database, u.ID,
		DomainExercise, "minutes", []float64{40, 30, 20, 10},
		DomainGlucose, "level", []float64{100, 110, 120, 130})

	svc, _ := testService(t, database)
	payload, err := svc.GetAnalytics(context.Background(), u.ID, "7d", AnalyticsOptions{Cached: true})
	if err != nil {
		t.Fatalf("GetAnalytics: %v", err)
	}
	r, ok := payload.Correlations["exercise_vs_glucose"]
	if !ok {
		t.Fatalf("correlations missing exercise_vs_glucose: %v", payload.Correlations)
	}
	if r != -1 {
		t.Errorf("exercise_vs_glucose = %v, want -1", r)
	}
	if _, ok := payload.Correlations["sleep_vs_mood"]; ok {
		t.Error("sleep_vs_mood reported with no sleep or mood data")
	}
}

func TestGetAnalyticsRollup(t *testing.T) {
	database := openTestDB(t)
	u, _ := database.CreateUser("rollup@example.com", "h")
	seedEvents(t, database, u.ID, DomainGlucose, 4)
	if err := database.UpsertProfile(&db.HealthProfile{UserID: u.ID, Goals: []string{"steady glucose"}}); err != nil {
		t.Fatalf("profile: %v", err)
	}

	svc, _ := testService(t, database)
	payload, err := svc.GetAnalytics(context.Background(), u.ID, "7d", AnalyticsOptions{Cached: true})
	if err != nil {
		t.Fatalf("GetAnalytics: %v", err)
	}
	if payload.Window != "7d" {
		t.Errorf("Window = %q, want 7d", payload.Window)
	}
	if payload.DataPoints != 4 {
		t.Errorf("DataPoints = %d, want 4", payload.DataPoints)
	}
	if payload.HealthScore != nil {
		t.Errorf("HealthScore = %+v, want nil before any calculation", payload.HealthScore)
	}
	if len(payload.Goals) != 1 || payload.Goals[0] != "steady glucose" {
		t.Errorf("Goals = %v", payload.Goals)
	}
	sum, ok := payload.Trends[DomainGlucose]
	if !ok || sum.SampleCount != 4 {
		t.Errorf("glucose trend = %+v, ok=%v", sum, ok)
	}
	if _, ok := payload.Streaks[DomainGlucose]; !ok {
		t.Error("Streaks missing glucose")
	}
}

func TestGetAnalyticsCachedReuse(t *testing.T) {
	database := openTestDB(t)
	u, _ := database.CreateUser("cache@example.com", "h")
	seedEvents(t, database, u.ID, DomainGlucose, 3)

	svc, coord := testService(t, database)
	start := time.Now()
	now := start
	coord.SetClock(func() time.Time { return now })

	first, err := svc.GetAnalytics(context.Background(), u.ID, "7d", AnalyticsOptions{Cached: true})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if first.AgeMinutes != 0 {
		t.Errorf("first AgeMinutes = %d, want 0", first.AgeMinutes)
	}

	// New data landed but nothing invalidated the cache: the second cached
	// request serves the stored payload and reports its age.
	seedEvents(t, database, u.ID, DomainGlucose, 1)
	now = start.Add(5 * time.Minute)
	second, err := svc.GetAnalytics(context.Background(), u.ID, "7d", AnalyticsOptions{Cached: true})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second.AgeMinutes != 5 {
		t.Errorf("second AgeMinutes = %d, want 5", second.AgeMinutes)
	}
	if second.DataPoints != first.DataPoints {
		t.Errorf("cached DataPoints = %d, want %d", second.DataPoints, first.DataPoints)
	}

	// ForceRefresh recomputes regardless of the cache and dedup window.
	third, err := svc.GetAnalytics(context.Background(), u.ID, "7d", AnalyticsOptions{Cached: true, ForceRefresh: true})
	if err != nil {
		t.Fatalf("forced: %v", err)
	}
	if third.AgeMinutes != 0 {
		t.Errorf("forced AgeMinutes = %d, want 0", third.AgeMinutes)
	}
	if third.DataPoints != first.DataPoints+1 {
		t.Errorf("forced DataPoints = %d, want %d", third.DataPoints, first.DataPoints+1)
	}
}

func TestGetAnalyticsInsightsToggle(t *testing.T) {
	database := openTestDB(t)
	u, _ := database.CreateUser("toggle@example.com", "h")
	seedEvents(t, database, u.ID, DomainGlucose, 3)
	for i := 0; i < 2; i++ {
		if err := database.AppendInsight(&db.Insight{
			UserID:      u.ID,
			InsightType: InsightGeneral,
			Insights:    db.InsightBody{Summary: "stored"},
		}); err != nil {
			t.Fatalf("appending insight: %v", err)
		}
	}

	svc, _ := testService(t, database)
	with, err := svc.GetAnalytics(context.Background(), u.ID, "7d", AnalyticsOptions{IncludeInsights: true, Cached: true})
	if err != nil {
		t.Fatalf("with insights: %v", err)
	}
	if len(with.Insights) != 2 {
		t.Errorf("Insights = %d, want 2", len(with.Insights))
	}

	without, err := svc.GetAnalytics(context.Background(), u.ID, "7d", AnalyticsOptions{IncludeInsights: false, Cached: true})
	if err != nil {
		t.Fatalf("without insights: %v", err)
	}
	if len(without.Insights) != 0 {
		t.Errorf("Insights = %d, want 0 when not requested", len(without.Insights))
	}
}

func TestGetAnalyticsUncachedDedup(t *testing.T) {
	database := openTestDB(t)
	u, _ := database.CreateUser("dedup@example.com", "h")
	seedEvents(t, database, u.ID, DomainGlucose, 3)

	svc, _ := testService(t, database)
	if _, err := svc.GetAnalytics(context.Background(), u.ID, "7d", AnalyticsOptions{}); err != nil {
		t.Fatalf("first uncached: %v", err)
	}
	_, err := svc.GetAnalytics(context.Background(), u.ID, "7d", AnalyticsOptions{})
	if err == nil {
		t.Fatal("rapid uncached repeat accepted")
	}
	if _, ok := err.(*TooFrequentError); !ok {
		t.Errorf("err = %v, want TooFrequentError", err)
	}
}

func TestAnswerQuestionFallsBackToData(t *testing.T) {
	database := openTestDB(t)
	u, _ := database.CreateUser("ask@example.com", "h")
	seedEvents(t, database, u.ID, DomainGlucose, 4)

	// No providers configured: the answer degrades to the data recital.
	svc, _ := testService(t, database)
	answer, provider, err := svc.AnswerQuestion(context.Background(), u.ID, "how is my blood sugar this week?")
	if err != nil {
		t.Fatalf("AnswerQuestion: %v", err)
	}
	if provider != "none" {
		t.Errorf("provider = %q, want none", provider)
	}
	if !strings.Contains(answer, "glucose") {
		t.Errorf("degraded answer does not mention glucose: %q", answer)
	}
}

func TestAnswerQuestionUsesProvider(t *testing.T) {
	database := openTestDB(t)
	u, _ := database.CreateUser("ask2@example.com", "h")
	seedEvents(t, database, u.ID, DomainGlucose, 4)

	p := &scriptedProvider{name: "gemini", content: "Your glucose looks steady this week."}
	svc, _ := testService(t, database, p)
	answer, provider, err := svc.AnswerQuestion(context.Background(), u.ID, "how is my blood sugar?")
	if err != nil {
		t.Fatalf("AnswerQuestion: %v", err)
	}
	if provider != "gemini" {
		t.Errorf("provider = %q, want gemini", provider)
	}
	if answer != "Your glucose looks steady this week." {
		t.Errorf("answer = %q", answer)
	}
	if !strings.Contains(p.lastPrompt, "blood sugar") {
		t.Errorf("prompt does not carry the question: %q", p.lastPrompt)
	}
}

func TestAnswerQuestionRejectsEmpty(t *testing.T) {
	database := openTestDB(t)
	u, _ := database.CreateUser("ask3@example.com", "h")
	svc, _ := testService(t, database)
	if _, _, err := svc.AnswerQuestion(context.Background(), u.ID, "   "); err == nil {
		t.Error("empty question accepted")
	}
}

func TestNoteNewEventInvalidates(t *testing.T) {
	database := openTestDB(t)
	svc, coord := testService(t, database)

	for _, typ := range []string{InsightGeneral, InsightDailyDigest, InsightWeekly} {
		coord.Store(Key("u1", typ), &db.Insight{ID: "ins_" + typ})
	}
	coord.Store(Key("u1", "analytics:7d:insights=true"), &AnalyticsPayload{Window: "7d"})
	coord.Store(Key("u1", "analytics:30d:insights=false"), &AnalyticsPayload{Window: "30d"})

	svc.NoteNewEvent("u1")
	for _, op := range []string{
		InsightGeneral, InsightDailyDigest, InsightWeekly,
		"analytics:7d:insights=true", "analytics:30d:insights=false",
	} {
		cached, _, err := coord.Check(Key("u1", op), ModeCached)
		if err != nil {
			t.Fatalf("check %s: %v", op, err)
		}
		if cached != nil {
			t.Errorf("%s still cached after NoteNewEvent", op)
		}
	}
}

func TestRefreshWellnessScoreDedup(t *testing.T) {
	database := openTestDB(t)
	u, _ := database.CreateUser("score@example.com", "h")
	seedEvents(t, database, u.ID, DomainGlucose, 5)

	svc, coord := testService(t, database)
	start := time.Now()
	now := start
	coord.SetClock(func() time.Time { return now })

	first, err := svc.RefreshWellnessScore(context.Background(), u.ID, "", false)
	if err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if first.ScorePeriod != "weekly" {
		t.Errorf("ScorePeriod = %q, want weekly default", first.ScorePeriod)
	}

	// Inside the fresh-work window the repeat is rejected unless forced.
	now = start.Add(time.Second)
	if _, err := svc.RefreshWellnessScore(context.Background(), u.ID, "", false); err == nil {
		t.Error("rapid repeat accepted")
	} else if _, ok := err.(*TooFrequentError); !ok {
		t.Errorf("err = %v, want TooFrequentError", err)
	}
	if _, err := svc.RefreshWellnessScore(context.Background(), u.ID, "", true); err != nil {
		t.Errorf("forced refresh rejected: %v", err)
	}

	// An independent period has its own window.
	if _, err := svc.RefreshWellnessScore(context.Background(), u.ID, "monthly", false); err != nil {
		t.Errorf("monthly refresh rejected: %v", err)
	}
}
