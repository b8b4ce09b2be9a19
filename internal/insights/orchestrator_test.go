package insights

import (
	"context"
	"testing"
	"time"

	"github.com/har5h1l/wellnessgrid/internal/config"
	"github.com/har5h1l/wellnessgrid/internal/db"
	"github.com/har5h1l/wellnessgrid/internal/llm"
)

func testOrchestrator(t *testing.T, database *db.DB, providers ...llm.Provider) (*Orchestrator, *Coordinator) {
	t.Helper()
	cfg := config.DefaultConfig().Insights
	agg := NewAggregator(cfg)
	analyzer := NewAnalyzer(database, agg)
	coord := NewCoordinator(cfg)
	client := llm.New(providers)
	client.SetBackoff(time.Millisecond)
	return NewOrchestrator(database, analyzer, client, coord, cfg, nil), coord
}

func TestGenerateShortCircuitsOnInsufficientData(t *testing.T) {
	database := openTestDB(t)
	u, _ := database.CreateUser("empty@example.com", "h")

	provider := &scriptedProvider{name: "gemini", content: `{"summary": "should not be called"}`}
	orch, _ := testOrchestrator(t, database, provider)

	insight, _, reused, err := orch.GetOrGenerate(context.Background(), GenerateRequest{UserID: u.ID})
	if err != nil {
		t.Fatalf("generating: %v", err)
	}
	if reused {
		t.Error("reused = true for first generation")
	}
	if provider.calls != 0 {
		t.Errorf("provider calls = %d, want 0 for insufficient data", provider.calls)
	}
	if insight.Metadata.ProviderUsed != "none" {
		t.Errorf("ProviderUsed = %q, want none", insight.Metadata.ProviderUsed)
	}
	if len(insight.Metadata.MissingElements) != len(TrackedDomains) {
		t.Errorf("MissingElements = %v, want all %d domains", insight.Metadata.MissingElements, len(TrackedDomains))
	}
	if insight.Insights.Summary == "" {
		t.Error("short-circuit insight has no summary")
	}

	// The short-circuit insight is still persisted.
	stored, err := database.LatestInsight(u.ID, InsightGeneral)
	if err != nil || stored == nil {
		t.Fatalf("stored insight missing: %v", err)
	}
}

func TestGenerateProfileOnlyUserReachesProvider(t *testing.T) {
	database := openTestDB(t)
	u, _ := database.CreateUser("profile-only@example.com", "h")
	age := 41
	if err := database.UpsertProfile(&db.HealthProfile{
		UserID: u.ID,
		Age:    &age,
		Goals:  []string{"lower a1c"},
	}); err != nil {
		t.Fatalf("upserting profile: %v", err)
	}

	provider := &scriptedProvider{name: "gemini", content: `{"summary": "Baseline guidance from profile.", "confidence": 0.5}`}
	orch, _ := testOrchestrator(t, database, provider)

	insight, _, _, err := orch.GetOrGenerate(context.Background(), GenerateRequest{UserID: u.ID})
	if err != nil {
		t.Fatalf("generating: %v", err)
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1 for user with a profile but no events", provider.calls)
	}
	if insight.Metadata.ProviderUsed != "gemini" {
		t.Errorf("ProviderUsed = %q, want gemini", insight.Metadata.ProviderUsed)
	}
}

func TestGenerateSparseEventsReachProvider(t *testing.T) {
	database := openTestDB(t)
	u, _ := database.CreateUser("sparse@example.com", "h")
	seedEvents(t, database, u.ID, DomainGlucose, 2)

	provider := &scriptedProvider{name: "gemini", content: `{"summary": "Early look at two readings.", "confidence": 0.4}`}
	orch, _ := testOrchestrator(t, database, provider)

	insight, _, _, err := orch.GetOrGenerate(context.Background(), GenerateRequest{UserID: u.ID})
	if err != nil {
		t.Fatalf("generating: %v", err)
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1 for two events", provider.calls)
	}
	if insight.Metadata.DataPointsAnalyzed != 2 {
		t.Errorf("DataPointsAnalyzed = %d, want 2", insight.Metadata.DataPointsAnalyzed)
	}
}

func TestGenerateUsesProviderOutput(t *testing.T) {
	database := openTestDB(t)
	u, _ := database.CreateUser("gen@example.com", "h")
	seedEvents(t, database, u.ID, DomainGlucose, 5)

	provider := &scriptedProvider{
		name:    "gemini",
		content: `{"summary": "Solid week of glucose control.", "trends": ["in range 80%"], "recommendations": ["Keep it up"], "confidence": 0.8}`,
	}
	orch, _ := testOrchestrator(t, database, provider)

	insight, _, _, err := orch.GetOrGenerate(context.Background(), GenerateRequest{UserID: u.ID})
	if err != nil {
		t.Fatalf("generating: %v", err)
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1", provider.calls)
	}
	if insight.Insights.Summary != "Solid week of glucose control." {
		t.Errorf("Summary = %q", insight.Insights.Summary)
	}
	if insight.Metadata.ProviderUsed != "gemini" {
		t.Errorf("ProviderUsed = %q, want gemini", insight.Metadata.ProviderUsed)
	}
	if insight.Metadata.DataPointsAnalyzed != 5 {
		t.Errorf("DataPointsAnalyzed = %d, want 5", insight.Metadata.DataPointsAnalyzed)
	}
}

func TestGenerateFreshnessReuse(t *testing.T) {
	database := openTestDB(t)
	u, _ := database.CreateUser("fresh@example.com", "h")
	seedEvents(t, database, u.ID, DomainGlucose, 5)

	provider := &scriptedProvider{
		name:    "gemini",
		content: `{"summary": "First generation.", "confidence": 0.8}`,
	}
	orch, coord := testOrchestrator(t, database, provider)
	start := time.Now()
	now := start
	coord.SetClock(func() time.Time { return now })

	first, _, reused, err := orch.GetOrGenerate(context.Background(), GenerateRequest{UserID: u.ID})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if reused {
		t.Error("first call reported reused")
	}

	// Second request inside the freshness window reuses the stored insight
	// without another provider call. Invalidate the coordinator cache and
	// step past the dedup window to prove the freshness path alone serves it.
	coord.Invalidate(Key(u.ID, InsightGeneral))
	now = start.Add(2 * time.Second)
	second, ageMin, reused, err := orch.GetOrGenerate(context.Background(), GenerateRequest{UserID: u.ID})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !reused {
		t.Error("second call not reused inside freshness window")
	}
	if second.ID != first.ID {
		t.Errorf("second.ID = %q, want %q", second.ID, first.ID)
	}
	if ageMin != 0 {
		t.Errorf("age = %d minutes for a seconds-old insight, want 0", ageMin)
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1", provider.calls)
	}

	// Forced bypasses freshness and generates again.
	provider.content = `{"summary": "Second generation.", "confidence": 0.8}`
	third, _, reused, err := orch.GetOrGenerate(context.Background(), GenerateRequest{UserID: u.ID, Forced: true})
	if err != nil {
		t.Fatalf("forced: %v", err)
	}
	if reused {
		t.Error("forced call reported reused")
	}
	if third.ID == first.ID {
		t.Error("forced call returned the old insight")
	}
	if provider.calls != 2 {
		t.Errorf("provider calls = %d, want 2 after forced", provider.calls)
	}
}

func TestGenerateTemplatedFallbackWhenProvidersFail(t *testing.T) {
	database := openTestDB(t)
	u, _ := database.CreateUser("fallback@example.com", "h")
	seedEvents(t, database, u.ID, DomainGlucose, 5)

	provider := &scriptedProvider{name: "gemini", err: llm.ErrRateLimited}
	orch, _ := testOrchestrator(t, database, provider)

	insight, _, _, err := orch.GetOrGenerate(context.Background(), GenerateRequest{UserID: u.ID})
	if err != nil {
		t.Fatalf("generating: %v", err)
	}
	if insight.Metadata.ProviderUsed != "none" {
		t.Errorf("ProviderUsed = %q, want none for templated fallback", insight.Metadata.ProviderUsed)
	}
	if insight.Insights.Summary == "" {
		t.Error("templated insight has no summary")
	}
	if len(insight.Insights.Recommendations) == 0 {
		t.Error("templated insight has no recommendations")
	}
	if len(insight.Insights.Concerns) == 0 {
		t.Error("templated insight has no warning-sign guidance")
	}
}

func TestGenerateRuleAlerts(t *testing.T) {
	database := openTestDB(t)
	u, _ := database.CreateUser("alerts@example.com", "h")
	now := time.Now().UTC()

	// Four glucose spikes in the window.
	for i := 0; i < 4; i++ {
		if _, err := database.InsertEvent(db.CreateEventInput{
			UserID:    u.ID,
			DomainID:  string(DomainGlucose),
			Payload:   map[string]any{"level": 250.0},
			Timestamp: now.Add(-time.Duration(i*6) * time.Hour),
		}); err != nil {
			t.Fatalf("seeding: %v", err)
		}
	}
	// Poor medication adherence.
	for i := 0; i < 4; i++ {
		if _, err := database.InsertEvent(db.CreateEventInput{
			UserID:    u.ID,
			DomainID:  string(DomainMedication),
			Payload:   map[string]any{"taken": i == 0},
			Timestamp: now.Add(-time.Duration(i*6) * time.Hour),
		}); err != nil {
			t.Fatalf("seeding: %v", err)
		}
	}

	provider := &scriptedProvider{name: "gemini", content: `{"summary": "Rough stretch.", "confidence": 0.7}`}
	orch, _ := testOrchestrator(t, database, provider)

	insight, _, _, err := orch.GetOrGenerate(context.Background(), GenerateRequest{UserID: u.ID})
	if err != nil {
		t.Fatalf("generating: %v", err)
	}
	if len(insight.Alerts) != 2 {
		t.Errorf("Alerts = %v, want spike and adherence alerts", insight.Alerts)
	}
}

func TestGenerateDedupRejectsRapidRepeats(t *testing.T) {
	database := openTestDB(t)
	u, _ := database.CreateUser("dedup@example.com", "h")

	orch, coord := testOrchestrator(t, database)
	start := time.Now()
	now := start
	coord.SetClock(func() time.Time { return now })

	if _, _, _, err := orch.GetOrGenerate(context.Background(), GenerateRequest{UserID: u.ID}); err != nil {
		t.Fatalf("first: %v", err)
	}

	// Drop both caches so the dedup window is the only guard, then repeat
	// inside it.
	coord.Invalidate(Key(u.ID, InsightGeneral))
	if err := clearInsights(database, u.ID); err != nil {
		t.Fatalf("clearing: %v", err)
	}
	now = start.Add(200 * time.Millisecond)
	_, _, _, err := orch.GetOrGenerate(context.Background(), GenerateRequest{UserID: u.ID})
	if _, ok := err.(*TooFrequentError); !ok {
		t.Errorf("err = %v, want TooFrequentError", err)
	}
}

func clearInsights(database *db.DB, userID string) error {
	_, err := database.Exec(`DELETE FROM insights WHERE user_id = ?`, userID)
	return err
}
