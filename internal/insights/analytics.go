// CLAUDE:SUMMARY Insights service facade — analytics rollup with correlations, question answering, score and insight entry points
package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/har5h1l/wellnessgrid/internal/db"
	"github.com/har5h1l/wellnessgrid/internal/llm"
)

// correlationPairs are the fixed domain pairs reported in analytics. Values
// are paired by calendar day; days present in only one domain are skipped.
var correlationPairs = []struct {
	A, B  Domain
	AKeys []string
	BKeys []string
	Label string
}{
	{DomainExercise, DomainGlucose, []string{"minutes", "duration_min"}, []string{"level", "glucose_level"}, "exercise_vs_glucose"},
	{DomainSleep, DomainMood, []string{"hours", "duration_hours"}, []string{"score", "mood_score"}, "sleep_vs_mood"},
}

// AnalyticsPayload is the aggregate view returned by the analytics surface.
// AgeMinutes is non-zero when the payload was served from the coordinator
// cache.
type AnalyticsPayload struct {
	Window       string                   `json:"window"`
	Trends       map[Domain]DomainSummary `json:"trends"`
	Correlations map[string]float64       `json:"correlations"`
	HealthScore  *db.WellnessScore        `json:"health_score,omitempty"`
	Insights     []db.Insight             `json:"insights"`
	Alerts       []string                 `json:"alerts"`
	Goals        []string                 `json:"goals,omitempty"`
	Streaks      map[Domain]int           `json:"streaks"`
	DataPoints   int                      `json:"data_points"`
	AgeMinutes   int                      `json:"age_minutes"`
}

// AnalyticsOptions tune one analytics request.
type AnalyticsOptions struct {
	// IncludeInsights attaches the most recent stored insights.
	IncludeInsights bool
	// Cached allows a coordinator-cached payload to be returned.
	Cached bool
	// ForceRefresh bypasses both the cache and the dedup window.
	ForceRefresh bool
}

// Service bundles the insight pipeline behind the operations the API and
// MCP surfaces expose.
type Service struct {
	store    *db.DB
	agg      *Aggregator
	analyzer *Analyzer
	orch     *Orchestrator
	scorer   *ScoreCalculator
	coord    *Coordinator
	client   *llm.Client
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(store *db.DB, agg *Aggregator, analyzer *Analyzer, orch *Orchestrator, scorer *ScoreCalculator, coord *Coordinator, client *llm.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store: store, agg: agg, analyzer: analyzer, orch: orch,
		scorer: scorer, coord: coord, client: client, logger: logger,
		now: time.Now,
	}
}

// SetClock overrides the time source for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// NoteNewEvent invalidates cached insights and analytics after a tracking
// event lands so the next request sees the new data.
func (s *Service) NoteNewEvent(userID string) {
	for _, t := range []string{InsightGeneral, InsightDailyDigest, InsightWeekly} {
		s.coord.Invalidate(Key(userID, t))
	}
	s.coord.InvalidatePrefix(Key(userID, "analytics:"))
}

// GetAnalytics builds the full analytics rollup for a user over a window.
// The coordinator fronts it: cached payloads are returned with their age,
// and repeats inside the dedup window are rejected with TooFrequentError.
func (s *Service) GetAnalytics(ctx context.Context, userID, windowLabel string, opts AnalyticsOptions) (*AnalyticsPayload, error) {
	window := WindowForLabel(windowLabel)

	key := Key(userID, fmt.Sprintf("analytics:%s:insights=%t", window.Label, opts.IncludeInsights))
	mode := ModeFresh
	switch {
	case opts.ForceRefresh:
		mode = ModeForced
	case opts.Cached:
		mode = ModeCached
	}
	cached, ageMin, err := s.coord.Check(key, mode)
	if err != nil {
		return nil, err
	}
	if p, ok := cached.(*AnalyticsPayload); ok && !opts.ForceRefresh {
		out := *p
		out.AgeMinutes = ageMin
		return &out, nil
	}

	data := s.analyzer.Fetch(userID, ContextRequirements{
		Domains:        TrackedDomains,
		Window:         window,
		IncludeProfile: true,
	})

	out := &AnalyticsPayload{
		Window:       window.Label,
		Trends:       data.Summaries,
		Correlations: make(map[string]float64),
		Streaks:      make(map[Domain]int),
		DataPoints:   data.TotalDataPoints,
		Alerts:       ruleAlerts(data),
	}
	for d, sum := range data.Summaries {
		out.Streaks[d] = sum.Streak
	}
	if data.Profile != nil {
		out.Goals = data.Profile.Goals
	}

	score, err := s.store.GetWellnessScore(userID, "weekly")
	if err != nil {
		s.logger.Warn("analytics score lookup failed", "user", userID, "error", err)
	} else {
		out.HealthScore = score
	}

	if opts.IncludeInsights {
		recent, err := s.store.ListInsights(userID, 5)
		if err != nil {
			s.logger.Warn("analytics insight lookup failed", "user", userID, "error", err)
		} else {
			out.Insights = recent
		}
	}

	since := window.Since(s.now())
	for _, pair := range correlationPairs {
		r, ok := s.correlate(userID, since, pair.A, pair.AKeys, pair.B, pair.BKeys)
		if ok {
			out.Correlations[pair.Label] = r
		}
	}
	s.coord.Store(key, out)
	return out, ctx.Err()
}

// GenerateInsight runs the insight pipeline for the user. Returns the
// insight, its age in minutes when reused, and whether it was reused.
func (s *Service) GenerateInsight(ctx context.Context, req GenerateRequest) (*db.Insight, int, bool, error) {
	return s.orch.GetOrGenerate(ctx, req)
}

// RefreshWellnessScore recalculates and persists the user's score. Repeated
// refreshes inside the fresh-work window are rejected with TooFrequentError
// unless forced.
func (s *Service) RefreshWellnessScore(ctx context.Context, userID, period string, forced bool) (*db.WellnessScore, error) {
	if period == "" {
		period = "weekly"
	}
	mode := ModeFresh
	if forced {
		mode = ModeForced
	}
	if _, _, err := s.coord.Check(Key(userID, "score:"+period), mode); err != nil {
		return nil, err
	}
	return s.scorer.Calculate(ctx, userID, period)
}

// AnswerQuestion answers a free-form health question grounded in the user's
// own data. Query analysis picks the domains and window; when every provider
// fails the answer degrades to a deterministic recital of the fetched data.
func (s *Service) AnswerQuestion(ctx context.Context, userID, query string) (string, string, error) {
	if strings.TrimSpace(query) == "" {
		return "", "", fmt.Errorf("empty question")
	}
	reqs := s.analyzer.Analyze(query)
	data := s.analyzer.Fetch(userID, reqs)

	prompt := s.questionPrompt(query, data)
	res := s.client.Generate(ctx, prompt, llm.GenerateOptions{
		System:   "You are a supportive health assistant. Answer briefly using only the provided data. Never diagnose.",
		Fallback: dataGroundedAnswer(data),
	})
	if !res.Success {
		return "", "", res.Err
	}
	return res.Content, res.ProviderUsed, nil
}

func (s *Service) questionPrompt(query string, data *UserDataSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nUser data (window %s):\n", query, data.Window)
	if data.Profile != nil && len(data.Profile.Goals) > 0 {
		fmt.Fprintf(&b, "Goals: %s\n", strings.Join(data.Profile.Goals, ", "))
	}
	for _, c := range data.Conditions {
		fmt.Fprintf(&b, "Condition: %s\n", c.Name)
	}
	for d, sum := range data.Summaries {
		enc, _ := json.Marshal(sum)
		fmt.Fprintf(&b, "%s: %s\n", d, enc)
	}
	b.WriteString("\nAnswer the question in plain prose using this data.")
	return b.String()
}

// dataGroundedAnswer is the degraded reply used when no provider responds:
// it states what the data shows for the requested domains.
func dataGroundedAnswer(data *UserDataSummary) string {
	var parts []string
	for _, d := range TrackedDomains {
		sum, ok := data.Summaries[d]
		if !ok || sum.SampleCount == 0 {
			continue
		}
		switch {
		case sum.Average != nil:
			parts = append(parts, fmt.Sprintf("your %s averaged %.1f over the last %s (%s)", d, *sum.Average, data.Window, sum.Trend))
		case sum.AdherencePct != nil:
			parts = append(parts, fmt.Sprintf("your %s adherence was %.0f%%", d, *sum.AdherencePct))
		case sum.Modal != "":
			parts = append(parts, fmt.Sprintf("your most frequent %s entry was %q", d, sum.Modal))
		}
	}
	if len(parts) == 0 {
		return "I could not reach an analysis model and you have no recent data for that question. Try again after logging some entries."
	}
	return "I could not reach an analysis model right now, but from your records: " + strings.Join(parts, "; ") + "."
}

// correlate computes the Pearson coefficient between two domains' daily
// averages. Returns false with fewer than three overlapping days.
func (s *Service) correlate(userID string, since time.Time, a Domain, aKeys []string, b Domain, bKeys []string) (float64, bool) {
	aEvents, err := s.store.QueryEvents(userID, string(a), since)
	if err != nil {
		return 0, false
	}
	bEvents, err := s.store.QueryEvents(userID, string(b), since)
	if err != nil {
		return 0, false
	}
	aDaily := dailyAverages(aEvents, aKeys)
	bDaily := dailyAverages(bEvents, bKeys)

	var xs, ys []float64
	for day, av := range aDaily {
		if bv, ok := bDaily[day]; ok {
			xs = append(xs, av)
			ys = append(ys, bv)
		}
	}
	if len(xs) < 3 {
		return 0, false
	}
	return pearson(xs, ys)
}

// dailyAverages buckets events by calendar day and averages the first
// matching payload key.
func dailyAverages(events []db.TrackingEvent, keys []string) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, ev := range events {
		v := payloadNumber(ev.Payload, keys...)
		if v == nil {
			continue
		}
		day := ev.Timestamp.Format("2006-01-02")
		sums[day] += *v
		counts[day]++
	}
	out := make(map[string]float64, len(sums))
	for day, sum := range sums {
		out[day] = sum / float64(counts[day])
	}
	return out
}

// pearson returns the correlation coefficient for two equal-length series,
// rounded to two decimals. False when either series has zero variance.
func pearson(xs, ys []float64) (float64, bool) {
	n := float64(len(xs))
	mx, my := mean(xs), mean(ys)
	var cov, vx, vy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 || n == 0 {
		return 0, false
	}
	r := cov / math.Sqrt(vx*vy)
	return math.Round(r*100) / 100, true
}
