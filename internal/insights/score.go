// CLAUDE:SUMMARY Wellness score calculator — parallel gather, LLM refinement with rule-based fallback, replace-on-persist
package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/har5h1l/wellnessgrid/internal/db"
	"github.com/har5h1l/wellnessgrid/internal/llm"
)

// ScoreCalculator computes and persists a user's wellness score. Every
// refresh replaces the previous score for the same period; history is not
// retained beyond the trend field.
type ScoreCalculator struct {
	store  *db.DB
	agg    *Aggregator
	client *llm.Client
	logger *slog.Logger
	now    func() time.Time
}

func NewScoreCalculator(store *db.DB, agg *Aggregator, client *llm.Client, logger *slog.Logger) *ScoreCalculator {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScoreCalculator{store: store, agg: agg, client: client, logger: logger, now: time.Now}
}

// SetClock overrides the time source for tests.
func (s *ScoreCalculator) SetClock(now func() time.Time) { s.now = now }

// scoreInput is everything gathered before refinement. Missing pieces
// degrade the score, they never abort it.
type scoreInput struct {
	Profile     *db.HealthProfile
	Conditions  []db.Condition
	Summaries   map[Domain]DomainSummary
	Previous    *db.WellnessScore
	TotalPoints int
}

// Calculate refreshes the user's score for the given period ("weekly" by
// default) and persists it. The gather phase runs per-domain lookups
// concurrently and tolerates partial failure; refinement goes through the
// provider chain when one is available and falls back to the rule-based
// score otherwise.
func (s *ScoreCalculator) Calculate(ctx context.Context, userID, period string) (*db.WellnessScore, error) {
	if period == "" {
		period = "weekly"
	}
	window := Window{Label: "7d", Days: 7}

	in, err := s.gather(ctx, userID, window, period)
	if err != nil {
		return nil, err
	}

	score := s.ruleBased(in)
	score.UserID = userID
	score.ScorePeriod = period

	if s.client != nil && len(s.client.Providers()) > 0 {
		if refined, ok := s.refine(ctx, in, score); ok {
			score = refined
		}
	}

	score.CalculatedAt = s.now().UTC()
	if err := s.store.ReplaceWellnessScore(score); err != nil {
		return nil, fmt.Errorf("persist score: %w", err)
	}
	if err := s.store.MirrorWellnessScore(userID, score.OverallScore); err != nil {
		s.logger.Warn("score mirror failed", "user", userID, "error", err)
	}
	return score, nil
}

func (s *ScoreCalculator) gather(ctx context.Context, userID string, window Window, period string) (*scoreInput, error) {
	in := &scoreInput{Summaries: make(map[Domain]DomainSummary, len(TrackedDomains))}
	since := window.Since(s.now())

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, d := range TrackedDomains {
		wg.Add(1)
		go func(d Domain) {
			defer wg.Done()
			events, err := s.store.QueryEvents(userID, string(d), since)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Warn("score gather failed", "domain", d, "error", err)
				in.Summaries[d] = DomainSummary{Domain: d, Window: window.Label, Trend: TrendInsufficientData}
				return
			}
			in.Summaries[d] = s.agg.Summarize(d, window, events)
			in.TotalPoints += len(events)
		}(d)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		profile, err := s.store.GetProfile(userID)
		if err != nil {
			s.logger.Warn("score gather profile failed", "user", userID, "error", err)
			return
		}
		conditions, _ := s.store.GetConditions(userID)
		mu.Lock()
		in.Profile = profile
		in.Conditions = conditions
		mu.Unlock()
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		prev, err := s.store.GetWellnessScore(userID, period)
		if err == nil {
			mu.Lock()
			in.Previous = prev
			mu.Unlock()
		}
	}()
	wg.Wait()

	return in, ctx.Err()
}

// completeness is the share of tracked domains with at least one entry per
// day over the window, capped at 100.
func completeness(in *scoreInput) float64 {
	expected := float64(len(TrackedDomains) * 7)
	pct := float64(in.TotalPoints) / expected * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// ruleBased produces the deterministic score used when no provider is
// available or refinement fails. Baseline 75, adjusted by data completeness
// and volume.
func (s *ScoreCalculator) ruleBased(in *scoreInput) *db.WellnessScore {
	score := 75
	pct := completeness(in)
	switch {
	case pct > 80:
		score += 10
	case pct < 30:
		score -= 10
	}
	switch {
	case in.TotalPoints >= 20:
		score += 5
	case in.TotalPoints < 5:
		score -= 5
	}
	conf := 0.5
	return &db.WellnessScore{
		OverallScore:    clampScore(float64(score)),
		ComponentScores: componentScores(in),
		Trend:           string(TrendStable),
		Reasoning:       fmt.Sprintf("Score derived from tracking activity: %d data points across %d domains.", in.TotalPoints, len(TrackedDomains)),
		Recommendations: []string{
			"Keep logging daily to improve score accuracy.",
			"Track at least one entry per domain each day.",
		},
		Confidence: &conf,
	}
}

// componentScores maps each domain's data volume to a 0-100 sub-score
// (7 entries over the window is full marks).
func componentScores(in *scoreInput) map[string]float64 {
	out := make(map[string]float64, len(in.Summaries))
	for d, sum := range in.Summaries {
		pct := float64(sum.SampleCount) / 7 * 100
		if pct > 100 {
			pct = 100
		}
		out[string(d)] = pct
	}
	return out
}

// refine asks the provider chain to adjust the rule-based score using the
// gathered context. Returns false when the chain fell back or the output
// could not be parsed.
func (s *ScoreCalculator) refine(ctx context.Context, in *scoreInput, base *db.WellnessScore) (*db.WellnessScore, bool) {
	prompt := s.scorePrompt(in, base)
	res := s.client.Generate(ctx, prompt, llm.GenerateOptions{
		System: "You are a health analytics engine. Respond with a single JSON object and nothing else.",
	})
	if !res.Success || res.ProviderUsed == "none" {
		return nil, false
	}
	p, ok := parseScorePayload(res.Content)
	if !ok {
		return nil, false
	}
	out := &db.WellnessScore{
		UserID:          base.UserID,
		ScorePeriod:     base.ScorePeriod,
		OverallScore:    clampScore(p.OverallScore),
		ComponentScores: base.ComponentScores,
		Trend:           p.Trend,
		Reasoning:       p.Reasoning,
		Recommendations: p.Recommendations,
		ProviderUsed:    res.ProviderUsed,
	}
	if out.Trend != string(TrendImproving) && out.Trend != string(TrendDeclining) {
		out.Trend = string(TrendStable)
	}
	if len(out.Recommendations) == 0 {
		out.Recommendations = base.Recommendations
	}
	conf := p.Confidence
	if conf <= 0 || conf > 1 {
		conf = 0.6
	}
	out.Confidence = &conf
	return out, true
}

func (s *ScoreCalculator) scorePrompt(in *scoreInput, base *db.WellnessScore) string {
	var b strings.Builder
	b.WriteString("Compute a wellness score (0-100) for this user from the last 7 days of tracking data.\n\n")
	if in.Profile != nil {
		if in.Profile.Age != nil {
			fmt.Fprintf(&b, "Age: %d\n", *in.Profile.Age)
		}
		if len(in.Profile.Goals) > 0 {
			fmt.Fprintf(&b, "Goals: %s\n", strings.Join(in.Profile.Goals, ", "))
		}
	}
	for _, c := range in.Conditions {
		fmt.Fprintf(&b, "Condition: %s\n", c.Name)
	}
	if in.Previous != nil {
		fmt.Fprintf(&b, "Previous score: %d (%s)\n", in.Previous.OverallScore, in.Previous.Trend)
	}
	fmt.Fprintf(&b, "Baseline rule-based score: %d\n", base.OverallScore)
	fmt.Fprintf(&b, "Data completeness: %.0f%%, total entries: %d\n\n", completeness(in), in.TotalPoints)
	for _, d := range TrackedDomains {
		sum, ok := in.Summaries[d]
		if !ok {
			continue
		}
		enc, _ := json.Marshal(sum)
		fmt.Fprintf(&b, "%s: %s\n", d, enc)
	}
	b.WriteString("\nRespond with JSON: {\"overall_score\": number, \"trend\": \"improving|stable|declining\", \"reasoning\": string, \"recommendations\": [string], \"confidence\": number between 0 and 1}")
	return b.String()
}
