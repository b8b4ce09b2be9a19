// CLAUDE:SUMMARY Insight orchestrator — freshness reuse, insufficient-data short circuit, provider call with templated fallback
package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/har5h1l/wellnessgrid/internal/config"
	"github.com/har5h1l/wellnessgrid/internal/db"
	"github.com/har5h1l/wellnessgrid/internal/llm"
)

// Insight types the orchestrator produces.
const (
	InsightGeneral     = "general"
	InsightDailyDigest = "daily_digest"
	InsightWeekly      = "weekly_review"
)


// GenerateRequest describes one insight generation request.
type GenerateRequest struct {
	UserID string
	Type   string
	// Forced bypasses both the freshness check and dedup.
	Forced bool
	// Scheduled requests tolerate older insights than on-demand ones.
	Scheduled bool
}

// Orchestrator runs the insight pipeline end to end: coordination, data
// gathering, provider generation, parsing, and the append to storage.
type Orchestrator struct {
	store    *db.DB
	analyzer *Analyzer
	client   *llm.Client
	coord    *Coordinator
	logger   *slog.Logger

	onDemandFreshness  time.Duration
	scheduledFreshness time.Duration
	now                func() time.Time
}

func NewOrchestrator(store *db.DB, analyzer *Analyzer, client *llm.Client, coord *Coordinator, cfg config.InsightsConfig, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		store:              store,
		analyzer:           analyzer,
		client:             client,
		coord:              coord,
		logger:             logger,
		onDemandFreshness:  time.Duration(cfg.OnDemandFreshnessHrs) * time.Hour,
		scheduledFreshness: time.Duration(cfg.ScheduledFreshnessHrs) * time.Hour,
		now:                time.Now,
	}
	if o.onDemandFreshness <= 0 {
		o.onDemandFreshness = 6 * time.Hour
	}
	if o.scheduledFreshness <= 0 {
		o.scheduledFreshness = 24 * time.Hour
	}
	return o
}

// SetClock overrides the time source for tests.
func (o *Orchestrator) SetClock(now func() time.Time) { o.now = now }

// GetOrGenerate returns an insight for the user, reusing a fresh stored one
// when allowed. The returned int is the reused insight's age in whole
// minutes (0 for a new one); the bool is true when the insight was served
// from storage or cache rather than generated on this call.
func (o *Orchestrator) GetOrGenerate(ctx context.Context, req GenerateRequest) (*db.Insight, int, bool, error) {
	if req.Type == "" {
		req.Type = InsightGeneral
	}
	key := Key(req.UserID, req.Type)

	mode := ModeCached
	if req.Forced {
		mode = ModeForced
	}
	cached, ageMin, err := o.coord.Check(key, mode)
	if err != nil {
		return nil, 0, false, err
	}
	if insight, ok := cached.(*db.Insight); ok && !req.Forced {
		return insight, ageMin, true, nil
	}

	if !req.Forced {
		latest, err := o.store.LatestInsight(req.UserID, req.Type)
		if err != nil {
			return nil, 0, false, err
		}
		freshness := o.onDemandFreshness
		if req.Scheduled {
			freshness = o.scheduledFreshness
		}
		if latest != nil && o.now().Sub(latest.GeneratedAt) < freshness {
			o.coord.Store(key, latest)
			return latest, int(o.now().Sub(latest.GeneratedAt).Minutes()), true, nil
		}
	}

	insight, err := o.generate(ctx, req)
	if err != nil {
		return nil, 0, false, err
	}
	o.coord.Store(key, insight)
	return insight, 0, false, nil
}

func (o *Orchestrator) generate(ctx context.Context, req GenerateRequest) (*db.Insight, error) {
	start := o.now()

	window := Window7d
	if req.Type == InsightDailyDigest {
		window = WindowToday
	}
	data := o.analyzer.Fetch(req.UserID, ContextRequirements{
		Domains:        TrackedDomains,
		Window:         window,
		IncludeProfile: true,
	})

	insight := &db.Insight{UserID: req.UserID, InsightType: req.Type}
	missing := missingDomains(data)

	// Nothing to analyze at all: no events in the window and no profile or
	// conditions to ground a prompt on. Report what is missing instead of
	// asking a provider to speculate over nothing. Any data — a lone event
	// or just a saved profile — goes to the provider.
	if data.TotalDataPoints == 0 && data.Profile == nil && len(data.Conditions) == 0 {
		insight.Insights = InsightBodyForMissing(missing)
		insight.Metadata = db.InsightMetadata{
			ProcessingTimeMs:   o.now().Sub(start).Milliseconds(),
			DataPointsAnalyzed: data.TotalDataPoints,
			ProviderUsed:       "none",
			Confidence:         1,
			MissingElements:    missing,
		}
		insight.GeneratedAt = o.now().UTC()
		if err := o.store.AppendInsight(insight); err != nil {
			return nil, fmt.Errorf("persist insight: %w", err)
		}
		return insight, nil
	}

	res := o.client.Generate(ctx, o.insightPrompt(req.Type, data), llm.GenerateOptions{
		System: "You are a supportive health analytics assistant. Respond with a single JSON object and nothing else. Never diagnose; suggest consulting a clinician for concerning patterns.",
	})

	payload, parsed := (*insightPayload)(nil), false
	if res.Success && res.ProviderUsed != "none" {
		payload, parsed = parseInsightPayload(res.Content)
	}
	provider := res.ProviderUsed
	if !parsed {
		payload = templatedInsight(data)
		provider = "none"
	}

	insight.Insights = db.InsightBody{
		Summary:         payload.Summary,
		Trends:          payload.Trends,
		Recommendations: payload.Recommendations,
		Concerns:        payload.Concerns,
		Achievements:    payload.Achievements,
	}
	insight.Alerts = append(payload.Alerts, ruleAlerts(data)...)
	insight.Metadata = db.InsightMetadata{
		ProcessingTimeMs:   o.now().Sub(start).Milliseconds(),
		DataPointsAnalyzed: data.TotalDataPoints,
		ProviderUsed:       provider,
		Confidence:         payload.Confidence,
		MissingElements:    missing,
	}
	insight.GeneratedAt = o.now().UTC()
	if err := o.store.AppendInsight(insight); err != nil {
		return nil, fmt.Errorf("persist insight: %w", err)
	}
	o.logger.Info("insight generated", "user", req.UserID, "type", req.Type,
		"provider", provider, "data_points", data.TotalDataPoints,
		"latency_ms", insight.Metadata.ProcessingTimeMs)
	return insight, nil
}

func (o *Orchestrator) insightPrompt(insightType string, data *UserDataSummary) string {
	var b strings.Builder
	switch insightType {
	case InsightDailyDigest:
		b.WriteString("Write a short daily digest of today's health tracking data.\n\n")
	case InsightWeekly:
		b.WriteString("Write a weekly review of this user's health tracking data.\n\n")
	default:
		b.WriteString("Analyze this user's recent health tracking data.\n\n")
	}
	if data.Profile != nil {
		if data.Profile.Age != nil {
			fmt.Fprintf(&b, "Age: %d\n", *data.Profile.Age)
		}
		if len(data.Profile.Goals) > 0 {
			fmt.Fprintf(&b, "Goals: %s\n", strings.Join(data.Profile.Goals, ", "))
		}
	}
	for _, c := range data.Conditions {
		fmt.Fprintf(&b, "Condition: %s\n", c.Name)
	}
	for _, d := range TrackedDomains {
		sum, ok := data.Summaries[d]
		if !ok || sum.Trend == TrendInsufficientData {
			continue
		}
		enc, _ := json.Marshal(sum)
		fmt.Fprintf(&b, "%s: %s\n", d, enc)
	}
	b.WriteString("\nRespond with JSON: {\"summary\": string, \"trends\": [string], \"recommendations\": [string], \"concerns\": [string], \"achievements\": [string], \"alerts\": [string], \"confidence\": number between 0 and 1}")
	return b.String()
}

// missingDomains lists tracked domains with no usable data in the window,
// sorted for stable output.
func missingDomains(data *UserDataSummary) []string {
	var missing []string
	for _, d := range TrackedDomains {
		sum, ok := data.Summaries[d]
		if !ok || sum.SampleCount == 0 {
			missing = append(missing, string(d))
		}
	}
	sort.Strings(missing)
	return missing
}

// InsightBodyForMissing is the deterministic body used when there is not
// enough data to analyze.
func InsightBodyForMissing(missing []string) db.InsightBody {
	return db.InsightBody{
		Summary: "Not enough tracking data yet to generate a meaningful insight. Keep logging and check back soon.",
		Recommendations: []string{
			"Log at least a few entries per day across your tracked areas.",
			fmt.Sprintf("Start with: %s.", strings.Join(missing, ", ")),
		},
	}
}

// templatedInsight builds a deterministic, data-grounded insight used when
// every provider failed. It states what the data shows plus generic
// self-care guidance and warning signs.
func templatedInsight(data *UserDataSummary) *insightPayload {
	p := &insightPayload{
		Summary:    fmt.Sprintf("Over the last %s you logged %d entries.", data.Window, data.TotalDataPoints),
		Confidence: 1,
	}
	for _, d := range TrackedDomains {
		sum, ok := data.Summaries[d]
		if !ok || sum.SampleCount == 0 {
			continue
		}
		switch {
		case sum.Average != nil:
			p.Trends = append(p.Trends, fmt.Sprintf("%s average %.1f (%s)", d, *sum.Average, sum.Trend))
		case sum.AdherencePct != nil:
			p.Trends = append(p.Trends, fmt.Sprintf("%s adherence %.0f%%", d, *sum.AdherencePct))
		case sum.Modal != "":
			p.Trends = append(p.Trends, fmt.Sprintf("most frequent %s: %s", d, sum.Modal))
		}
		if sum.Trend == TrendImproving {
			p.Achievements = append(p.Achievements, fmt.Sprintf("Your %s trend is improving.", d))
		}
	}
	p.Recommendations = []string{
		"Keep meals, sleep, and activity on a regular schedule.",
		"Stay hydrated and take short breaks during the day.",
		"Review your tracked patterns weekly and note what changed.",
	}
	p.Concerns = []string{
		"Contact a clinician if you notice persistent unusual readings, new symptoms, or feel unwell.",
	}
	return p
}

// ruleAlerts derives deterministic alerts from the summaries regardless of
// which path produced the insight body.
func ruleAlerts(data *UserDataSummary) []string {
	var alerts []string
	if g, ok := data.Summaries[DomainGlucose]; ok && g.SpikeCount >= 3 {
		alerts = append(alerts, fmt.Sprintf("%d glucose spikes above 180 mg/dL in the window.", g.SpikeCount))
	}
	if m, ok := data.Summaries[DomainMedication]; ok && m.AdherencePct != nil && *m.AdherencePct < 80 && m.SampleCount > 0 {
		alerts = append(alerts, fmt.Sprintf("Medication adherence at %.0f%%, below the 80%% target.", *m.AdherencePct))
	}
	return alerts
}
