// CLAUDE:SUMMARY Three-stage provider output parsing — strict JSON decode, then heuristic extraction, callers fall back last
package insights

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// scorePayload is the JSON shape requested from providers for score
// refinement.
type scorePayload struct {
	OverallScore    float64  `json:"overall_score"`
	Trend           string   `json:"trend"`
	Reasoning       string   `json:"reasoning"`
	Recommendations []string `json:"recommendations"`
	Confidence      float64  `json:"confidence"`
}

// insightPayload is the JSON shape requested from providers for insight
// generation.
type insightPayload struct {
	Summary         string   `json:"summary"`
	Trends          []string `json:"trends"`
	Recommendations []string `json:"recommendations"`
	Concerns        []string `json:"concerns"`
	Achievements    []string `json:"achievements"`
	Alerts          []string `json:"alerts"`
	Confidence      float64  `json:"confidence"`
}

var (
	fencedBlockRe  = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	jsonObjectRe   = regexp.MustCompile(`(?s)\{.*\}`)
	overallScoreRe = regexp.MustCompile(`"?overall_score"?\s*[:=]\s*(-?[0-9]+(?:\.[0-9]+)?)`)
	trendWordRe    = regexp.MustCompile(`"?trend"?\s*[:=]\s*"?(improving|declining|stable)`)
	summaryLineRe  = regexp.MustCompile(`"?summary"?\s*[:=]\s*"([^"]+)"`)
)

// parseScorePayload decodes provider output into a scorePayload. Stage one
// is a strict decode (unwrapping a fenced code block if present); stage two
// is regex extraction of the individual fields. Returns false when neither
// stage yields a usable score; the caller then uses the rule-based path.
func parseScorePayload(content string) (*scorePayload, bool) {
	if raw, ok := extractJSON(content); ok {
		var p scorePayload
		if err := json.Unmarshal([]byte(raw), &p); err == nil && p.OverallScore != 0 {
			return &p, true
		}
	}

	// Heuristic extraction: a score is the minimum viable output.
	m := overallScoreRe.FindStringSubmatch(content)
	if m == nil {
		return nil, false
	}
	score, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil, false
	}
	p := &scorePayload{OverallScore: score, Trend: "stable", Confidence: 0.5}
	if tm := trendWordRe.FindStringSubmatch(content); tm != nil {
		p.Trend = tm[1]
	}
	return p, true
}

// parseInsightPayload decodes provider output into an insightPayload with
// the same strict-then-heuristic staging. Returns false when no usable
// summary can be recovered; the caller then emits the templated insight.
func parseInsightPayload(content string) (*insightPayload, bool) {
	if raw, ok := extractJSON(content); ok {
		var p insightPayload
		if err := json.Unmarshal([]byte(raw), &p); err == nil && p.Summary != "" {
			return &p, true
		}
	}

	if m := summaryLineRe.FindStringSubmatch(content); m != nil {
		return &insightPayload{Summary: m[1], Confidence: 0.5}, true
	}

	// Plain prose: accept it as the summary if it reads like one.
	text := strings.TrimSpace(content)
	if text != "" && !strings.HasPrefix(text, "{") && len(text) > 40 {
		return &insightPayload{Summary: text, Confidence: 0.4}, true
	}
	return nil, false
}

// extractJSON pulls a JSON object out of provider output, tolerating fenced
// code blocks and surrounding prose.
func extractJSON(content string) (string, bool) {
	if m := fencedBlockRe.FindStringSubmatch(content); m != nil {
		return m[1], true
	}
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		return trimmed, true
	}
	if m := jsonObjectRe.FindString(content); m != "" {
		return m, true
	}
	return "", false
}

// clampScore bounds a score to [0,100] regardless of provider output.
func clampScore(v float64) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return int(v + 0.5)
	}
}
