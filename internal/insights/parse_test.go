package insights

import (
	"strings"
	"testing"
)

func TestParseScorePayloadStrictJSON(t *testing.T) {
	content := `{"overall_score": 82, "trend": "improving", "reasoning": "Consistent logging.", "recommendations": ["Keep it up"], "confidence": 0.8}`
	p, ok := parseScorePayload(content)
	if !ok {
		t.Fatal("strict JSON not parsed")
	}
	if p.OverallScore != 82 {
		t.Errorf("OverallScore = %v, want 82", p.OverallScore)
	}
	if p.Trend != "improving" {
		t.Errorf("Trend = %q, want improving", p.Trend)
	}
	if p.Confidence != 0.8 {
		t.Errorf("Confidence = %v, want 0.8", p.Confidence)
	}
}

func TestParseScorePayloadFencedBlock(t *testing.T) {
	content := "Here is the analysis:\n```json\n{\"overall_score\": 71, \"trend\": \"stable\", \"confidence\": 0.6}\n```\nLet me know if you need more."
	p, ok := parseScorePayload(content)
	if !ok {
		t.Fatal("fenced JSON not parsed")
	}
	if p.OverallScore != 71 {
		t.Errorf("OverallScore = %v, want 71", p.OverallScore)
	}
}

func TestParseScorePayloadHeuristic(t *testing.T) {
	content := "Based on the data, overall_score: 64 with a trend: declining pattern overall."
	p, ok := parseScorePayload(content)
	if !ok {
		t.Fatal("heuristic extraction failed")
	}
	if p.OverallScore != 64 {
		t.Errorf("OverallScore = %v, want 64", p.OverallScore)
	}
	if p.Trend != "declining" {
		t.Errorf("Trend = %q, want declining", p.Trend)
	}
}

func TestParseScorePayloadUnusable(t *testing.T) {
	if _, ok := parseScorePayload("I'm sorry, I can't help with that."); ok {
		t.Error("parsed unusable content, want failure")
	}
}

func TestParseInsightPayloadStrictJSON(t *testing.T) {
	content := `{"summary": "Glucose control improved this week.", "trends": ["glucose down 8%"], "recommendations": ["Keep walking after meals"], "confidence": 0.75}`
	p, ok := parseInsightPayload(content)
	if !ok {
		t.Fatal("strict JSON not parsed")
	}
	if p.Summary != "Glucose control improved this week." {
		t.Errorf("Summary = %q", p.Summary)
	}
	if len(p.Trends) != 1 || len(p.Recommendations) != 1 {
		t.Errorf("Trends/Recommendations not carried: %+v", p)
	}
}

func TestParseInsightPayloadProse(t *testing.T) {
	content := "Your glucose has been well controlled this week, with most readings in range and a good medication routine."
	p, ok := parseInsightPayload(content)
	if !ok {
		t.Fatal("prose not accepted as summary")
	}
	if p.Summary != content {
		t.Errorf("Summary = %q, want the full prose", p.Summary)
	}
	if p.Confidence >= 0.5 {
		t.Errorf("Confidence = %v, want reduced for prose", p.Confidence)
	}
}

func TestParseInsightPayloadUnusable(t *testing.T) {
	if _, ok := parseInsightPayload(""); ok {
		t.Error("parsed empty content")
	}
	if _, ok := parseInsightPayload("ok"); ok {
		t.Error("parsed trivial content")
	}
}

func TestClampScore(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{-20, 0},
		{0, 0},
		{64.4, 64},
		{64.5, 65},
		{100, 100},
		{140, 100},
	}
	for _, tt := range tests {
		if got := clampScore(tt.in); got != tt.want {
			t.Errorf("clampScore(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestExtractJSONSurroundingProse(t *testing.T) {
	content := `Sure! {"summary": "All good."} Hope that helps.`
	raw, ok := extractJSON(content)
	if !ok {
		t.Fatal("embedded object not found")
	}
	if !strings.HasPrefix(raw, "{") || !strings.HasSuffix(raw, "}") {
		t.Errorf("raw = %q, want a JSON object", raw)
	}
}
