// CLAUDE:SUMMARY Insight store — append-only log of generated insights, latest-by-type lookup for freshness checks
package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// InsightBody is the natural-language content of an insight.
type InsightBody struct {
	Summary         string   `json:"summary"`
	Trends          []string `json:"trends"`
	Recommendations []string `json:"recommendations"`
	Concerns        []string `json:"concerns"`
	Achievements    []string `json:"achievements"`
}

// InsightMetadata records how an insight was produced.
type InsightMetadata struct {
	ProcessingTimeMs   int64    `json:"processing_time_ms"`
	DataPointsAnalyzed int      `json:"data_points_analyzed"`
	ProviderUsed       string   `json:"provider_used"`
	Confidence         float64  `json:"confidence"`
	MissingElements    []string `json:"missing_elements,omitempty"`
}

// Insight is one generated insight. The insights table is append-only;
// freshness is judged by GeneratedAt at read time, rows are never updated.
type Insight struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	InsightType string          `json:"insight_type"`
	Insights    InsightBody     `json:"insights"`
	Alerts      []string        `json:"alerts"`
	Metadata    InsightMetadata `json:"metadata"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// AppendInsight persists a new insight row. The ID is assigned here.
func (db *DB) AppendInsight(i *Insight) error {
	if i.ID == "" {
		i.ID = "ins_" + NewID()
	}
	if i.GeneratedAt.IsZero() {
		i.GeneratedAt = time.Now().UTC()
	}
	body, err := json.Marshal(i.Insights)
	if err != nil {
		return fmt.Errorf("encoding insight body: %w", err)
	}
	alerts, err := json.Marshal(i.Alerts)
	if err != nil {
		return fmt.Errorf("encoding alerts: %w", err)
	}
	meta, err := json.Marshal(i.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	_, err = db.Exec(`INSERT INTO insights (id, user_id, insight_type, insights, alerts, metadata, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		i.ID, i.UserID, i.InsightType, string(body), string(alerts), string(meta),
		i.GeneratedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting insight: %w", err)
	}
	return nil
}

// LatestInsight returns the most recent insight of a type for a user, or nil.
func (db *DB) LatestInsight(userID, insightType string) (*Insight, error) {
	i := &Insight{UserID: userID, InsightType: insightType}
	var body, alerts, meta, generatedAt string
	err := db.QueryRow(`SELECT id, insights, alerts, metadata, generated_at
		FROM insights WHERE user_id = ? AND insight_type = ?
		ORDER BY generated_at DESC LIMIT 1`,
		userID, insightType).Scan(&i.ID, &body, &alerts, &meta, &generatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading insight: %w", err)
	}
	if err := json.Unmarshal([]byte(body), &i.Insights); err != nil {
		return nil, fmt.Errorf("decoding insight body: %w", err)
	}
	if err := json.Unmarshal([]byte(alerts), &i.Alerts); err != nil {
		i.Alerts = nil
	}
	if err := json.Unmarshal([]byte(meta), &i.Metadata); err != nil {
		i.Metadata = InsightMetadata{}
	}
	i.GeneratedAt = parseTime(generatedAt)
	return i, nil
}

// ListInsights returns the newest insights for a user, newest first.
func (db *DB) ListInsights(userID string, limit int) ([]Insight, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`SELECT id, insight_type, insights, alerts, metadata, generated_at
		FROM insights WHERE user_id = ? ORDER BY generated_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying insights: %w", err)
	}
	defer rows.Close()

	var insights []Insight
	for rows.Next() {
		i := Insight{UserID: userID}
		var body, alerts, meta, generatedAt string
		if err := rows.Scan(&i.ID, &i.InsightType, &body, &alerts, &meta, &generatedAt); err != nil {
			return nil, fmt.Errorf("scanning insight: %w", err)
		}
		_ = json.Unmarshal([]byte(body), &i.Insights)
		_ = json.Unmarshal([]byte(alerts), &i.Alerts)
		_ = json.Unmarshal([]byte(meta), &i.Metadata)
		i.GeneratedAt = parseTime(generatedAt)
		insights = append(insights, i)
	}
	return insights, rows.Err()
}
