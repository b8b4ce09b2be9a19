// CLAUDE:SUMMARY Wellness score store — replace-by-(user,period) semantics, last calculation wins
package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// WellnessScore is the current score for one (user, period). Persisting a new
// calculation replaces the previous row; history is not retained.
type WellnessScore struct {
	UserID          string             `json:"user_id"`
	ScorePeriod     string             `json:"score_period"`
	OverallScore    int                `json:"overall_score"`
	ComponentScores map[string]float64 `json:"component_scores"`
	Trend           string             `json:"trend"`
	Reasoning       string             `json:"reasoning,omitempty"`
	Recommendations []string           `json:"recommendations"`
	Confidence      *float64           `json:"confidence,omitempty"`
	ProviderUsed    string             `json:"provider_used,omitempty"`
	CalculatedAt    time.Time          `json:"calculated_at"`
}

// ReplaceWellnessScore deletes any existing row for (user, period) and
// inserts the new one in a single transaction.
func (db *DB) ReplaceWellnessScore(s *WellnessScore) error {
	components, err := json.Marshal(s.ComponentScores)
	if err != nil {
		return fmt.Errorf("encoding component scores: %w", err)
	}
	recs, err := json.Marshal(s.Recommendations)
	if err != nil {
		return fmt.Errorf("encoding recommendations: %w", err)
	}
	if s.CalculatedAt.IsZero() {
		s.CalculatedAt = time.Now().UTC()
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM wellness_scores WHERE user_id = ? AND score_period = ?`,
		s.UserID, s.ScorePeriod); err != nil {
		return fmt.Errorf("deleting previous score: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO wellness_scores (user_id, score_period, overall_score, component_scores,
			trend, reasoning, recommendations, confidence, provider_used, calculated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.UserID, s.ScorePeriod, s.OverallScore, string(components),
		s.Trend, s.Reasoning, string(recs), s.Confidence, s.ProviderUsed,
		s.CalculatedAt.Format(time.RFC3339)); err != nil {
		return fmt.Errorf("inserting score: %w", err)
	}
	return tx.Commit()
}

// GetWellnessScore returns the current score for (user, period), or nil.
func (db *DB) GetWellnessScore(userID, period string) (*WellnessScore, error) {
	s := &WellnessScore{UserID: userID, ScorePeriod: period}
	var components, recs, calculatedAt string
	err := db.QueryRow(`SELECT overall_score, component_scores, trend, reasoning,
			recommendations, confidence, provider_used, calculated_at
		FROM wellness_scores WHERE user_id = ? AND score_period = ?`,
		userID, period).Scan(&s.OverallScore, &components, &s.Trend, &s.Reasoning,
		&recs, &s.Confidence, &s.ProviderUsed, &calculatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading score: %w", err)
	}
	if err := json.Unmarshal([]byte(components), &s.ComponentScores); err != nil {
		s.ComponentScores = map[string]float64{}
	}
	if err := json.Unmarshal([]byte(recs), &s.Recommendations); err != nil {
		s.Recommendations = nil
	}
	s.CalculatedAt = parseTime(calculatedAt)
	return s, nil
}
