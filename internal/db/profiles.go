// CLAUDE:SUMMARY Health profile and condition reads — profile upsert, active conditions, best-effort score mirror
package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// HealthProfile is the non-windowed part of a user's health context.
type HealthProfile struct {
	UserID        string   `json:"user_id"`
	Age           *int     `json:"age,omitempty"`
	Goals         []string `json:"goals"`
	WellnessScore *int     `json:"wellness_score,omitempty"`
}

// Condition is a diagnosed or self-reported health condition.
type Condition struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// GetProfile returns the user's health profile, or nil if none exists.
func (db *DB) GetProfile(userID string) (*HealthProfile, error) {
	p := &HealthProfile{UserID: userID}
	var goals string
	err := db.QueryRow(`SELECT age, goals, wellness_score FROM health_profiles WHERE user_id = ?`,
		userID).Scan(&p.Age, &goals, &p.WellnessScore)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}
	if err := json.Unmarshal([]byte(goals), &p.Goals); err != nil {
		p.Goals = nil
	}
	return p, nil
}

// UpsertProfile creates or updates the user's health profile.
func (db *DB) UpsertProfile(p *HealthProfile) error {
	goals, err := json.Marshal(p.Goals)
	if err != nil {
		return fmt.Errorf("encoding goals: %w", err)
	}
	_, err = db.Exec(`
		INSERT INTO health_profiles (user_id, age, goals, updated_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(user_id) DO UPDATE SET
			age = excluded.age,
			goals = excluded.goals,
			updated_at = datetime('now')`,
		p.UserID, p.Age, string(goals))
	if err != nil {
		return fmt.Errorf("upserting profile: %w", err)
	}
	return nil
}

// GetConditions returns the user's active conditions.
func (db *DB) GetConditions(userID string) ([]Condition, error) {
	rows, err := db.Query(`SELECT id, user_id, name, is_active FROM user_conditions
		WHERE user_id = ? AND is_active = 1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying conditions: %w", err)
	}
	defer rows.Close()

	var conditions []Condition
	for rows.Next() {
		var c Condition
		var active int
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &active); err != nil {
			return nil, fmt.Errorf("scanning condition: %w", err)
		}
		c.IsActive = active == 1
		conditions = append(conditions, c)
	}
	return conditions, rows.Err()
}

// AddCondition records a condition for a user.
func (db *DB) AddCondition(userID, name string) (*Condition, error) {
	c := &Condition{ID: "cnd_" + NewID(), UserID: userID, Name: name, IsActive: true}
	_, err := db.Exec(`INSERT INTO user_conditions (id, user_id, name) VALUES (?, ?, ?)`,
		c.ID, c.UserID, c.Name)
	if err != nil {
		return nil, fmt.Errorf("inserting condition: %w", err)
	}
	return c, nil
}

// MirrorWellnessScore copies the rounded overall score onto the profile
// summary field. Callers treat failures as non-fatal.
func (db *DB) MirrorWellnessScore(userID string, score int) error {
	_, err := db.Exec(`
		INSERT INTO health_profiles (user_id, wellness_score, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(user_id) DO UPDATE SET
			wellness_score = excluded.wellness_score,
			updated_at = datetime('now')`,
		userID, score)
	return err
}
