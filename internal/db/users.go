package db

import (
	"database/sql"
	"errors"
	"fmt"
)

// User is an account row. Authentication lives in internal/auth; this is
// only the storage side.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
}

// CreateUser inserts a new user with a pre-hashed password.
func (db *DB) CreateUser(email, passwordHash string) (*User, error) {
	u := &User{ID: "usr_" + NewID(), Email: email, PasswordHash: passwordHash}
	_, err := db.Exec(`INSERT INTO users (id, email, password_hash) VALUES (?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("inserting user: %w", err)
	}
	return u, nil
}

// GetUserByEmail returns the user with the given email, or nil.
func (db *DB) GetUserByEmail(email string) (*User, error) {
	u := &User{}
	err := db.QueryRow(`SELECT id, email, password_hash FROM users WHERE email = ?`,
		email).Scan(&u.ID, &u.Email, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading user: %w", err)
	}
	return u, nil
}

// TouchLastSeen updates the user's last_seen_at timestamp.
func (db *DB) TouchLastSeen(userID string) {
	_, _ = db.Exec(`UPDATE users SET last_seen_at = datetime('now') WHERE id = ?`, userID)
}
