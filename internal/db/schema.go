package db

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    email         TEXT UNIQUE NOT NULL,
    password_hash TEXT NOT NULL,
    created_at    DATETIME DEFAULT (datetime('now')),
    last_seen_at  DATETIME
);

-- Immutable event log: one row per tracked data point. The insight pipeline
-- reads these, it never updates them.
CREATE TABLE IF NOT EXISTS tracking_events (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL REFERENCES users(id),
    domain_id  TEXT NOT NULL CHECK(domain_id IN ('glucose','mood','sleep','exercise','medication','symptom')),
    payload    TEXT NOT NULL DEFAULT '{}',
    timestamp  DATETIME NOT NULL,
    created_at DATETIME DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_events_user_domain ON tracking_events(user_id, domain_id);
CREATE INDEX IF NOT EXISTS idx_events_user_time ON tracking_events(user_id, timestamp);

CREATE TABLE IF NOT EXISTS health_profiles (
    user_id        TEXT PRIMARY KEY REFERENCES users(id),
    age            INTEGER,
    goals          TEXT DEFAULT '[]',
    wellness_score INTEGER,
    updated_at     DATETIME DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS user_conditions (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL REFERENCES users(id),
    name       TEXT NOT NULL,
    is_active  INTEGER DEFAULT 1 CHECK(is_active IN (0, 1)),
    created_at DATETIME DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_conditions_user ON user_conditions(user_id);

-- One logical current score per (user, period). A new calculation replaces
-- the previous row; no history is kept here.
CREATE TABLE IF NOT EXISTS wellness_scores (
    user_id          TEXT NOT NULL REFERENCES users(id),
    score_period     TEXT NOT NULL,
    overall_score    INTEGER NOT NULL CHECK(overall_score BETWEEN 0 AND 100),
    component_scores TEXT DEFAULT '{}',
    trend            TEXT NOT NULL,
    reasoning        TEXT,
    recommendations  TEXT DEFAULT '[]',
    confidence       REAL,
    provider_used    TEXT,
    calculated_at    DATETIME DEFAULT (datetime('now')),
    PRIMARY KEY (user_id, score_period)
);

-- Append-only: freshness is evaluated by age at read time.
CREATE TABLE IF NOT EXISTS insights (
    id           TEXT PRIMARY KEY,
    user_id      TEXT NOT NULL REFERENCES users(id),
    insight_type TEXT NOT NULL,
    insights     TEXT NOT NULL DEFAULT '{}',
    alerts       TEXT DEFAULT '[]',
    metadata     TEXT DEFAULT '{}',
    generated_at DATETIME DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_insights_user_type ON insights(user_id, insight_type, generated_at);
`
