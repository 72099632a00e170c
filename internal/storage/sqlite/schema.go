package sqlite

const schema = `
-- Failures: persistent count per failure fingerprint
CREATE TABLE IF NOT EXISTS failures (
    fingerprint TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    category TEXT NOT NULL,
    rule TEXT NOT NULL DEFAULT '',
    count INTEGER NOT NULL DEFAULT 0,
    sample TEXT NOT NULL DEFAULT '',
    first_seen TEXT NOT NULL,
    last_seen TEXT NOT NULL,
    escalated INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_failures_source ON failures(source);
CREATE INDEX IF NOT EXISTS idx_failures_last_seen ON failures(last_seen);

-- Attempts: one row per fix attempt
CREATE TABLE IF NOT EXISTS attempts (
    id TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    fingerprint TEXT NOT NULL DEFAULT '',
    rule TEXT NOT NULL DEFAULT '',
    number INTEGER NOT NULL,
    outcome TEXT NOT NULL CHECK(outcome IN ('healed', 'failed', 'unmatched', 'escalated', 'skipped')),
    output TEXT NOT NULL DEFAULT '',
    started_at TEXT NOT NULL,
    finished_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_attempts_source ON attempts(source);
CREATE INDEX IF NOT EXISTS idx_attempts_fingerprint ON attempts(fingerprint);
CREATE INDEX IF NOT EXISTS idx_attempts_started ON attempts(started_at);

-- Events: audit trail of every heal step
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    timestamp TEXT NOT NULL,
    source TEXT NOT NULL DEFAULT '',
    fingerprint TEXT NOT NULL DEFAULT '',
    severity TEXT NOT NULL CHECK(severity IN ('info', 'warning', 'error', 'critical')),
    message TEXT NOT NULL,
    data TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
CREATE INDEX IF NOT EXISTS idx_events_source ON events(source);
CREATE INDEX IF NOT EXISTS idx_events_severity ON events(severity);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
`
