package store

// Schema defines the SQLite schema for engine state. engine_state is a
// singleton row; slots holds the per-slot records; rollback_history is an
// append-only audit trail of automatic rollbacks (the newest row mirrors
// the engine's last_rollback columns).
const Schema = `
CREATE TABLE IF NOT EXISTS engine_state (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    active_slot TEXT NOT NULL CHECK(active_slot IN ('A', 'B')),
    previous_active_slot TEXT CHECK(previous_active_slot IN ('A', 'B')),
    staged_slot TEXT CHECK(staged_slot IN ('A', 'B')),
    trial_slot TEXT CHECK(trial_slot IN ('A', 'B')),
    boot_count INTEGER NOT NULL DEFAULT 0,
    unhealthy_boot_count INTEGER NOT NULL DEFAULT 0,
    rollback_from TEXT,
    rollback_to TEXT,
    rollback_failed_version TEXT,
    rollback_restored_version TEXT,
    rollback_at TEXT,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS slots (
    slot TEXT PRIMARY KEY CHECK(slot IN ('A', 'B')),
    version TEXT NOT NULL DEFAULT '',
    health_state TEXT NOT NULL
        CHECK(health_state IN ('INACTIVE', 'ACTIVE', 'STAGED', 'TRIAL', 'BAD'))
);

CREATE TABLE IF NOT EXISTS rollback_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    from_slot TEXT NOT NULL,
    to_slot TEXT NOT NULL,
    failed_version TEXT NOT NULL,
    restored_version TEXT NOT NULL,
    rolled_back_at TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_rollback_history_rolled_back_at
    ON rollback_history(rolled_back_at);
`
