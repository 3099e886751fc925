// Package store persists engine state in SQLite. Every snapshot write runs
// in a single transaction, so a process restart never observes a torn
// update (a staged_slot without its slot version, for example).
package store

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/lokan/updater/pkg/errors"
	"github.com/lokan/updater/pkg/slot"
	_ "modernc.org/sqlite"
)

// Repository provides database operations for engine state.
type Repository struct {
	db *sql.DB
}

// NewRepository opens the database and creates the schema.
func NewRepository(dbPath string) (*Repository, error) {
	slog.Info("database_init", "db_path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("database_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to open database")
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("database_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to create schema")
	}

	slog.Info("database_ready", "db_path", dbPath)
	return &Repository{db: db}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Load returns the persisted engine state, or nil if none exists yet.
func (r *Repository) Load() (*slot.State, error) {
	var (
		st                             slot.State
		previous, staged, trial        sql.NullString
		rbFrom, rbTo, rbFailed, rbRest sql.NullString
		rbAt                           sql.NullString
	)

	query := `
		SELECT active_slot, previous_active_slot, staged_slot, trial_slot,
		       boot_count, unhealthy_boot_count,
		       rollback_from, rollback_to, rollback_failed_version,
		       rollback_restored_version, rollback_at
		FROM engine_state WHERE id = 1
	`
	err := r.db.QueryRow(query).Scan(
		&st.Active, &previous, &staged, &trial,
		&st.BootCount, &st.UnhealthyBootCount,
		&rbFrom, &rbTo, &rbFailed, &rbRest, &rbAt)
	if err == sql.ErrNoRows {
		slog.Info("database_state_not_found")
		return nil, nil
	}
	if err != nil {
		slog.Error("database_state_query_failed", "error", err)
		return nil, errors.Wrap(err, "failed to query engine state")
	}

	st.PreviousActive = slot.Slot(previous.String)
	st.Staged = slot.Slot(staged.String)
	st.Trial = slot.Slot(trial.String)

	if rbFrom.Valid {
		at, err := time.Parse(time.RFC3339Nano, rbAt.String)
		if err != nil {
			slog.Error("database_rollback_time_invalid", "value", rbAt.String, "error", err)
			return nil, errors.Wrap(err, "failed to parse rollback timestamp")
		}
		st.LastRollback = &slot.Rollback{
			From:            slot.Slot(rbFrom.String),
			To:              slot.Slot(rbTo.String),
			FailedVersion:   rbFailed.String,
			RestoredVersion: rbRest.String,
			At:              at,
		}
	}

	st.Slots = make(map[slot.Slot]slot.Info, 2)
	rows, err := r.db.Query(`SELECT slot, version, health_state FROM slots`)
	if err != nil {
		slog.Error("database_slots_query_failed", "error", err)
		return nil, errors.Wrap(err, "failed to query slots")
	}
	defer rows.Close()

	for rows.Next() {
		var name slot.Slot
		var info slot.Info
		if err := rows.Scan(&name, &info.Version, &info.State); err != nil {
			slog.Error("database_slot_scan_failed", "error", err)
			return nil, errors.Wrap(err, "failed to scan slot row")
		}
		st.Slots[name] = info
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "slot rows error")
	}

	slog.Info("database_state_loaded",
		"active_slot", st.Active,
		"staged_slot", st.Staged,
		"trial_slot", st.Trial)
	return &st, nil
}

// Save writes the full snapshot in one transaction. A new rollback (one
// whose timestamp is not yet the newest history row) is also appended to
// rollback_history.
func (r *Repository) Save(st *slot.State) error {
	tx, err := r.db.Begin()
	if err != nil {
		slog.Error("database_begin_failed", "error", err)
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	stateQuery := `
		INSERT INTO engine_state (
			id, active_slot, previous_active_slot, staged_slot, trial_slot,
			boot_count, unhealthy_boot_count,
			rollback_from, rollback_to, rollback_failed_version,
			rollback_restored_version, rollback_at, updated_at
		) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			active_slot = excluded.active_slot,
			previous_active_slot = excluded.previous_active_slot,
			staged_slot = excluded.staged_slot,
			trial_slot = excluded.trial_slot,
			boot_count = excluded.boot_count,
			unhealthy_boot_count = excluded.unhealthy_boot_count,
			rollback_from = excluded.rollback_from,
			rollback_to = excluded.rollback_to,
			rollback_failed_version = excluded.rollback_failed_version,
			rollback_restored_version = excluded.rollback_restored_version,
			rollback_at = excluded.rollback_at,
			updated_at = CURRENT_TIMESTAMP
	`

	var rbFrom, rbTo, rbFailed, rbRest, rbAt interface{}
	if st.LastRollback != nil {
		rbFrom = string(st.LastRollback.From)
		rbTo = string(st.LastRollback.To)
		rbFailed = st.LastRollback.FailedVersion
		rbRest = st.LastRollback.RestoredVersion
		rbAt = st.LastRollback.At.Format(time.RFC3339Nano)
	}

	if _, err := tx.Exec(stateQuery,
		nullableSlot(st.Active), nullableSlot(st.PreviousActive),
		nullableSlot(st.Staged), nullableSlot(st.Trial),
		st.BootCount, st.UnhealthyBootCount,
		rbFrom, rbTo, rbFailed, rbRest, rbAt); err != nil {
		slog.Error("database_state_upsert_failed", "error", err)
		return errors.Wrap(err, "failed to upsert engine state")
	}

	slotQuery := `
		INSERT INTO slots (slot, version, health_state) VALUES (?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			version = excluded.version,
			health_state = excluded.health_state
	`
	for name, info := range st.Slots {
		if _, err := tx.Exec(slotQuery, string(name), info.Version, string(info.State)); err != nil {
			slog.Error("database_slot_upsert_failed", "slot", name, "error", err)
			return errors.Wrapf(err, "failed to upsert slot %s", name)
		}
	}

	if st.LastRollback != nil {
		if err := appendRollback(tx, st.LastRollback); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("database_commit_failed", "error", err)
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

func appendRollback(tx *sql.Tx, rb *slot.Rollback) error {
	at := rb.At.Format(time.RFC3339Nano)

	var newest sql.NullString
	err := tx.QueryRow(`SELECT rolled_back_at FROM rollback_history ORDER BY id DESC LIMIT 1`).Scan(&newest)
	if err != nil && err != sql.ErrNoRows {
		slog.Error("database_rollback_history_query_failed", "error", err)
		return errors.Wrap(err, "failed to query rollback history")
	}
	if newest.Valid && newest.String == at {
		return nil // already recorded by a previous save
	}

	query := `
		INSERT INTO rollback_history (from_slot, to_slot, failed_version, restored_version, rolled_back_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := tx.Exec(query,
		string(rb.From), string(rb.To), rb.FailedVersion, rb.RestoredVersion, at); err != nil {
		slog.Error("database_rollback_history_insert_failed", "error", err)
		return errors.Wrap(err, "failed to append rollback history")
	}

	slog.Info("database_rollback_recorded",
		"from_slot", rb.From, "to_slot", rb.To, "failed_version", rb.FailedVersion)
	return nil
}

// RollbackHistory returns all recorded rollbacks, newest first.
func (r *Repository) RollbackHistory() ([]slot.Rollback, error) {
	query := `
		SELECT from_slot, to_slot, failed_version, restored_version, rolled_back_at
		FROM rollback_history ORDER BY id DESC
	`
	rows, err := r.db.Query(query)
	if err != nil {
		slog.Error("database_rollback_history_list_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list rollback history")
	}
	defer rows.Close()

	var history []slot.Rollback
	for rows.Next() {
		var rb slot.Rollback
		var at string
		if err := rows.Scan(&rb.From, &rb.To, &rb.FailedVersion, &rb.RestoredVersion, &at); err != nil {
			return nil, errors.Wrap(err, "failed to scan rollback row")
		}
		parsed, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse rollback timestamp")
		}
		rb.At = parsed
		history = append(history, rb)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rollback rows error")
	}
	return history, nil
}

func nullableSlot(s slot.Slot) interface{} {
	if s == "" {
		return nil
	}
	return string(s)
}
