// Package slot implements the A/B slot state machine that owns which slot
// is active, which is staged or on trial, and drives automatic rollback
// from boot-health signals.
package slot

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lokan/updater/pkg/errors"
)

// Store persists engine state. Save must be atomic with respect to a
// process restart: a partially written snapshot on recovery would violate
// the engine invariants.
type Store interface {
	// Load returns the persisted state, or nil if none has been saved yet.
	Load() (*State, error)
	Save(*State) error
}

// Engine is the authoritative record of slot state. All mutating
// operations serialize on an internal lock and persist the new state
// before reporting success.
type Engine struct {
	mu     sync.Mutex
	store  Store
	window int
	state  *State
}

// New loads the engine state from the store, seeding the factory default
// (slot A active) on first run. window is the number of consecutive
// unhealthy boots during a trial that triggers automatic rollback.
func New(store Store, window int, initialVersionA, initialVersionB string) (*Engine, error) {
	if window <= 0 {
		return nil, fmt.Errorf("health fail window must be positive, got %d", window)
	}

	state, err := store.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load engine state")
	}
	if state == nil {
		state = DefaultState(initialVersionA, initialVersionB)
		if err := store.Save(state); err != nil {
			return nil, errors.Wrap(err, "failed to seed engine state")
		}
		slog.Info("engine_state_seeded", "active_slot", state.Active, "version", initialVersionA)
	} else {
		slog.Info("engine_state_loaded",
			"active_slot", state.Active,
			"staged_slot", state.Staged,
			"trial_slot", state.Trial)
	}

	return &Engine{store: store, window: window, state: state}, nil
}

// Stage records version into the inactive slot and marks it staged.
// target, when non-empty, must match the slot staging will use (the
// manifest's declared target slot is cross-checked here). Fails while a
// trial is outstanding or another version is already staged.
func (e *Engine) Stage(version string, target Slot) (*StageResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Trial != "" {
		return nil, ErrUpdateInProgress
	}
	if e.state.Staged != "" {
		return nil, ErrUpdateAlreadyStaged
	}
	if version == "" {
		return nil, ErrInvalidVersion
	}

	candidate := e.state.Active.Other()
	if target != "" && target != candidate {
		return nil, fmt.Errorf("%w: target slot %s is active, staging targets %s",
			ErrInvalidSlot, target, candidate)
	}

	next := e.state.Clone()
	next.Slots[candidate] = Info{Version: version, State: StateStaged}
	next.Staged = candidate
	next.BootCount = 0
	next.UnhealthyBootCount = 0
	next.LastRollback = nil

	if err := e.store.Save(next); err != nil {
		return nil, errors.Wrap(err, "failed to persist staged state")
	}
	e.state = next

	slog.Info("engine_staged", "slot", candidate, "version", version)
	return &StageResult{StagedSlot: candidate, Version: version, Snapshot: e.snapshot()}, nil
}

// Commit is phase-overloaded: with a staged slot it activates (the staged
// slot becomes active and enters its trial); with an outstanding trial it
// finalizes (the trial is confirmed and cleared); with neither it is a
// no-op.
func (e *Engine) Commit() (*CommitResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.state.Staged != "":
		return e.activate()
	case e.state.Trial != "":
		return e.finalize()
	default:
		slog.Info("engine_commit_noop")
		return &CommitResult{Status: CommitNoop, Snapshot: e.snapshot()}, nil
	}
}

func (e *Engine) activate() (*CommitResult, error) {
	next := e.state.Clone()
	previous := next.Active
	promoted := next.Staged

	next.Active = promoted
	next.PreviousActive = previous
	next.Trial = promoted
	next.Staged = ""
	next.BootCount = 0
	next.UnhealthyBootCount = 0

	info := next.Slots[promoted]
	info.State = StateTrial
	next.Slots[promoted] = info

	prevInfo := next.Slots[previous]
	prevInfo.State = StateInactive
	next.Slots[previous] = prevInfo

	if err := e.store.Save(next); err != nil {
		return nil, errors.Wrap(err, "failed to persist activated state")
	}
	e.state = next

	slog.Info("engine_activated",
		"active_slot", promoted,
		"previous_slot", previous,
		"version", info.Version)
	return &CommitResult{Status: CommitActivated, Snapshot: e.snapshot()}, nil
}

func (e *Engine) finalize() (*CommitResult, error) {
	next := e.state.Clone()
	confirmed := next.Trial

	info := next.Slots[confirmed]
	info.State = StateActive
	next.Slots[confirmed] = info

	next.Trial = ""
	next.PreviousActive = ""
	next.BootCount = 0
	next.UnhealthyBootCount = 0

	if err := e.store.Save(next); err != nil {
		return nil, errors.Wrap(err, "failed to persist finalized state")
	}
	e.state = next

	slog.Info("engine_committed", "active_slot", confirmed, "version", info.Version)
	return &CommitResult{Status: CommitCommitted, Snapshot: e.snapshot()}, nil
}

// MarkUnhealthy records an unhealthy boot signal. It never returns a
// domain error (boot watchdogs must not fail on a health report); the only
// error path is a persistence failure. Reaching the configured window
// while a trial is outstanding triggers automatic rollback to the previous
// active slot.
func (e *Engine) MarkUnhealthy() (*HealthResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.state.Clone()
	next.BootCount++

	if next.Trial == "" {
		// No trial means nothing to roll back from. This also covers a
		// staged-but-not-activated update: the signal is counted and
		// surfaced, but the staged slot is left alone.
		if next.Staged != "" {
			slog.Warn("health_signal_without_trial",
				"staged_slot", next.Staged, "boot_count", next.BootCount)
		}
		if err := e.store.Save(next); err != nil {
			return nil, errors.Wrap(err, "failed to persist health signal")
		}
		e.state = next
		return &HealthResult{Status: HealthRecorded, Snapshot: e.snapshot()}, nil
	}

	next.UnhealthyBootCount++
	if next.UnhealthyBootCount >= e.window && next.PreviousActive != "" {
		return e.rollback(next)
	}

	if err := e.store.Save(next); err != nil {
		return nil, errors.Wrap(err, "failed to persist health signal")
	}
	e.state = next

	slog.Info("engine_unhealthy_recorded",
		"trial_slot", next.Trial,
		"unhealthy_boot_count", next.UnhealthyBootCount,
		"health_fail_window", e.window)
	return &HealthResult{Status: HealthRecorded, Snapshot: e.snapshot()}, nil
}

func (e *Engine) rollback(next *State) (*HealthResult, error) {
	failed := next.Trial
	restored := next.PreviousActive

	failedInfo := next.Slots[failed]
	failedInfo.State = StateBad // version stays recorded for diagnosis
	next.Slots[failed] = failedInfo

	restoredInfo := next.Slots[restored]
	restoredInfo.State = StateActive
	next.Slots[restored] = restoredInfo

	next.LastRollback = &Rollback{
		From:            failed,
		To:              restored,
		FailedVersion:   failedInfo.Version,
		RestoredVersion: restoredInfo.Version,
		At:              time.Now().UTC(),
	}
	next.Active = restored
	next.Trial = ""
	next.PreviousActive = ""
	next.Staged = ""
	next.BootCount = 0
	next.UnhealthyBootCount = 0

	if err := e.store.Save(next); err != nil {
		return nil, errors.Wrap(err, "failed to persist rollback")
	}
	e.state = next

	slog.Warn("engine_rolled_back",
		"from_slot", failed,
		"to_slot", restored,
		"failed_version", failedInfo.Version,
		"restored_version", restoredInfo.Version)
	return &HealthResult{Status: HealthRolledBack, RolledBack: true, Snapshot: e.snapshot()}, nil
}

// Check returns the current state snapshot without side effects.
func (e *Engine) Check() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

// snapshot must be called with the lock held.
func (e *Engine) snapshot() Snapshot {
	st := e.state.Clone()
	return Snapshot{
		ActiveSlot:         st.Active,
		PreviousActiveSlot: st.PreviousActive,
		StagedSlot:         st.Staged,
		TrialSlot:          st.Trial,
		BootCount:          st.BootCount,
		UnhealthyBootCount: st.UnhealthyBootCount,
		HealthFailWindow:   e.window,
		Slots:              st.Slots,
		LastRollback:       st.LastRollback,
	}
}
