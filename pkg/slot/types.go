package slot

import (
	"fmt"
	"time"
)

// Slot identifies one of the two storage slots.
type Slot string

const (
	SlotA Slot = "A"
	SlotB Slot = "B"
)

// Other returns the peer slot.
func (s Slot) Other() Slot {
	if s == SlotA {
		return SlotB
	}
	return SlotA
}

// Parse converts a slot name into a Slot.
func Parse(name string) (Slot, error) {
	switch Slot(name) {
	case SlotA, SlotB:
		return Slot(name), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSlot, name)
	}
}

// HealthState is the lifecycle state of a single slot.
type HealthState string

const (
	StateInactive HealthState = "INACTIVE"
	StateActive   HealthState = "ACTIVE"
	StateStaged   HealthState = "STAGED"
	StateTrial    HealthState = "TRIAL"
	StateBad      HealthState = "BAD"
)

// Info holds the per-slot record.
type Info struct {
	Version string      `json:"version,omitempty"`
	State   HealthState `json:"state"`
}

// Rollback records one automatic rollback.
type Rollback struct {
	From            Slot      `json:"from_slot"`
	To              Slot      `json:"to_slot"`
	FailedVersion   string    `json:"failed_version"`
	RestoredVersion string    `json:"restored_version"`
	At              time.Time `json:"at"`
}

// State is the persisted engine state. Exactly one slot is ACTIVE or TRIAL
// at any time; Staged always names the inactive slot; PreviousActive is set
// if and only if Trial is set.
type State struct {
	Active             Slot
	PreviousActive     Slot
	Staged             Slot
	Trial              Slot
	BootCount          int
	UnhealthyBootCount int
	Slots              map[Slot]Info
	LastRollback       *Rollback
}

// DefaultState returns the factory state: slot A active with the given
// version, slot B inactive.
func DefaultState(versionA, versionB string) *State {
	return &State{
		Active: SlotA,
		Slots: map[Slot]Info{
			SlotA: {Version: versionA, State: StateActive},
			SlotB: {Version: versionB, State: StateInactive},
		},
	}
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	out := *s
	out.Slots = make(map[Slot]Info, len(s.Slots))
	for k, v := range s.Slots {
		out.Slots[k] = v
	}
	if s.LastRollback != nil {
		rb := *s.LastRollback
		out.LastRollback = &rb
	}
	return &out
}

// Snapshot is the read-only view returned by engine operations.
type Snapshot struct {
	ActiveSlot         Slot          `json:"active_slot"`
	PreviousActiveSlot Slot          `json:"previous_active_slot,omitempty"`
	StagedSlot         Slot          `json:"staged_slot,omitempty"`
	TrialSlot          Slot          `json:"trial_slot,omitempty"`
	BootCount          int           `json:"boot_count"`
	UnhealthyBootCount int           `json:"unhealthy_boot_count"`
	HealthFailWindow   int           `json:"health_fail_window"`
	Slots              map[Slot]Info `json:"slots"`
	LastRollback       *Rollback     `json:"last_rollback,omitempty"`
}

// Commit statuses.
const (
	CommitActivated = "activated"
	CommitCommitted = "committed"
	CommitNoop      = "noop"
)

// Health statuses.
const (
	HealthRecorded   = "recorded"
	HealthRolledBack = "rolled_back"
)

// CommitResult reports which commit phase ran.
type CommitResult struct {
	Status   string   `json:"status"`
	Snapshot Snapshot `json:"snapshot"`
}

// HealthResult reports the outcome of an unhealthy-boot signal.
type HealthResult struct {
	Status     string   `json:"status"`
	RolledBack bool     `json:"rolled_back"`
	Snapshot   Snapshot `json:"snapshot"`
}

// StageResult reports the outcome of staging a version.
type StageResult struct {
	StagedSlot Slot     `json:"staged_slot"`
	Version    string   `json:"version"`
	Snapshot   Snapshot `json:"snapshot"`
}
