package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/lokan/updater/pkg/slot"
)

func newRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "updater.db"))
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRepository_LoadEmpty(t *testing.T) {
	repo := newRepo(t)

	st, err := repo.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if st != nil {
		t.Errorf("expected nil state for empty store, got %+v", st)
	}
}

func TestRepository_SaveAndLoad(t *testing.T) {
	repo := newRepo(t)

	want := &slot.State{
		Active:             slot.SlotB,
		PreviousActive:     slot.SlotA,
		Trial:              slot.SlotB,
		BootCount:          3,
		UnhealthyBootCount: 1,
		Slots: map[slot.Slot]slot.Info{
			slot.SlotA: {Version: "1.0.0", State: slot.StateInactive},
			slot.SlotB: {Version: "2.0.0", State: slot.StateTrial},
		},
	}
	if err := repo.Save(want); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := repo.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected state, got nil")
	}

	if got.Active != want.Active || got.PreviousActive != want.PreviousActive ||
		got.Trial != want.Trial || got.Staged != want.Staged {
		t.Errorf("slot fields mismatch: got %+v, want %+v", got, want)
	}
	if got.BootCount != want.BootCount || got.UnhealthyBootCount != want.UnhealthyBootCount {
		t.Errorf("counters mismatch: got %d/%d, want %d/%d",
			got.BootCount, got.UnhealthyBootCount, want.BootCount, want.UnhealthyBootCount)
	}
	if got.Slots[slot.SlotB].Version != "2.0.0" || got.Slots[slot.SlotB].State != slot.StateTrial {
		t.Errorf("slot B mismatch: got %+v", got.Slots[slot.SlotB])
	}
	if got.LastRollback != nil {
		t.Errorf("expected no rollback, got %+v", got.LastRollback)
	}
}

func TestRepository_SaveOverwrites(t *testing.T) {
	repo := newRepo(t)

	first := slot.DefaultState("1.0.0", "")
	if err := repo.Save(first); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	second := first.Clone()
	second.Staged = slot.SlotB
	second.Slots[slot.SlotB] = slot.Info{Version: "2.0.0", State: slot.StateStaged}
	if err := repo.Save(second); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	got, err := repo.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got.Staged != slot.SlotB {
		t.Errorf("staged slot not persisted: got %q", got.Staged)
	}
	if got.Slots[slot.SlotB].Version != "2.0.0" {
		t.Errorf("slot version not persisted: got %q", got.Slots[slot.SlotB].Version)
	}
}

func TestRepository_RollbackRoundTrip(t *testing.T) {
	repo := newRepo(t)

	st := slot.DefaultState("1.0.0", "2.0.0")
	st.LastRollback = &slot.Rollback{
		From:            slot.SlotB,
		To:              slot.SlotA,
		FailedVersion:   "2.0.0",
		RestoredVersion: "1.0.0",
		At:              time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := repo.Save(st); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := repo.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got.LastRollback == nil {
		t.Fatal("rollback not persisted")
	}
	rb := got.LastRollback
	if rb.From != slot.SlotB || rb.To != slot.SlotA ||
		rb.FailedVersion != "2.0.0" || rb.RestoredVersion != "1.0.0" {
		t.Errorf("rollback mismatch: got %+v, want %+v", rb, st.LastRollback)
	}
	if !rb.At.Equal(st.LastRollback.At) {
		t.Errorf("rollback time mismatch: got %v, want %v", rb.At, st.LastRollback.At)
	}
}

func TestRepository_RollbackHistoryAppendsOncePerRollback(t *testing.T) {
	repo := newRepo(t)

	st := slot.DefaultState("1.0.0", "2.0.0")
	st.LastRollback = &slot.Rollback{
		From:            slot.SlotB,
		To:              slot.SlotA,
		FailedVersion:   "2.0.0",
		RestoredVersion: "1.0.0",
		At:              time.Now().UTC(),
	}

	// Repeated saves of the same state must not duplicate the history row.
	for i := 0; i < 3; i++ {
		if err := repo.Save(st); err != nil {
			t.Fatalf("save %d failed: %v", i, err)
		}
	}

	history, err := repo.RollbackHistory()
	if err != nil {
		t.Fatalf("history query failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 history row, got %d", len(history))
	}

	// A later rollback appends a second row, newest first.
	st.LastRollback = &slot.Rollback{
		From:            slot.SlotB,
		To:              slot.SlotA,
		FailedVersion:   "3.0.0",
		RestoredVersion: "1.0.0",
		At:              time.Now().UTC().Add(time.Minute),
	}
	if err := repo.Save(st); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	history, err = repo.RollbackHistory()
	if err != nil {
		t.Fatalf("history query failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history rows, got %d", len(history))
	}
	if history[0].FailedVersion != "3.0.0" {
		t.Errorf("expected newest rollback first, got %+v", history[0])
	}
}

func TestRepository_EngineIntegration(t *testing.T) {
	repo := newRepo(t)

	engine, err := slot.New(repo, 2, "1.0.0", "")
	if err != nil {
		t.Fatalf("engine init failed: %v", err)
	}

	if _, err := engine.Stage("2.0.0", ""); err != nil {
		t.Fatalf("stage failed: %v", err)
	}
	if _, err := engine.Commit(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	// A second engine over the same database sees the trial.
	reloaded, err := slot.New(repo, 2, "ignored", "")
	if err != nil {
		t.Fatalf("engine reload failed: %v", err)
	}
	snap := reloaded.Check()
	if snap.ActiveSlot != slot.SlotB || snap.TrialSlot != slot.SlotB {
		t.Errorf("reloaded state mismatch: %+v", snap)
	}
}
