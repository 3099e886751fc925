package pipeline

import (
	"testing"
)

// TestResponseAccumulation tests StageResponse field accumulation across
// transitions: later states must not lose what earlier ones recorded.
func TestResponseAccumulation(t *testing.T) {
	resp := &StageResponse{
		Version:    "2.0.0",
		BuildSHA:   "deadbeef",
		TargetSlot: "B",
		Components: 2,
	}

	// Simulate the stage transition
	resp.StagedSlot = "B"

	// Simulate completion
	resp.Status = StatusStaged

	if resp.Version == "" {
		t.Error("Version should be preserved from the verify state")
	}
	if resp.StagedSlot != resp.TargetSlot {
		t.Errorf("staged slot %s should match the manifest target %s", resp.StagedSlot, resp.TargetSlot)
	}
	if resp.Status != StatusStaged {
		t.Errorf("expected terminal status %q, got %q", StatusStaged, resp.Status)
	}
}

// TestFailurePath tests that failures record both status and message.
func TestFailurePath(t *testing.T) {
	resp := &StageResponse{}

	// Simulate a verification failure from handleVerify
	resp.Status = StatusFailed
	resp.ErrorMessage = "signature invalid"

	if resp.Status != StatusFailed {
		t.Errorf("expected status %q, got %q", StatusFailed, resp.Status)
	}
	if resp.ErrorMessage == "" {
		t.Error("failure must carry an error message")
	}
	if resp.StagedSlot != "" {
		t.Error("a failed run must not report a staged slot")
	}
}

func TestStateNames(t *testing.T) {
	// The FSM registers these exact names; a rename would orphan persisted
	// in-flight runs in the FSM database.
	tests := []struct {
		state string
		want  string
	}{
		{StateVerify, "verify_bundle"},
		{StateStage, "stage_slot"},
		{StateComplete, "complete"},
		{StateFailed, "failed"},
	}
	for _, tt := range tests {
		if tt.state != tt.want {
			t.Errorf("state name changed: got %q, want %q", tt.state, tt.want)
		}
	}
}
