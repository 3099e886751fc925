package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lokan/updater/pkg/slot"
	"github.com/superfly/fsm"
)

// handleVerify validates the bundle's structure, digests, and signature.
// Verification failures are deterministic, so they abort instead of
// retrying.
func (m *Machine) handleVerify(ctx context.Context, req *fsm.Request[StageRequest, StageResponse]) (*fsm.Response[StageResponse], error) {
	slog.Info("fsm_state_verify_bundle", "bundle_path", req.Msg.BundlePath)

	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.maxRetries) {
		slog.Error("max_retries_exceeded", "bundle_path", req.Msg.BundlePath, "max_retries", m.maxRetries)
		return nil, fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.maxRetries))
	}

	resp := req.W.Msg
	if resp == nil {
		resp = &StageResponse{}
	}

	manifest, err := m.verifier.Verify(req.Msg.BundlePath)
	if err != nil {
		slog.Error("bundle_verification_failed", "bundle_path", req.Msg.BundlePath, "error", err)
		resp.Status = StatusFailed
		resp.ErrorMessage = err.Error()
		return nil, fsm.Abort(err)
	}

	resp.Version = manifest.Version
	resp.BuildSHA = manifest.BuildSHA
	resp.TargetSlot = string(manifest.TargetSlot)
	resp.Components = len(manifest.Components)

	return fsm.NewResponse(resp), nil
}

// handleStage records the verified version into the inactive slot.
// Precondition failures (trial outstanding, already staged) are operator
// errors that will not heal on retry.
func (m *Machine) handleStage(ctx context.Context, req *fsm.Request[StageRequest, StageResponse]) (*fsm.Response[StageResponse], error) {
	slog.Info("fsm_state_stage_slot", "bundle_path", req.Msg.BundlePath)

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	result, err := m.engine.Stage(resp.Version, slot.Slot(resp.TargetSlot))
	if err != nil {
		slog.Error("engine_stage_failed", "version", resp.Version, "error", err)
		resp.Status = StatusFailed
		resp.ErrorMessage = err.Error()
		return nil, fsm.Abort(err)
	}

	resp.StagedSlot = string(result.StagedSlot)
	return fsm.NewResponse(resp), nil
}

// handleComplete marks the workflow done.
func (m *Machine) handleComplete(ctx context.Context, req *fsm.Request[StageRequest, StageResponse]) (*fsm.Response[StageResponse], error) {
	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	resp.Status = StatusStaged
	slog.Info("fsm_state_complete",
		"bundle_path", req.Msg.BundlePath,
		"version", resp.Version,
		"staged_slot", resp.StagedSlot)
	return fsm.NewResponse(resp), nil
}
