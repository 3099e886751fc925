// Package pipeline implements the bundle staging workflow. It orchestrates
// verification and slot staging as a durable state machine using the
// superfly/fsm library, so an interrupted stage run resumes or aborts
// cleanly instead of leaving a half-trusted bundle behind.
package pipeline

import (
	"context"

	"github.com/lokan/updater/pkg/bundle"
	"github.com/lokan/updater/pkg/errors"
	"github.com/lokan/updater/pkg/slot"
	"github.com/superfly/fsm"
)

// Machine holds dependencies for FSM transitions
type Machine struct {
	verifier   *bundle.Verifier
	engine     *slot.Engine
	maxRetries int
}

// NewMachine creates a new staging machine with dependencies
func NewMachine(verifier *bundle.Verifier, engine *slot.Engine, maxRetries int) *Machine {
	return &Machine{
		verifier:   verifier,
		engine:     engine,
		maxRetries: maxRetries,
	}
}

// Register registers the staging FSM
func (m *Machine) Register(ctx context.Context, manager *fsm.Manager) (fsm.Start[StageRequest, StageResponse], fsm.Resume, error) {
	start, resume, err := fsm.Register[StageRequest, StageResponse](manager, "bundle-stage").
		Start(StateVerify, m.handleVerify).
		To(StateStage, m.handleStage).
		To(StateComplete, m.handleComplete).
		End(StateFailed).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register FSM")
	}

	return start, resume, nil
}
