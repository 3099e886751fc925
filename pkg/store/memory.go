package store

import (
	"sync"

	"github.com/lokan/updater/pkg/slot"
)

// Memory is an in-memory state store for tests.
type Memory struct {
	mu    sync.Mutex
	state *slot.State

	// SaveErr, when set, is returned by every Save call.
	SaveErr error
	// Saves counts successful Save calls.
	Saves int
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Load returns a copy of the stored state, or nil if nothing was saved.
func (m *Memory) Load() (*slot.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return nil, nil
	}
	return m.state.Clone(), nil
}

// Save stores a copy of the state.
func (m *Memory) Save(st *slot.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.state = st.Clone()
	m.Saves++
	return nil
}
