package system

import (
	"time"

	coresys "github.com/cacaoengine/cacao/internal/core/system"
	"github.com/cacaoengine/cacao/internal/input"
)

// InputSystem freezes the input view so every script in the tick reads the
// same state. Phase 0 (Input).
type InputSystem struct {
	state *input.State
}

func NewInputSystem(state *input.State) *InputSystem {
	return &InputSystem{state: state}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	s.state.Freeze()
}
