package dispatcher

import (
	"fmt"
	"slices"

	"github.com/obstacle-panel/backend/internal/model"
)

var transitions = map[model.DispatchState][]model.DispatchState{
	model.StateIdle:       {model.StateOptimistic},
	model.StateOptimistic: {model.StateCommitted, model.StateRolledBack, model.StateAuthRequired},
}

// flight tracks one in-flight command through
// IDLE -> OPTIMISTIC -> COMMITTED | ROLLED_BACK | AUTH_REQUIRED.
type flight struct {
	cmd   model.Command
	state model.DispatchState
}

func newFlight() *flight {
	return &flight{state: model.StateIdle}
}

func (f *flight) advance(next model.DispatchState) {
	if !slices.Contains(transitions[f.state], next) {
		panic(fmt.Sprintf("dispatcher: invalid transition %s -> %s", f.state, next))
	}
	f.state = next
}
