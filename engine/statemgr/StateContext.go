package statemgr

import (
	"time"
)

// State identifies one state of a state machine. States are plain strings so
// they can be reported over the wire as-is.
type State string

// StateNone is the zero State
const StateNone State = ""

// StateContext carries the mutable context of one running state machine:
// the current and previous state, state-scoped data, progress and status for
// user-facing reporting, and timestamps. It is owned by a StateManager and
// must only be mutated through it, on the tick goroutine.
type StateContext struct {
	currentState  State
	previousState State
	data          map[string]interface{}
	progress      float64
	statusMessage string
	enteredAt     time.Time
	updatedAt     time.Time
}

func newStateContext(initial State) *StateContext {
	now := time.Now()
	return &StateContext{
		currentState: initial,
		data:         map[string]interface{}{},
		enteredAt:    now,
		updatedAt:    now,
	}
}

// CurrentState returns the current state
func (ctx *StateContext) CurrentState() State {
	return ctx.currentState
}

// PreviousState returns the state before the last transition
func (ctx *StateContext) PreviousState() State {
	return ctx.previousState
}

// Progress returns the progress of the current state in [0, 1]
func (ctx *StateContext) Progress() float64 {
	return ctx.progress
}

// StatusMessage returns the human-readable status of the current state
func (ctx *StateContext) StatusMessage() string {
	return ctx.statusMessage
}

// EnteredAt returns when the current state was entered
func (ctx *StateContext) EnteredAt() time.Time {
	return ctx.enteredAt
}

// UpdatedAt returns when progress/status was last updated
func (ctx *StateContext) UpdatedAt() time.Time {
	return ctx.updatedAt
}

// TimeInState returns how long the machine has been in the current state
func (ctx *StateContext) TimeInState(now time.Time) time.Duration {
	return now.Sub(ctx.enteredAt)
}

// SetData stores a state-scoped value. Handlers that produce data should
// clear it in OnExitState.
func (ctx *StateContext) SetData(key string, value interface{}) {
	ctx.data[key] = value
}

// GetData returns a state-scoped value, nil if absent
func (ctx *StateContext) GetData(key string) interface{} {
	return ctx.data[key]
}

// DelData removes a state-scoped value
func (ctx *StateContext) DelData(key string) {
	delete(ctx.data, key)
}
