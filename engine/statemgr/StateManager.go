package statemgr

import (
	"time"

	"github.com/voxeldelve/mapsync/engine/mslog"
	"github.com/voxeldelve/mapsync/engine/msutils"
)

// StateHandler is the behavior bound to one state: the state it handles, the
// set of states it may legally transition to, and the per-state lifecycle
// hooks. Handlers must not assume hooks run on any goroutine other than the
// owning manager's tick goroutine.
type StateHandler interface {
	State() State
	AllowedTransitions() []State
	OnEnterState(ctx *StateContext)
	OnExitState(ctx *StateContext)
	OnUpdateState(ctx *StateContext, dt time.Duration)
}

// StateListener is notified after transitions and progress updates
type StateListener interface {
	OnStateChanged(old State, new_ State, ctx *StateContext)
	OnStateProgressUpdated(ctx *StateContext)
}

// StateManager is a finite-state-machine engine: it owns the StateContext,
// maps states to their handlers, validates transition requests against the
// current handler's declared transition set, and keeps handler and listener
// failures from propagating. Not goroutine-safe: all calls must come from
// the owner's tick goroutine.
type StateManager struct {
	name          string
	ctx           *StateContext
	handlers      map[State]StateHandler
	listeners     []StateListener
	transitioning bool
}

// NewStateManager creates a state manager starting in the initial state
func NewStateManager(name string, initial State) *StateManager {
	return &StateManager{
		name:     name,
		ctx:      newStateContext(initial),
		handlers: map[State]StateHandler{},
	}
}

func (sm *StateManager) String() string {
	return "StateManager<" + sm.name + ">"
}

// Context returns the state context
func (sm *StateManager) Context() *StateContext {
	return sm.ctx
}

// CurrentState returns the current state
func (sm *StateManager) CurrentState() State {
	return sm.ctx.currentState
}

// RegisterHandler binds a handler to the state it declares
func (sm *StateManager) RegisterHandler(h StateHandler) {
	state := h.State()
	if _, ok := sm.handlers[state]; ok {
		mslog.Panicf("%s: handler for state %s registered twice", sm, state)
	}
	sm.handlers[state] = h
}

// AddListener registers a listener for transition and progress notifications
func (sm *StateManager) AddListener(l StateListener) {
	sm.listeners = append(sm.listeners, l)
}

// RequestStateChange transitions to newState. Returns false if a transition
// is already in progress (single-flight: concurrent requests are rejected,
// not queued) or if the current handler does not allow the transition.
// Requesting the current state is a no-op success. If no handler is
// registered for the current state the transition is permitted
// unconditionally.
func (sm *StateManager) RequestStateChange(newState State) bool {
	if sm.transitioning {
		mslog.Warnf("%s: state change to %s rejected: transition already in progress", sm, newState)
		return false
	}

	oldState := sm.ctx.currentState
	if newState == oldState {
		return true
	}

	oldHandler := sm.handlers[oldState]
	if oldHandler != nil && !transitionAllowed(oldHandler, newState) {
		mslog.Warnf("%s: illegal transition %s -> %s", sm, oldState, newState)
		return false
	}

	sm.transitioning = true
	defer func() { // always clear the flag, even if a handler panics
		sm.transitioning = false
	}()

	if oldHandler != nil {
		msutils.RunPanicless(func() {
			oldHandler.OnExitState(sm.ctx)
		})
	}

	now := time.Now()
	sm.ctx.previousState = oldState
	sm.ctx.currentState = newState
	sm.ctx.progress = 0
	sm.ctx.statusMessage = ""
	sm.ctx.enteredAt = now
	sm.ctx.updatedAt = now

	if newHandler := sm.handlers[newState]; newHandler != nil {
		msutils.RunPanicless(func() {
			newHandler.OnEnterState(sm.ctx)
		})
	}

	for _, l := range sm.listeners {
		l := l
		msutils.RunPanicless(func() { // one broken listener must not block others
			l.OnStateChanged(oldState, newState, sm.ctx)
		})
	}
	return true
}

// Update dispatches one tick to the current state's handler. Handler panics
// are logged and swallowed.
func (sm *StateManager) Update(dt time.Duration) {
	if sm.transitioning {
		return
	}

	if h := sm.handlers[sm.ctx.currentState]; h != nil {
		msutils.RunPanicless(func() {
			h.OnUpdateState(sm.ctx, dt)
		})
	}
}

// SetProgress updates the current state's progress and status message and
// notifies listeners
func (sm *StateManager) SetProgress(progress float64, statusMessage string) {
	if progress < 0 {
		progress = 0
	} else if progress > 1 {
		progress = 1
	}

	sm.ctx.progress = progress
	sm.ctx.statusMessage = statusMessage
	sm.ctx.updatedAt = time.Now()

	for _, l := range sm.listeners {
		l := l
		msutils.RunPanicless(func() {
			l.OnStateProgressUpdated(sm.ctx)
		})
	}
}

func transitionAllowed(h StateHandler, newState State) bool {
	for _, s := range h.AllowedTransitions() {
		if s == newState {
			return true
		}
	}
	return false
}
