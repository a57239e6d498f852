package statemgr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	stateIdle    State = "Idle"
	stateWorking State = "Working"
	stateDone    State = "Done"
)

type testHandler struct {
	state        State
	allowed      []State
	entered      int
	exited       int
	updated      int
	onEnter      func(ctx *StateContext)
	onUpdate     func(ctx *StateContext, dt time.Duration)
	panicOnEnter bool
}

func (h *testHandler) State() State                { return h.state }
func (h *testHandler) AllowedTransitions() []State { return h.allowed }

func (h *testHandler) OnEnterState(ctx *StateContext) {
	h.entered++
	if h.panicOnEnter {
		panic("handler enter panic")
	}
	if h.onEnter != nil {
		h.onEnter(ctx)
	}
}

func (h *testHandler) OnExitState(ctx *StateContext) {
	h.exited++
}

func (h *testHandler) OnUpdateState(ctx *StateContext, dt time.Duration) {
	h.updated++
	if h.onUpdate != nil {
		h.onUpdate(ctx, dt)
	}
}

type recordingListener struct {
	changes   [][2]State
	progress  int
	panicking bool
}

func (l *recordingListener) OnStateChanged(old State, new_ State, ctx *StateContext) {
	if l.panicking {
		panic("listener panic")
	}
	l.changes = append(l.changes, [2]State{old, new_})
}

func (l *recordingListener) OnStateProgressUpdated(ctx *StateContext) {
	l.progress++
}

func newTestManager() (*StateManager, *testHandler, *testHandler, *testHandler) {
	sm := NewStateManager("test", stateIdle)
	idle := &testHandler{state: stateIdle, allowed: []State{stateWorking}}
	working := &testHandler{state: stateWorking, allowed: []State{stateDone}}
	done := &testHandler{state: stateDone, allowed: nil}
	sm.RegisterHandler(idle)
	sm.RegisterHandler(working)
	sm.RegisterHandler(done)
	return sm, idle, working, done
}

func TestTransitionLegality(t *testing.T) {
	sm, idle, working, _ := newTestManager()

	// Idle -> Done is not declared by the Idle handler
	require.False(t, sm.RequestStateChange(stateDone))
	require.Equal(t, stateIdle, sm.CurrentState())

	require.True(t, sm.RequestStateChange(stateWorking))
	require.Equal(t, stateWorking, sm.CurrentState())
	require.Equal(t, stateIdle, sm.Context().PreviousState())
	assert.Equal(t, 1, idle.exited)
	assert.Equal(t, 1, working.entered)

	require.True(t, sm.RequestStateChange(stateDone))
	require.Equal(t, stateDone, sm.CurrentState())

	// Done handler declares no transitions: everything is rejected
	require.False(t, sm.RequestStateChange(stateIdle))
}

func TestSameStateIsNoop(t *testing.T) {
	sm, idle, _, _ := newTestManager()
	require.True(t, sm.RequestStateChange(stateIdle))
	assert.Equal(t, 0, idle.entered)
	assert.Equal(t, 0, idle.exited)
}

func TestPermissiveWithoutHandler(t *testing.T) {
	sm := NewStateManager("test", stateIdle)
	// no handler registered for Idle: any transition is permitted
	require.True(t, sm.RequestStateChange(stateDone))
	require.Equal(t, stateDone, sm.CurrentState())
}

func TestSingleFlight(t *testing.T) {
	sm, _, working, _ := newTestManager()

	// A second request issued while the first transition is still being
	// applied (from inside OnEnterState) must be rejected.
	var nested bool
	working.onEnter = func(ctx *StateContext) {
		nested = sm.RequestStateChange(stateDone)
	}

	require.True(t, sm.RequestStateChange(stateWorking))
	assert.False(t, nested, "nested transition must be rejected")
	assert.Equal(t, stateWorking, sm.CurrentState())

	// after the transition finished, requests are accepted again
	require.True(t, sm.RequestStateChange(stateDone))
}

func TestListenerNotification(t *testing.T) {
	sm, _, _, _ := newTestManager()
	broken := &recordingListener{panicking: true}
	healthy := &recordingListener{}
	sm.AddListener(broken)
	sm.AddListener(healthy)

	require.True(t, sm.RequestStateChange(stateWorking))
	require.Len(t, healthy.changes, 1)
	assert.Equal(t, [2]State{stateIdle, stateWorking}, healthy.changes[0])

	sm.SetProgress(0.5, "halfway")
	assert.Equal(t, 1, healthy.progress)
	assert.Equal(t, 0.5, sm.Context().Progress())
	assert.Equal(t, "halfway", sm.Context().StatusMessage())
}

func TestHandlerPanicIsolation(t *testing.T) {
	sm, _, working, _ := newTestManager()
	working.panicOnEnter = true

	// panic in OnEnterState must not leave the manager stuck mid-transition
	require.True(t, sm.RequestStateChange(stateWorking))
	require.Equal(t, stateWorking, sm.CurrentState())
	require.True(t, sm.RequestStateChange(stateDone))
}

func TestUpdateDispatch(t *testing.T) {
	sm, idle, working, _ := newTestManager()
	sm.Update(time.Millisecond * 50)
	sm.Update(time.Millisecond * 50)
	assert.Equal(t, 2, idle.updated)

	require.True(t, sm.RequestStateChange(stateWorking))
	sm.Update(time.Millisecond * 50)
	assert.Equal(t, 2, idle.updated)
	assert.Equal(t, 1, working.updated)
}

func TestUpdatePanicIsolation(t *testing.T) {
	sm, idle, _, _ := newTestManager()
	idle.onUpdate = func(ctx *StateContext, dt time.Duration) {
		panic("update panic")
	}
	sm.Update(time.Millisecond * 50) // must not propagate
	assert.Equal(t, 1, idle.updated)
}

func TestProgressClamped(t *testing.T) {
	sm, _, _, _ := newTestManager()
	sm.SetProgress(1.5, "over")
	assert.Equal(t, 1.0, sm.Context().Progress())
	sm.SetProgress(-0.5, "under")
	assert.Equal(t, 0.0, sm.Context().Progress())
}

func TestStateScopedData(t *testing.T) {
	sm, _, _, _ := newTestManager()
	ctx := sm.Context()
	ctx.SetData("k", 42)
	require.Equal(t, 42, ctx.GetData("k"))
	ctx.DelData("k")
	require.Nil(t, ctx.GetData("k"))
}
