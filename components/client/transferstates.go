package client

import (
	"time"

	"github.com/voxeldelve/mapsync/engine/chunkio"
	"github.com/voxeldelve/mapsync/engine/consts"
	"github.com/voxeldelve/mapsync/engine/mslog"
	"github.com/voxeldelve/mapsync/engine/proto"
	"github.com/voxeldelve/mapsync/engine/statemgr"
	"github.com/voxeldelve/mapsync/engine/world"
)

// Transfer states. The names double as the wire representation in state
// reports, so the server sees them verbatim.
const (
	stateIdle              = statemgr.State(proto.CLIENT_STATE_IDLE)
	stateTransferInitiated = statemgr.State(proto.CLIENT_STATE_INITIATED)
	stateTransferring      = statemgr.State(proto.CLIENT_STATE_TRANSFERRING)
	stateReassembling      = statemgr.State(proto.CLIENT_STATE_REASSEMBLING)
	stateBuildingAssets    = statemgr.State(proto.CLIENT_STATE_BUILDING_ASSETS)
	stateTransferComplete  = statemgr.State(proto.CLIENT_STATE_COMPLETE)
	stateTransferError     = statemgr.State(proto.CLIENT_STATE_ERROR)
)

func newTransferStateManager(c *MapClient) *statemgr.StateManager {
	sm := statemgr.NewStateManager("transfer", stateIdle)
	sm.RegisterHandler(&idleHandler{c})
	sm.RegisterHandler(&transferInitiatedHandler{c: c})
	sm.RegisterHandler(&transferringHandler{c})
	sm.RegisterHandler(&reassemblingHandler{c})
	sm.RegisterHandler(&buildingAssetsHandler{c})
	sm.RegisterHandler(&transferCompleteHandler{c})
	sm.RegisterHandler(&transferErrorHandler{c})
	return sm
}

type idleHandler struct {
	c *MapClient
}

func (h *idleHandler) State() statemgr.State { return stateIdle }
func (h *idleHandler) AllowedTransitions() []statemgr.State {
	return []statemgr.State{stateTransferInitiated}
}
func (h *idleHandler) OnEnterState(ctx *statemgr.StateContext) {}

func (h *idleHandler) OnExitState(ctx *statemgr.StateContext) {}

func (h *idleHandler) OnUpdateState(ctx *statemgr.StateContext, dt time.Duration) {}

// transferInitiatedHandler decides on the next tick how the announced
// transfer proceeds: short-circuit to complete when the client already has
// the map, otherwise reset and start receiving
type transferInitiatedHandler struct {
	c *MapClient
}

func (h *transferInitiatedHandler) State() statemgr.State { return stateTransferInitiated }
func (h *transferInitiatedHandler) AllowedTransitions() []statemgr.State {
	return []statemgr.State{stateTransferring, stateTransferComplete, stateTransferError}
}
func (h *transferInitiatedHandler) OnEnterState(ctx *statemgr.StateContext) {}
func (h *transferInitiatedHandler) OnExitState(ctx *statemgr.StateContext)  {}

func (h *transferInitiatedHandler) OnUpdateState(ctx *statemgr.StateContext, dt time.Duration) {
	c := h.c
	ann := c.announcement
	if ann == nil {
		mslog.Errorf("%s: transfer initiated without an announcement", c)
		c.transferMgr.RequestStateChange(stateTransferError)
		return
	}

	if !c.currentMapID.IsNil() && ann.mapID == c.currentMapID {
		// already have this exact map, keep the built world
		mslog.Infof("%s: already have map %s, skipping transfer", c, ann.mapID)
		c.keepWorld = true
		c.transferMgr.RequestStateChange(stateTransferComplete)
		return
	}

	c.keepWorld = false
	c.builder.ResetWorld()
	c.buffer = chunkio.NewReassemblyBuffer(ann.mapID, int(ann.totalChunks), int64(ann.totalSize))
	c.lastChunkTime = time.Now()

	if err := c.connectBulk(); err != nil {
		mslog.Errorf("%s: bulk connection failed: %v", c, err)
		c.transferMgr.RequestStateChange(stateTransferError)
		return
	}

	c.transferMgr.RequestStateChange(stateTransferring)
}

// transferringHandler watches the reassembly buffer fill up. Chunk arrival
// itself is handled by the message funnel; here only completion and stalls
// are checked.
type transferringHandler struct {
	c *MapClient
}

func (h *transferringHandler) State() statemgr.State { return stateTransferring }
func (h *transferringHandler) AllowedTransitions() []statemgr.State {
	return []statemgr.State{stateReassembling, stateTransferError}
}
func (h *transferringHandler) OnEnterState(ctx *statemgr.StateContext) {}
func (h *transferringHandler) OnExitState(ctx *statemgr.StateContext)  {}

func (h *transferringHandler) OnUpdateState(ctx *statemgr.StateContext, dt time.Duration) {
	c := h.c
	if c.buffer.IsComplete() {
		c.transferMgr.RequestStateChange(stateReassembling)
		return
	}

	if time.Since(c.lastChunkTime) > consts.TRANSFER_STALL_TIMEOUT {
		mslog.Errorf("%s: no chunk for %s, transfer stalled", c, consts.TRANSFER_STALL_TIMEOUT)
		c.transferMgr.RequestStateChange(stateTransferError)
	}
}

// reassemblingHandler glues the chunks back together and deserializes the world
type reassemblingHandler struct {
	c *MapClient
}

func (h *reassemblingHandler) State() statemgr.State { return stateReassembling }
func (h *reassemblingHandler) AllowedTransitions() []statemgr.State {
	return []statemgr.State{stateBuildingAssets, stateTransferError}
}
func (h *reassemblingHandler) OnEnterState(ctx *statemgr.StateContext) {}
func (h *reassemblingHandler) OnExitState(ctx *statemgr.StateContext)  {}

func (h *reassemblingHandler) OnUpdateState(ctx *statemgr.StateContext, dt time.Duration) {
	c := h.c
	blob, err := c.buffer.Reassemble()
	if err != nil {
		mslog.Errorf("%s: reassembly failed: %v", c, err)
		c.transferMgr.RequestStateChange(stateTransferError)
		return
	}

	w, err := world.Unmarshal(blob)
	if err != nil {
		mslog.Errorf("%s: world deserialization failed: %v", c, err)
		c.transferMgr.RequestStateChange(stateTransferError)
		return
	}
	if w.MapID != c.buffer.MapID() {
		mslog.Errorf("%s: deserialized map ID %s does not match announced %s", c, w.MapID, c.buffer.MapID())
		c.transferMgr.RequestStateChange(stateTransferError)
		return
	}

	c.pendingWorld = w
	c.transferMgr.RequestStateChange(stateBuildingAssets)
}

// buildingAssetsHandler hands the deserialized world to the asset builder
type buildingAssetsHandler struct {
	c *MapClient
}

func (h *buildingAssetsHandler) State() statemgr.State { return stateBuildingAssets }
func (h *buildingAssetsHandler) AllowedTransitions() []statemgr.State {
	return []statemgr.State{stateTransferComplete, stateTransferError}
}
func (h *buildingAssetsHandler) OnEnterState(ctx *statemgr.StateContext) {}
func (h *buildingAssetsHandler) OnExitState(ctx *statemgr.StateContext)  {}

func (h *buildingAssetsHandler) OnUpdateState(ctx *statemgr.StateContext, dt time.Duration) {
	c := h.c
	if err := c.builder.BuildWorld(c.pendingWorld); err != nil {
		mslog.Errorf("%s: asset building failed: %v", c, err)
		c.transferMgr.RequestStateChange(stateTransferError)
		return
	}
	c.transferMgr.RequestStateChange(stateTransferComplete)
}

type transferCompleteHandler struct {
	c *MapClient
}

func (h *transferCompleteHandler) State() statemgr.State { return stateTransferComplete }
func (h *transferCompleteHandler) AllowedTransitions() []statemgr.State {
	return []statemgr.State{stateTransferInitiated}
}

func (h *transferCompleteHandler) OnEnterState(ctx *statemgr.StateContext) {
	c := h.c
	c.currentMapID = c.announcement.mapID
	c.buffer = nil
	c.pendingWorld = nil
	if c.keepWorld {
		mslog.Infof("%s: kept already built map %s", c, c.currentMapID)
	} else {
		mslog.Infof("%s: map %s ready", c, c.currentMapID)
	}
}

func (h *transferCompleteHandler) OnExitState(ctx *statemgr.StateContext)                     {}
func (h *transferCompleteHandler) OnUpdateState(ctx *statemgr.StateContext, dt time.Duration) {}

type transferErrorHandler struct {
	c *MapClient
}

func (h *transferErrorHandler) State() statemgr.State { return stateTransferError }
func (h *transferErrorHandler) AllowedTransitions() []statemgr.State {
	return []statemgr.State{stateTransferInitiated}
}

func (h *transferErrorHandler) OnEnterState(ctx *statemgr.StateContext) {
	c := h.c
	c.buffer = nil
	c.pendingWorld = nil
	mslog.Errorf("%s: transfer failed, waiting for a new announcement", c)
}

func (h *transferErrorHandler) OnExitState(ctx *statemgr.StateContext)                     {}
func (h *transferErrorHandler) OnUpdateState(ctx *statemgr.StateContext, dt time.Duration) {}
