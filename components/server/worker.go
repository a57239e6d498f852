package server

import (
	"fmt"
	"time"

	"github.com/voxeldelve/mapsync/engine/common"
	"github.com/voxeldelve/mapsync/engine/consts"
	"github.com/voxeldelve/mapsync/engine/mslog"
	"github.com/voxeldelve/mapsync/engine/proto"
)

// workerState is the state of one transfer worker
type workerState int

const (
	// workerPendingID: waiting for the client's bulk connection to identify itself
	workerPendingID workerState = iota
	// workerActive: streaming chunks on the bulk connection
	workerActive
	// workerComplete: the client confirmed it finished building the map
	workerComplete
	// workerFailed: the transfer was abandoned (timeout or client error)
	workerFailed
)

func (ws workerState) String() string {
	switch ws {
	case workerPendingID:
		return "PendingID"
	case workerActive:
		return "Active"
	case workerComplete:
		return "Complete"
	case workerFailed:
		return "Failed"
	}
	return "Invalid"
}

// controlConn is the gameplay-side surface a worker needs: transfer
// announcements go on the low-latency channel
type controlConn interface {
	SendTransferBegin(mapID common.MapID, totalChunks uint32, totalSize uint64) error
	SendTransferComplete(mapID common.MapID) error
}

// chunkConn is the bulk-side surface a worker needs: chunk payloads plus the
// pending-write watermark that drives the backpressure gate
type chunkConn interface {
	SendMapChunk(mapID common.MapID, chunkIndex uint32, totalChunks uint32, payload []byte) error
	PendingWriteBytes() int64
}

// transferWorker streams one map to one client. Each client gets its own
// worker with its own cursor, so a slow client never holds back the others.
// Only touched from the main routine.
type transferWorker struct {
	uid         common.ClientUID
	mapID       common.MapID
	chunks      [][]byte
	totalSize   uint64
	gameplay    controlConn
	bulk        chunkConn
	state       workerState
	nextChunk   int
	clientState string
	allSent     bool
	createdAt   time.Time
	progressAt  time.Time
}

func newTransferWorker(uid common.ClientUID, mapID common.MapID, chunks [][]byte, totalSize uint64, gameplay controlConn) *transferWorker {
	now := time.Now()
	w := &transferWorker{
		uid:        uid,
		mapID:      mapID,
		chunks:     chunks,
		totalSize:  totalSize,
		gameplay:   gameplay,
		state:      workerPendingID,
		createdAt:  now,
		progressAt: now,
	}

	if err := gameplay.SendTransferBegin(mapID, uint32(len(chunks)), totalSize); err != nil {
		mslog.Errorf("%s: announce failed: %v", w, err)
		w.state = workerFailed
	}
	return w
}

func (w *transferWorker) String() string {
	return fmt.Sprintf("transferWorker<%s|%s|%s>", w.uid, w.mapID, w.state)
}

// chunksSent returns the number of chunks handed to the bulk connection
func (w *transferWorker) chunksSent() uint32 {
	return uint32(w.nextChunk)
}

func (w *transferWorker) isDone() bool {
	return w.state == workerComplete || w.state == workerFailed
}

// attachBulk activates the worker once the client's bulk connection identified itself
func (w *transferWorker) attachBulk(bulk chunkConn) {
	if w.state != workerPendingID {
		return
	}
	w.bulk = bulk
	w.state = workerActive
	w.progressAt = time.Now()
}

// setClientState records the client's latest reported transfer state. A
// client reporting completion finalizes the worker regardless of how many
// chunks were streamed: a client that already has the map completes without
// receiving a single chunk.
func (w *transferWorker) setClientState(state string) {
	w.clientState = state
	if w.isDone() {
		return
	}
	w.progressAt = time.Now()

	switch state {
	case proto.CLIENT_STATE_COMPLETE:
		w.state = workerComplete
		mslog.Infof("%s: client finished building map", w)
	case proto.CLIENT_STATE_ERROR:
		w.state = workerFailed
		mslog.Warnf("%s: client reported transfer error", w)
	}
}

// update runs one tick of the worker: sends up to the per-tick chunk budget,
// stopping early when the bulk connection's pending writes cross the
// backpressure watermark, and fails the worker when it stalls for too long.
func (w *transferWorker) update(now time.Time) {
	switch w.state {
	case workerPendingID:
		if now.Sub(w.createdAt) > consts.IDENTIFY_TIMEOUT {
			mslog.Warnf("%s: bulk connection never identified, giving up", w)
			w.state = workerFailed
		}
	case workerActive:
		w.updateActive(now)
	}
}

func (w *transferWorker) updateActive(now time.Time) {
	// chunks only flow while the client says it is receiving
	if w.clientState == proto.CLIENT_STATE_TRANSFERRING && !w.allSent {
		w.sendChunks()
	}

	if now.Sub(w.progressAt) > consts.TRANSFER_STALL_TIMEOUT {
		mslog.Warnf("%s: no progress for %s, giving up", w, consts.TRANSFER_STALL_TIMEOUT)
		w.state = workerFailed
	}
}

func (w *transferWorker) sendChunks() {
	totalChunks := uint32(len(w.chunks))
	for budget := consts.MAX_CHUNKS_PER_TICK; budget > 0 && w.nextChunk < len(w.chunks); budget-- {
		if w.bulk.PendingWriteBytes() >= consts.BULK_BACKPRESSURE_THRESHOLD {
			// the bulk socket is not draining, back off until next tick
			return
		}

		if err := w.bulk.SendMapChunk(w.mapID, uint32(w.nextChunk), totalChunks, w.chunks[w.nextChunk]); err != nil {
			mslog.Errorf("%s: send chunk %d failed: %v", w, w.nextChunk, err)
			w.state = workerFailed
			return
		}

		if consts.DEBUG_TRANSFER {
			mslog.Debugf("%s: sent chunk %d/%d", w, w.nextChunk, totalChunks)
		}
		w.nextChunk++
		w.progressAt = time.Now()
	}

	if w.nextChunk == len(w.chunks) {
		w.allSent = true
		if err := w.gameplay.SendTransferComplete(w.mapID); err != nil {
			mslog.Errorf("%s: send transfer complete failed: %v", w, err)
		}
		mslog.Infof("%s: all %d chunks sent", w, len(w.chunks))
	}
}
