package server

import (
	"fmt"
	"time"

	"github.com/voxeldelve/mapsync/engine/chunkio"
	"github.com/voxeldelve/mapsync/engine/common"
	"github.com/voxeldelve/mapsync/engine/consts"
	"github.com/voxeldelve/mapsync/engine/mslog"
)

// transferSession coordinates the distribution of one map snapshot to all
// connected clients. The blob is chunked once; every worker streams from the
// same chunk slice with its own cursor. Starting a session for a new map
// supersedes the previous session entirely. Only touched from the main
// routine.
type transferSession struct {
	mapID     common.MapID
	totalSize uint64
	chunks    [][]byte
	workers   map[common.ClientUID]*transferWorker
}

func newTransferSession(mapID common.MapID, blob []byte) *transferSession {
	return &transferSession{
		mapID:     mapID,
		totalSize: uint64(len(blob)),
		chunks:    chunkio.ChunkBlob(blob, consts.MAP_CHUNK_SIZE),
		workers:   map[common.ClientUID]*transferWorker{},
	}
}

func (ts *transferSession) String() string {
	return fmt.Sprintf("transferSession<%s|%d chunks|%d workers>", ts.mapID, len(ts.chunks), len(ts.workers))
}

// addWorker starts (or restarts) the transfer of this session's map to one
// client. The transfer is announced on the client's gameplay connection
// immediately; chunks flow once the client's bulk connection identifies
// itself and the client reports it is receiving.
func (ts *transferSession) addWorker(uid common.ClientUID, gameplay controlConn) *transferWorker {
	if old := ts.workers[uid]; old != nil && !old.isDone() {
		mslog.Warnf("%s: restarting transfer for %s", ts, uid)
	}

	w := newTransferWorker(uid, ts.mapID, ts.chunks, ts.totalSize, gameplay)
	ts.workers[uid] = w
	return w
}

// attachBulk hands the client's bulk connection to its worker, if any
func (ts *transferSession) attachBulk(uid common.ClientUID, bulk chunkConn) {
	if w := ts.workers[uid]; w != nil {
		w.attachBulk(bulk)
	}
}

// setClientState forwards the client's reported state to its worker, if any
func (ts *transferSession) setClientState(uid common.ClientUID, state string) {
	if w := ts.workers[uid]; w != nil {
		w.setClientState(state)
	}
}

// removeWorker drops the client's worker (client gone)
func (ts *transferSession) removeWorker(uid common.ClientUID) {
	delete(ts.workers, uid)
}

// update runs one tick of every worker
func (ts *transferSession) update(now time.Time) {
	for _, w := range ts.workers {
		w.update(now)
	}
}

// allProgress returns every client's chunks-sent count keyed by client UID
func (ts *transferSession) allProgress() map[string]uint32 {
	progress := make(map[string]uint32, len(ts.workers))
	for uid, w := range ts.workers {
		progress[string(uid)] = w.chunksSent()
	}
	return progress
}

// isAllComplete returns true when every worker reached a terminal state
func (ts *transferSession) isAllComplete() bool {
	for _, w := range ts.workers {
		if !w.isDone() {
			return false
		}
	}
	return true
}
