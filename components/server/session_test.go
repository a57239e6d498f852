package server

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxeldelve/mapsync/engine/chunkio"
	"github.com/voxeldelve/mapsync/engine/consts"
	"github.com/voxeldelve/mapsync/engine/proto"
)

func newTestSession(blobLen int) *transferSession {
	blob := bytes.Repeat([]byte{0xab}, blobLen)
	return newTransferSession("map-1", blob)
}

func TestSessionChunking(t *testing.T) {
	ts := newTestSession(100000)
	assert.Equal(t, chunkio.TotalChunks(100000, consts.MAP_CHUNK_SIZE), len(ts.chunks))
	assert.Equal(t, uint64(100000), ts.totalSize)

	// last chunk carries the remainder
	last := ts.chunks[len(ts.chunks)-1]
	assert.Equal(t, 100000%consts.MAP_CHUNK_SIZE, len(last))
}

func TestSessionPerClientIsolation(t *testing.T) {
	ts := newTestSession(consts.MAP_CHUNK_SIZE * 20)

	fastBulk := &fakeBulk{}
	slowBulk := &fakeBulk{pending: consts.BULK_WRITE_BUFFER_SIZE} // completely backed up

	fast := ts.addWorker("fast", &fakeGameplay{})
	slow := ts.addWorker("slow", &fakeGameplay{})
	fast.attachBulk(fastBulk)
	slow.attachBulk(slowBulk)
	ts.setClientState("fast", proto.CLIENT_STATE_TRANSFERRING)
	ts.setClientState("slow", proto.CLIENT_STATE_TRANSFERRING)

	ts.update(time.Now())
	ts.update(time.Now())

	// the stalled client never slows down the fast one
	assert.Equal(t, consts.MAX_CHUNKS_PER_TICK*2, len(fastBulk.sent))
	assert.Equal(t, 0, len(slowBulk.sent))

	progress := ts.allProgress()
	assert.Equal(t, uint32(consts.MAX_CHUNKS_PER_TICK*2), progress["fast"])
	assert.Equal(t, uint32(0), progress["slow"])
}

func TestSessionRestartWorker(t *testing.T) {
	ts := newTestSession(consts.MAP_CHUNK_SIZE * 3)
	gameplay := &fakeGameplay{}

	w1 := ts.addWorker("client-1", gameplay)
	w2 := ts.addWorker("client-1", gameplay)
	require.NotEqual(t, w1, w2)
	assert.Equal(t, 2, gameplay.begins) // re-announced
	assert.Equal(t, 1, len(ts.workers))
}

func TestSessionAttachBulkBeforeWorker(t *testing.T) {
	ts := newTestSession(consts.MAP_CHUNK_SIZE)

	// bulk identified before the gameplay connection: nothing to attach to yet
	ts.attachBulk("client-1", &fakeBulk{})
	assert.Equal(t, 0, len(ts.workers))
}

func TestSessionRemoveWorker(t *testing.T) {
	ts := newTestSession(consts.MAP_CHUNK_SIZE)
	ts.addWorker("client-1", &fakeGameplay{})
	require.Equal(t, 1, len(ts.workers))

	ts.removeWorker("client-1")
	assert.Equal(t, 0, len(ts.workers))
	assert.Equal(t, 0, len(ts.allProgress()))
}

func TestSessionAllComplete(t *testing.T) {
	ts := newTestSession(consts.MAP_CHUNK_SIZE)
	ts.addWorker("client-1", &fakeGameplay{})
	ts.addWorker("client-2", &fakeGameplay{})
	assert.False(t, ts.isAllComplete())

	ts.setClientState("client-1", proto.CLIENT_STATE_COMPLETE)
	assert.False(t, ts.isAllComplete())
	ts.setClientState("client-2", proto.CLIENT_STATE_COMPLETE)
	assert.True(t, ts.isAllComplete())
}
