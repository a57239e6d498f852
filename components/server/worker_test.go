package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxeldelve/mapsync/engine/common"
	"github.com/voxeldelve/mapsync/engine/consts"
	"github.com/voxeldelve/mapsync/engine/proto"
)

type fakeGameplay struct {
	begins    int
	completes int
}

func (f *fakeGameplay) SendTransferBegin(mapID common.MapID, totalChunks uint32, totalSize uint64) error {
	f.begins++
	return nil
}

func (f *fakeGameplay) SendTransferComplete(mapID common.MapID) error {
	f.completes++
	return nil
}

type fakeBulk struct {
	pending int64
	sent    []uint32
}

func (f *fakeBulk) SendMapChunk(mapID common.MapID, chunkIndex uint32, totalChunks uint32, payload []byte) error {
	f.sent = append(f.sent, chunkIndex)
	return nil
}

func (f *fakeBulk) PendingWriteBytes() int64 {
	return f.pending
}

func makeChunks(n int) [][]byte {
	chunks := make([][]byte, n)
	for i := range chunks {
		chunks[i] = []byte{byte(i)}
	}
	return chunks
}

func newTestWorker(n int) (*transferWorker, *fakeGameplay, *fakeBulk) {
	gameplay := &fakeGameplay{}
	bulk := &fakeBulk{}
	w := newTransferWorker("client-1", "map-1", makeChunks(n), uint64(n), gameplay)
	return w, gameplay, bulk
}

func TestWorkerAnnouncesOnCreation(t *testing.T) {
	w, gameplay, _ := newTestWorker(3)
	assert.Equal(t, 1, gameplay.begins)
	assert.Equal(t, workerPendingID, w.state)
}

func TestWorkerWaitsForBulkIdentification(t *testing.T) {
	w, _, bulk := newTestWorker(3)
	w.setClientState(proto.CLIENT_STATE_TRANSFERRING)

	// no bulk connection yet: nothing flows
	w.update(time.Now())
	assert.Equal(t, workerPendingID, w.state)

	w.attachBulk(bulk)
	require.Equal(t, workerActive, w.state)
	w.update(time.Now())
	assert.Equal(t, []uint32{0, 1, 2}, bulk.sent)
}

func TestWorkerIdentifyTimeout(t *testing.T) {
	w, _, _ := newTestWorker(3)
	w.update(time.Now().Add(consts.IDENTIFY_TIMEOUT + time.Second))
	assert.Equal(t, workerFailed, w.state)
}

func TestWorkerWaitsForClientTransferring(t *testing.T) {
	w, _, bulk := newTestWorker(3)
	w.attachBulk(bulk)
	w.setClientState(proto.CLIENT_STATE_INITIATED)

	w.update(time.Now())
	assert.Equal(t, 0, len(bulk.sent))

	w.setClientState(proto.CLIENT_STATE_TRANSFERRING)
	w.update(time.Now())
	assert.Equal(t, 3, len(bulk.sent))
}

func TestWorkerRateLimit(t *testing.T) {
	w, _, bulk := newTestWorker(consts.MAX_CHUNKS_PER_TICK*2 + 3)
	w.attachBulk(bulk)
	w.setClientState(proto.CLIENT_STATE_TRANSFERRING)

	w.update(time.Now())
	assert.Equal(t, consts.MAX_CHUNKS_PER_TICK, len(bulk.sent))

	w.update(time.Now())
	assert.Equal(t, consts.MAX_CHUNKS_PER_TICK*2, len(bulk.sent))

	w.update(time.Now())
	assert.Equal(t, consts.MAX_CHUNKS_PER_TICK*2+3, len(bulk.sent))
	assert.True(t, w.allSent)
}

func TestWorkerBackpressure(t *testing.T) {
	w, _, bulk := newTestWorker(10)
	w.attachBulk(bulk)
	w.setClientState(proto.CLIENT_STATE_TRANSFERRING)

	// the bulk socket is 90% full, above the watermark: nothing is sent and
	// the worker stays active
	bulk.pending = consts.BULK_WRITE_BUFFER_SIZE * 90 / 100
	w.update(time.Now())
	assert.Equal(t, 0, len(bulk.sent))
	assert.Equal(t, workerActive, w.state)

	// the socket drained: sending resumes
	bulk.pending = 0
	w.update(time.Now())
	assert.Equal(t, consts.MAX_CHUNKS_PER_TICK, len(bulk.sent))
}

func TestWorkerCompletion(t *testing.T) {
	w, gameplay, bulk := newTestWorker(3)
	w.attachBulk(bulk)
	w.setClientState(proto.CLIENT_STATE_TRANSFERRING)

	w.update(time.Now())
	require.True(t, w.allSent)
	assert.Equal(t, 1, gameplay.completes)
	assert.Equal(t, workerActive, w.state) // not done until the client confirms

	w.setClientState(proto.CLIENT_STATE_COMPLETE)
	assert.Equal(t, workerComplete, w.state)
	assert.Equal(t, uint32(3), w.chunksSent())
}

func TestWorkerShortCircuitCompletion(t *testing.T) {
	// a client that already has the map reports completion without ever
	// identifying a bulk connection or receiving a chunk
	w, _, _ := newTestWorker(3)
	w.setClientState(proto.CLIENT_STATE_COMPLETE)
	assert.Equal(t, workerComplete, w.state)
	assert.Equal(t, uint32(0), w.chunksSent())
}

func TestWorkerClientError(t *testing.T) {
	w, _, bulk := newTestWorker(3)
	w.attachBulk(bulk)
	w.setClientState(proto.CLIENT_STATE_ERROR)
	assert.Equal(t, workerFailed, w.state)
}

func TestWorkerStallTimeout(t *testing.T) {
	w, _, bulk := newTestWorker(3)
	w.attachBulk(bulk)

	// the client never starts receiving; eventually the worker gives up
	w.update(time.Now().Add(consts.TRANSFER_STALL_TIMEOUT + time.Second))
	assert.Equal(t, workerFailed, w.state)
}

func TestWorkerTerminalStatesIgnoreLaterReports(t *testing.T) {
	w, _, _ := newTestWorker(3)
	w.setClientState(proto.CLIENT_STATE_ERROR)
	require.Equal(t, workerFailed, w.state)

	w.setClientState(proto.CLIENT_STATE_COMPLETE)
	assert.Equal(t, workerFailed, w.state)
}
