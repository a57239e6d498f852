package chunkio

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/pkg/errors"

	"github.com/voxeldelve/mapsync/engine/common"
)

// ReassemblyBuffer accumulates the chunks of one map blob as they arrive and
// reassembles them once complete. Chunk application is idempotent: a
// duplicate chunk at an already-filled index is ignored and does not change
// the received count.
type ReassemblyBuffer struct {
	mapID       common.MapID
	totalChunks int
	totalSize   int64

	chunks        [][]byte
	received      *bitset.BitSet
	receivedCount int
}

// NewReassemblyBuffer creates a buffer expecting totalChunks chunks summing
// to totalSize bytes
func NewReassemblyBuffer(mapID common.MapID, totalChunks int, totalSize int64) *ReassemblyBuffer {
	return &ReassemblyBuffer{
		mapID:       mapID,
		totalChunks: totalChunks,
		totalSize:   totalSize,
		chunks:      make([][]byte, totalChunks),
		received:    bitset.New(uint(totalChunks)),
	}
}

// MapID returns the map this buffer reassembles
func (rb *ReassemblyBuffer) MapID() common.MapID {
	return rb.mapID
}

// TotalChunks returns the expected number of chunks
func (rb *ReassemblyBuffer) TotalChunks() int {
	return rb.totalChunks
}

// ChunksReceived returns the number of distinct chunks received so far
func (rb *ReassemblyBuffer) ChunksReceived() int {
	return rb.receivedCount
}

// Progress returns the received fraction in [0, 1]
func (rb *ReassemblyBuffer) Progress() float64 {
	if rb.totalChunks == 0 {
		return 1
	}
	return float64(rb.receivedCount) / float64(rb.totalChunks)
}

// PutChunk stores the chunk at the given index. Returns true if the chunk
// filled a new slot, false if the slot was already filled (duplicate).
// The payload is copied.
func (rb *ReassemblyBuffer) PutChunk(index int, payload []byte) (bool, error) {
	if index < 0 || index >= rb.totalChunks {
		return false, errors.Errorf("chunk index %d out of range [0, %d)", index, rb.totalChunks)
	}

	if rb.received.Test(uint(index)) {
		return false, nil // duplicate chunk, no-op
	}

	chunk := make([]byte, len(payload))
	copy(chunk, payload)
	rb.chunks[index] = chunk
	rb.received.Set(uint(index))
	rb.receivedCount++
	return true, nil
}

// IsComplete returns true exactly when every chunk index was received
func (rb *ReassemblyBuffer) IsComplete() bool {
	return rb.receivedCount == rb.totalChunks
}

// Reassemble concatenates the chunks in index order. Fails with
// ErrIncompleteTransfer if any chunk is missing, and with ErrSizeMismatch if
// the concatenation does not add up to the announced total size.
func (rb *ReassemblyBuffer) Reassemble() ([]byte, error) {
	if !rb.IsComplete() {
		return nil, errors.Wrapf(ErrIncompleteTransfer, "map %s: %d/%d chunks", rb.mapID, rb.receivedCount, rb.totalChunks)
	}

	blob := make([]byte, 0, rb.totalSize)
	for _, chunk := range rb.chunks {
		blob = append(blob, chunk...)
	}

	if int64(len(blob)) != rb.totalSize {
		return nil, errors.Wrapf(ErrSizeMismatch, "map %s: reassembled %d bytes, announced %d", rb.mapID, len(blob), rb.totalSize)
	}
	return blob, nil
}
