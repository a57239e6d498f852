package chunkio

import (
	"github.com/pkg/errors"

	"github.com/voxeldelve/mapsync/engine/common"
)

var (
	// ErrIncompleteTransfer is returned when reassembling a buffer with missing chunks
	ErrIncompleteTransfer = errors.New("incomplete transfer: missing chunks")
	// ErrSizeMismatch is returned when the reassembled size differs from the announced total size
	ErrSizeMismatch = errors.New("reassembled size does not match announced total size")
)

// TotalChunks returns the number of chunks a blob of blobLen bytes splits
// into with the given chunk size
func TotalChunks(blobLen int, chunkSize int) int {
	if blobLen == 0 {
		return 0
	}
	return (blobLen + chunkSize - 1) / chunkSize
}

// ChunkBlob splits a blob into chunks of chunkSize bytes in byte offset
// order. The last chunk may be shorter. The returned chunks alias the blob,
// no bytes are copied.
func ChunkBlob(blob []byte, chunkSize int) [][]byte {
	if chunkSize <= 0 {
		panic(errors.Errorf("ChunkBlob: invalid chunk size %d", chunkSize))
	}

	chunks := make([][]byte, 0, TotalChunks(len(blob), chunkSize))
	for offset := 0; offset < len(blob); offset += chunkSize {
		end := offset + chunkSize
		if end > len(blob) {
			end = len(blob)
		}
		chunks = append(chunks, blob[offset:end])
	}
	return chunks
}

// ChunkMeta identifies one chunk of one map blob on the wire
type ChunkMeta struct {
	MapID       common.MapID
	ChunkIndex  uint32
	TotalChunks uint32
}
