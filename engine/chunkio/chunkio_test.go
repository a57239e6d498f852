package chunkio

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func makeBlob(t *testing.T, size int) []byte {
	t.Helper()
	blob := make([]byte, size)
	rand.Read(blob)
	return blob
}

func TestTotalChunks(t *testing.T) {
	require.Equal(t, 0, TotalChunks(0, 8192))
	require.Equal(t, 1, TotalChunks(1, 8192))
	require.Equal(t, 1, TotalChunks(8192, 8192))
	require.Equal(t, 2, TotalChunks(8193, 8192))
	// 100000 bytes at 8192 per chunk: 13 chunks, last chunk 1696 bytes
	require.Equal(t, 13, TotalChunks(100000, 8192))
}

func TestChunkBlobSizes(t *testing.T) {
	blob := makeBlob(t, 100000)
	chunks := ChunkBlob(blob, 8192)
	require.Len(t, chunks, 13)
	for i := 0; i < 12; i++ {
		require.Len(t, chunks[i], 8192)
	}
	require.Len(t, chunks[12], 1696)
}

func TestRoundTrip(t *testing.T) {
	for _, size := range []int{0, 1, 100, 8191, 8192, 8193, 100000} {
		for _, chunkSize := range []int{1, 7, 8192, 65536} {
			blob := makeBlob(t, size)
			chunks := ChunkBlob(blob, chunkSize)
			require.Len(t, chunks, TotalChunks(size, chunkSize))

			rb := NewReassemblyBuffer("map-rt", len(chunks), int64(size))
			for i, chunk := range chunks {
				fresh, err := rb.PutChunk(i, chunk)
				require.NoError(t, err)
				require.True(t, fresh)
			}
			require.True(t, rb.IsComplete())

			out, err := rb.Reassemble()
			require.NoError(t, err)
			require.True(t, bytes.Equal(blob, out), "round trip mismatch for size=%d chunkSize=%d", size, chunkSize)
		}
	}
}

func TestRoundTripOutOfOrder(t *testing.T) {
	blob := makeBlob(t, 100000)
	chunks := ChunkBlob(blob, 8192)

	rb := NewReassemblyBuffer("map-ooo", len(chunks), int64(len(blob)))
	order := rand.Perm(len(chunks))
	for _, i := range order {
		_, err := rb.PutChunk(i, chunks[i])
		require.NoError(t, err)
	}

	out, err := rb.Reassemble()
	require.NoError(t, err)
	require.True(t, bytes.Equal(blob, out))
}

func TestDuplicateChunkIsNoop(t *testing.T) {
	blob := makeBlob(t, 20000)
	chunks := ChunkBlob(blob, 8192)
	rb := NewReassemblyBuffer("map-dup", len(chunks), int64(len(blob)))

	fresh, err := rb.PutChunk(1, chunks[1])
	require.NoError(t, err)
	require.True(t, fresh)
	require.Equal(t, 1, rb.ChunksReceived())

	// same index again with different bytes: ignored, count unchanged
	garbage := make([]byte, len(chunks[1]))
	fresh, err = rb.PutChunk(1, garbage)
	require.NoError(t, err)
	require.False(t, fresh)
	require.Equal(t, 1, rb.ChunksReceived())

	fresh, err = rb.PutChunk(0, chunks[0])
	require.NoError(t, err)
	require.True(t, fresh)
	fresh, err = rb.PutChunk(2, chunks[2])
	require.NoError(t, err)
	require.True(t, fresh)

	out, err := rb.Reassemble()
	require.NoError(t, err)
	require.True(t, bytes.Equal(blob, out), "duplicate must not overwrite first-arrived chunk")
}

func TestCompletionExactness(t *testing.T) {
	blob := makeBlob(t, 30000)
	chunks := ChunkBlob(blob, 8192)
	rb := NewReassemblyBuffer("map-cmp", len(chunks), int64(len(blob)))

	for i := range chunks {
		require.False(t, rb.IsComplete())
		_, err := rb.PutChunk(i, chunks[i])
		require.NoError(t, err)
	}
	require.True(t, rb.IsComplete())
}

func TestReassembleIncomplete(t *testing.T) {
	rb := NewReassemblyBuffer("map-inc", 3, 1000)
	_, err := rb.PutChunk(0, make([]byte, 500))
	require.NoError(t, err)

	_, err = rb.Reassemble()
	require.Error(t, err)
	require.Equal(t, ErrIncompleteTransfer, errors.Cause(err))
}

func TestReassembleSizeMismatch(t *testing.T) {
	rb := NewReassemblyBuffer("map-size", 2, 1000)
	_, err := rb.PutChunk(0, make([]byte, 100))
	require.NoError(t, err)
	_, err = rb.PutChunk(1, make([]byte, 100))
	require.NoError(t, err)

	_, err = rb.Reassemble()
	require.Error(t, err)
	require.Equal(t, ErrSizeMismatch, errors.Cause(err))
}

func TestPutChunkOutOfRange(t *testing.T) {
	rb := NewReassemblyBuffer("map-range", 2, 100)
	_, err := rb.PutChunk(2, nil)
	require.Error(t, err)
	_, err = rb.PutChunk(-1, nil)
	require.Error(t, err)
}
