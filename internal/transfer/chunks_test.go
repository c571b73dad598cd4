package transfer

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkCount(t *testing.T) {
	cases := []struct {
		size, chunk, want uint64
	}{
		{0, 1024, 0},
		{1, 1024, 1},
		{10, 1024, 1},
		{1024, 1024, 1},
		{1025, 1024, 2},
		{3 * 1024, 1024, 3},
		{100, 0, 0},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ChunkCount(tc.size, tc.chunk), "size=%d chunk=%d", tc.size, tc.chunk)
	}
}

func TestChunkLenLaw(t *testing.T) {
	for _, size := range []uint64{1, 7, 1023, 1024, 1025, 5000, 64 * 1024} {
		for _, chunk := range []uint64{1, 3, 512, 1024, 4096} {
			count := ChunkCount(size, chunk)
			var total uint64
			for i := uint64(0); i < count; i++ {
				n := ChunkLen(i, size, chunk)
				if i < count-1 {
					require.Equal(t, chunk, n, "size=%d chunk=%d index=%d", size, chunk, i)
				} else {
					require.Equal(t, size-(count-1)*chunk, n)
					require.True(t, n > 0 && n <= chunk)
				}
				total += n
			}
			require.Equal(t, size, total)
			require.Zero(t, ChunkLen(count, size, chunk))
			require.Zero(t, ChunkLen(count+1000, size, chunk))
		}
	}
}

func TestChunksReconstructFile(t *testing.T) {
	src := make([]byte, 10_000)
	_, err := rand.Read(src)
	require.NoError(t, err)

	const chunk = 768
	var out []byte
	for i := uint64(0); i < ChunkCount(uint64(len(src)), chunk); i++ {
		off := i * chunk
		out = append(out, src[off:off+ChunkLen(i, uint64(len(src)), chunk)]...)
	}
	require.True(t, bytes.Equal(src, out))
}

func TestPartitionCompleteness(t *testing.T) {
	for workers := 1; workers <= 12; workers++ {
		for _, count := range []uint64{0, 1, 2, 5, 11, 12, 13, 100, 101, 1000} {
			parts := Partition(count, workers)
			require.Len(t, parts, workers)

			var next uint64
			minLen, maxLen := parts[0].Len(), parts[0].Len()
			for _, p := range parts {
				require.Equal(t, next, p.Start, "workers=%d count=%d: gap or overlap", workers, count)
				next = p.End
				minLen = min(minLen, p.Len())
				maxLen = max(maxLen, p.Len())
			}
			require.Equal(t, count, next, "workers=%d count=%d: ranges do not cover", workers, count)
			require.LessOrEqual(t, maxLen-minLen, uint64(1))
		}
	}
}

func TestPartitionInvalidWorkers(t *testing.T) {
	parts := Partition(10, 0)
	require.Equal(t, []ChunkRange{{Start: 0, End: 10}}, parts)
}
