package transfer

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkWriterPreallocatesAndWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	w, err := CreateChunkWriter(path, 10, 4)
	require.NoError(t, err)
	defer w.Close()

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, int64(10), info.Size())
	require.Equal(t, uint64(3), w.ChunkCount())
	require.Equal(t, path, w.Path())

	// Out of order.
	for _, c := range []struct {
		idx  uint64
		data string
	}{{2, "89"}, {0, "0123"}, {1, "4567"}} {
		fresh, err := w.WriteChunk(c.idx, []byte(c.data))
		require.NoError(t, err)
		require.True(t, fresh)
	}
	require.NoError(t, w.Finish())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "0123456789", string(got))
}

func TestChunkWriterIdempotent(t *testing.T) {
	dir := t.TempDir()
	once := filepath.Join(dir, "once")
	twice := filepath.Join(dir, "twice")

	w1, err := CreateChunkWriter(once, 8, 4)
	require.NoError(t, err)
	_, err = w1.WriteChunk(1, []byte("abcd"))
	require.NoError(t, err)
	require.NoError(t, w1.Close())

	w2, err := CreateChunkWriter(twice, 8, 4)
	require.NoError(t, err)
	fresh, err := w2.WriteChunk(1, []byte("abcd"))
	require.NoError(t, err)
	require.True(t, fresh)
	require.True(t, w2.Has(1))
	require.False(t, w2.Has(0))
	fresh, err = w2.WriteChunk(1, []byte("abcd"))
	require.NoError(t, err)
	require.False(t, fresh)
	require.Equal(t, uint64(1), w2.Written())
	require.NoError(t, w2.Close())

	a, err := os.ReadFile(once)
	require.NoError(t, err)
	b, err := os.ReadFile(twice)
	require.NoError(t, err)
	require.True(t, bytes.Equal(a, b))
}

func TestChunkWriterRejectsBadChunks(t *testing.T) {
	w, err := CreateChunkWriter(filepath.Join(t.TempDir(), "x"), 10, 4)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.WriteChunk(3, []byte("zz"))
	require.ErrorIs(t, err, ErrChunkOutOfRange)
	_, err = w.WriteChunk(0, []byte("short"))
	require.ErrorIs(t, err, ErrChunkOutOfRange)
	_, err = w.WriteChunk(2, []byte("890"))
	require.ErrorIs(t, err, ErrChunkOutOfRange)
}

func TestChunkWriterFinishIncomplete(t *testing.T) {
	w, err := CreateChunkWriter(filepath.Join(t.TempDir(), "x"), 10, 4)
	require.NoError(t, err)
	_, err = w.WriteChunk(0, []byte("0123"))
	require.NoError(t, err)

	err = w.Finish()
	require.ErrorIs(t, err, ErrIncomplete)
	require.Contains(t, err.Error(), "2 of 3 chunks missing")
	require.NoError(t, w.Close())
}

func TestChunkWriterEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	w, err := CreateChunkWriter(path, 0, 1024)
	require.NoError(t, err)
	require.Zero(t, w.ChunkCount())
	require.NoError(t, w.Finish())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Zero(t, info.Size())
}

func TestChunkWriterRejectsTooManyChunks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "huge.bin")
	_, err := CreateChunkWriter(path, 1<<40, 1)
	require.ErrorIs(t, err, ErrChunkOutOfRange)

	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))
}
