package transfer

import (
	"fmt"
	"os"

	"github.com/sheerbytes/chunkshare/pkg/protocol"
)

// ChunkWriter owns a preallocated destination file and writes chunks at
// their offsets. It is not safe for concurrent use; exactly one goroutine
// (the sequential loop or the collector) owns it.
type ChunkWriter struct {
	file      *os.File
	path      string
	fileSize  uint64
	chunkSize uint64
	written   *Bitmap
	closed    bool
}

// CreateChunkWriter creates (or truncates) path and sizes it to fileSize
// before any chunk is written.
func CreateChunkWriter(path string, fileSize, chunkSize uint64) (*ChunkWriter, error) {
	if chunkSize == 0 {
		return nil, fmt.Errorf("chunk size must be positive")
	}
	if n := ChunkCount(fileSize, chunkSize); n > protocol.MaxChunkCount {
		return nil, fmt.Errorf("%w: %d chunks exceeds %d", ErrChunkOutOfRange, n, protocol.MaxChunkCount)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	if err := f.Truncate(int64(fileSize)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to preallocate output file: %w", err)
	}
	return &ChunkWriter{
		file:      f,
		path:      path,
		fileSize:  fileSize,
		chunkSize: chunkSize,
		written:   NewBitmap(ChunkCount(fileSize, chunkSize)),
	}, nil
}

// WriteChunk writes data at index*chunkSize. Writing the same chunk twice
// leaves the file unchanged; fresh reports whether index was new.
func (w *ChunkWriter) WriteChunk(index uint64, data []byte) (fresh bool, err error) {
	want := ChunkLen(index, w.fileSize, w.chunkSize)
	if want == 0 || uint64(len(data)) != want {
		return false, fmt.Errorf("%w: chunk %d with %d bytes (expected %d)", ErrChunkOutOfRange, index, len(data), want)
	}
	offset := index * w.chunkSize
	if _, err := w.file.WriteAt(data, int64(offset)); err != nil {
		return false, fmt.Errorf("failed to write chunk %d at offset %d: %w", index, offset, err)
	}
	return w.written.Set(index), nil
}

// ChunkCount returns the number of chunks the file holds.
func (w *ChunkWriter) ChunkCount() uint64 { return w.written.Len() }

// Written returns the number of distinct chunks written.
func (w *ChunkWriter) Written() uint64 { return w.written.CountSet() }

// Has reports whether chunk index has been written.
func (w *ChunkWriter) Has(index uint64) bool { return w.written.Get(index) }

// Path returns the destination path.
func (w *ChunkWriter) Path() string { return w.path }

// Finish closes the file and reports ErrIncomplete if any chunk was never written.
func (w *ChunkWriter) Finish() error {
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	if w.written.Complete() {
		return nil
	}
	missing := w.written.Len() - w.written.CountSet()
	return fmt.Errorf("%w: %d of %d chunks missing (first: %v)", ErrIncomplete, missing, w.written.Len(), w.written.Missing(8))
}

// Close closes the file without checking completeness. It is safe to call
// after Finish.
func (w *ChunkWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}
