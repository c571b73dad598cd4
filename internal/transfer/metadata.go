package transfer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sheerbytes/chunkshare/pkg/protocol"
)

// FileMetadata describes the file a sender serves. Path stays local; only
// Name and Size go on the wire.
type FileMetadata struct {
	Path string
	Name string
	Size uint64
}

// LoadFileMetadata stats path and returns its metadata. The file must exist,
// be a regular file and be readable.
func LoadFileMetadata(path string) (FileMetadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileMetadata{}, fmt.Errorf("failed to stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return FileMetadata{}, fmt.Errorf("%s is not a regular file", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return FileMetadata{}, fmt.Errorf("failed to open file: %w", err)
	}
	_ = f.Close()

	name := filepath.Base(path)
	if err := validateFilename(name); err != nil {
		return FileMetadata{}, err
	}
	return FileMetadata{
		Path: path,
		Name: name,
		Size: uint64(info.Size()),
	}, nil
}

// validateMetadata checks a Metadata response before anything touches disk.
func validateMetadata(m protocol.Metadata) error {
	if m.ChunkSize == 0 {
		return fmt.Errorf("%w: chunk size is zero", ErrInvalidMetadata)
	}
	if m.ChunkSize > protocol.MaxChunkData {
		return fmt.Errorf("%w: chunk size %d exceeds %d", ErrInvalidMetadata, m.ChunkSize, protocol.MaxChunkData)
	}
	if n := ChunkCount(m.FileSize, m.ChunkSize); n > protocol.MaxChunkCount {
		return fmt.Errorf("%w: %d chunks exceeds %d", ErrInvalidMetadata, n, protocol.MaxChunkCount)
	}
	if err := validateFilename(m.FileName); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMetadata, err)
	}
	return nil
}

// validateFilename ensures the filename is a bare, non-empty base name.
func validateFilename(filename string) error {
	if filename == "" || filename == "." || filename == ".." {
		return ErrInvalidFilename
	}
	if strings.ContainsAny(filename, `/\`) || strings.ContainsRune(filename, 0) {
		return ErrInvalidFilename
	}
	if len(filename) > protocol.MaxFileNameLength {
		return ErrInvalidFilename
	}
	return nil
}
