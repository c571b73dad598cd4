package protocol

import "fmt"

// Kind identifies a message variant on the wire.
type Kind byte

// Wire tags for each message variant.
const (
	KindRequestMetadata  Kind = 0x01
	KindMetadata         Kind = 0x02
	KindRequestChunk     Kind = 0x03
	KindFileChunk        Kind = 0x04
	KindTransferComplete Kind = 0x05
)

func (k Kind) String() string {
	switch k {
	case KindRequestMetadata:
		return "request_metadata"
	case KindMetadata:
		return "metadata"
	case KindRequestChunk:
		return "request_chunk"
	case KindFileChunk:
		return "file_chunk"
	case KindTransferComplete:
		return "transfer_complete"
	default:
		return fmt.Sprintf("kind(0x%02x)", byte(k))
	}
}

// Message is one protocol message. The concrete types below are the only
// implementations.
type Message interface {
	Kind() Kind
}

// RequestMetadata asks the sender to describe the file it is serving.
type RequestMetadata struct{}

// Metadata describes the served file. ChunkSize is chosen by the sender and
// is authoritative for the whole transfer.
type Metadata struct {
	FileName  string
	FileSize  uint64
	ChunkSize uint64
}

// RequestChunk asks for the zero-based chunk at ChunkIndex.
type RequestChunk struct {
	ChunkIndex uint64
}

// FileChunk carries the bytes of one chunk. Data is exactly ChunkSize bytes
// long except for the last chunk of the file.
type FileChunk struct {
	ChunkIndex uint64
	Data       []byte
}

// TransferComplete signals that no chunk exists at or beyond the requested index.
type TransferComplete struct{}

func (RequestMetadata) Kind() Kind  { return KindRequestMetadata }
func (Metadata) Kind() Kind         { return KindMetadata }
func (RequestChunk) Kind() Kind     { return KindRequestChunk }
func (FileChunk) Kind() Kind        { return KindFileChunk }
func (TransferComplete) Kind() Kind { return KindTransferComplete }

// ChunkCount returns ceil(FileSize / ChunkSize), or 0 when ChunkSize is zero.
func (m Metadata) ChunkCount() uint64 {
	if m.ChunkSize == 0 {
		return 0
	}
	return m.FileSize/m.ChunkSize + boolToUint64(m.FileSize%m.ChunkSize != 0)
}

func boolToUint64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
