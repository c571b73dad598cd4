package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// frameHeaderSize is the size of the big-endian length prefix.
	frameHeaderSize = 4

	// MaxFileNameLength bounds the file name carried by Metadata.
	MaxFileNameLength = 4096

	// MaxChunkData bounds the data carried by a single FileChunk.
	MaxChunkData = 64 * 1024 * 1024

	// MaxChunkCount bounds the number of chunks a file may be split into, so
	// a receiver's bookkeeping stays small whatever chunk size the sender picks.
	MaxChunkCount = 1 << 24

	// MaxFrameSize bounds the declared payload length of a frame.
	MaxFrameSize = MaxChunkData + 64
)

var (
	// ErrConnectionClosed indicates the stream ended before a full frame was read.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrMalformed indicates the frame payload is not a known message variant.
	ErrMalformed = errors.New("malformed message")
	// ErrMessageTooLarge indicates a message cannot be encoded within MaxFrameSize.
	ErrMessageTooLarge = errors.New("message too large")
)

// Encode serializes m and prepends its 4-byte big-endian length.
func Encode(m Message) ([]byte, error) {
	payloadLen, err := payloadSize(m)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, frameHeaderSize, frameHeaderSize+payloadLen)
	binary.BigEndian.PutUint32(buf, uint32(payloadLen))
	buf = append(buf, byte(m.Kind()))

	switch msg := m.(type) {
	case RequestMetadata, *RequestMetadata, TransferComplete, *TransferComplete:
	case Metadata:
		buf = appendMetadata(buf, msg)
	case *Metadata:
		buf = appendMetadata(buf, *msg)
	case RequestChunk:
		buf = binary.BigEndian.AppendUint64(buf, msg.ChunkIndex)
	case *RequestChunk:
		buf = binary.BigEndian.AppendUint64(buf, msg.ChunkIndex)
	case FileChunk:
		buf = appendFileChunk(buf, msg)
	case *FileChunk:
		buf = appendFileChunk(buf, *msg)
	}
	return buf, nil
}

// WriteMessage encodes m and writes the whole frame with a single Write.
func WriteMessage(w io.Writer, m Message) error {
	frame, err := Encode(m)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("failed to write %s frame: %w", m.Kind(), err)
	}
	return nil
}

// ReadMessage reads exactly one frame from r and decodes it. A stream that
// ends early yields ErrConnectionClosed; an unparseable payload yields
// ErrMalformed.
func ReadMessage(r io.Reader) (Message, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, readError("frame length", err)
	}
	length := binary.BigEndian.Uint32(header[:])
	if length == 0 || length > MaxFrameSize {
		return nil, fmt.Errorf("%w: frame length %d", ErrMalformed, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, readError("frame payload", err)
	}
	return Decode(payload)
}

// Decode parses a frame payload (without its length prefix). A decoded
// FileChunk aliases payload.
func Decode(payload []byte) (Message, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	kind := Kind(payload[0])
	body := payload[1:]

	var (
		msg  Message
		rest []byte
		err  error
	)
	switch kind {
	case KindRequestMetadata:
		msg, rest = RequestMetadata{}, body
	case KindTransferComplete:
		msg, rest = TransferComplete{}, body
	case KindMetadata:
		msg, rest, err = decodeMetadata(body)
	case KindRequestChunk:
		var index uint64
		index, rest, err = takeUint64(body)
		msg = RequestChunk{ChunkIndex: index}
	case KindFileChunk:
		msg, rest, err = decodeFileChunk(body)
	default:
		return nil, fmt.Errorf("%w: unknown tag 0x%02x", ErrMalformed, byte(kind))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, kind, err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %s: %d trailing bytes", ErrMalformed, kind, len(rest))
	}
	return msg, nil
}

func payloadSize(m Message) (int, error) {
	switch msg := m.(type) {
	case RequestMetadata, *RequestMetadata, TransferComplete, *TransferComplete:
		return 1, nil
	case Metadata:
		return metadataSize(msg)
	case *Metadata:
		return metadataSize(*msg)
	case RequestChunk, *RequestChunk:
		return 1 + 8, nil
	case FileChunk:
		return fileChunkSize(msg)
	case *FileChunk:
		return fileChunkSize(*msg)
	case nil:
		return 0, fmt.Errorf("cannot encode nil message")
	default:
		return 0, fmt.Errorf("cannot encode message of type %T", m)
	}
}

func metadataSize(m Metadata) (int, error) {
	if len(m.FileName) > MaxFileNameLength {
		return 0, fmt.Errorf("%w: file name is %d bytes", ErrMessageTooLarge, len(m.FileName))
	}
	return 1 + 2 + len(m.FileName) + 8 + 8, nil
}

func fileChunkSize(m FileChunk) (int, error) {
	if len(m.Data) > MaxChunkData {
		return 0, fmt.Errorf("%w: chunk data is %d bytes", ErrMessageTooLarge, len(m.Data))
	}
	return 1 + 8 + 4 + len(m.Data), nil
}

func appendMetadata(buf []byte, m Metadata) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(m.FileName)))
	buf = append(buf, m.FileName...)
	buf = binary.BigEndian.AppendUint64(buf, m.FileSize)
	return binary.BigEndian.AppendUint64(buf, m.ChunkSize)
}

func appendFileChunk(buf []byte, m FileChunk) []byte {
	buf = binary.BigEndian.AppendUint64(buf, m.ChunkIndex)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(m.Data)))
	return append(buf, m.Data...)
}

func decodeMetadata(body []byte) (Message, []byte, error) {
	nameLen, rest, err := takeUint16(body)
	if err != nil {
		return nil, nil, err
	}
	if int(nameLen) > MaxFileNameLength {
		return nil, nil, fmt.Errorf("file name length %d exceeds %d", nameLen, MaxFileNameLength)
	}
	if len(rest) < int(nameLen) {
		return nil, nil, fmt.Errorf("file name truncated")
	}
	name := string(rest[:nameLen])
	rest = rest[nameLen:]
	size, rest, err := takeUint64(rest)
	if err != nil {
		return nil, nil, err
	}
	chunkSize, rest, err := takeUint64(rest)
	if err != nil {
		return nil, nil, err
	}
	return Metadata{FileName: name, FileSize: size, ChunkSize: chunkSize}, rest, nil
}

func decodeFileChunk(body []byte) (Message, []byte, error) {
	index, rest, err := takeUint64(body)
	if err != nil {
		return nil, nil, err
	}
	dataLen, rest, err := takeUint32(rest)
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(rest)) < uint64(dataLen) {
		return nil, nil, fmt.Errorf("chunk data truncated: have %d, want %d", len(rest), dataLen)
	}
	data := rest[:dataLen:dataLen]
	return FileChunk{ChunkIndex: index, Data: data}, rest[dataLen:], nil
}

func takeUint16(b []byte) (uint16, []byte, error) {
	if len(b) < 2 {
		return 0, nil, io.ErrUnexpectedEOF
	}
	return binary.BigEndian.Uint16(b), b[2:], nil
}

func takeUint32(b []byte) (uint32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, io.ErrUnexpectedEOF
	}
	return binary.BigEndian.Uint32(b), b[4:], nil
}

func takeUint64(b []byte) (uint64, []byte, error) {
	if len(b) < 8 {
		return 0, nil, io.ErrUnexpectedEOF
	}
	return binary.BigEndian.Uint64(b), b[8:], nil
}

// readError maps any failure to read a complete frame to ErrConnectionClosed,
// keeping the transport error in the chain.
func readError(what string, err error) error {
	return fmt.Errorf("%w: reading %s: %w", ErrConnectionClosed, what, err)
}
