package transfer

import "errors"

var (
	// ErrUnexpectedMessage indicates a valid message arrived where another was required.
	ErrUnexpectedMessage = errors.New("unexpected message")
	// ErrInvalidMetadata indicates the sender described a file the receiver cannot accept.
	ErrInvalidMetadata = errors.New("invalid metadata")
	// ErrInvalidFilename indicates a file name with path components or no name at all.
	ErrInvalidFilename = errors.New("invalid filename")
	// ErrChunkLost indicates a chunk could not be obtained within the retry budget.
	ErrChunkLost = errors.New("chunk lost")
	// ErrIncomplete indicates the transfer ended with chunks never written.
	ErrIncomplete = errors.New("transfer incomplete")
	// ErrChunkOutOfRange indicates a chunk that does not fit the destination file.
	ErrChunkOutOfRange = errors.New("chunk out of range")
)
