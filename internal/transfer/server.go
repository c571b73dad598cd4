package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/sheerbytes/chunkshare/internal/bufpool"
	"github.com/sheerbytes/chunkshare/internal/config"
	"github.com/sheerbytes/chunkshare/internal/logging"
	"github.com/sheerbytes/chunkshare/internal/transport"
	"github.com/sheerbytes/chunkshare/pkg/protocol"
)

// ServerStats is a point-in-time snapshot of sender activity.
type ServerStats struct {
	ActiveSessions int64
	TotalSessions  uint64
	ChunksServed   uint64
	BytesServed    uint64
}

// Server serves one file to any number of independent sessions. Sessions
// share only the read-only metadata and the counters below.
type Server struct {
	meta      FileMetadata
	chunkSize uint64
	logger    *slog.Logger
	sessions  *semaphore.Weighted
	pool      *bufpool.Pool

	active atomic.Int64
	total  atomic.Uint64
	chunks atomic.Uint64
	bytes  atomic.Uint64
}

// NewServer returns a server for meta. cfg.ChunkSize fixes the chunk size for
// every session, raised when needed so the file fits in
// protocol.MaxChunkCount chunks; cfg.MaxSessions > 0 caps concurrent sessions.
func NewServer(meta FileMetadata, cfg config.Transfer, logger *slog.Logger) *Server {
	cfg = cfg.Normalize()
	chunkSize := fitChunkSize(meta.Size, cfg.ChunkSize)
	s := &Server{
		meta:      meta,
		chunkSize: chunkSize,
		logger:    logging.OrDiscard(logger),
		pool:      bufpool.ForSize(int(chunkSize)),
	}
	if chunkSize != cfg.ChunkSize {
		s.logger.Warn("chunk size raised to bound chunk count",
			"requested", cfg.ChunkSize, "chunk_size", chunkSize, "file_size", meta.Size)
	}
	if cfg.MaxSessions > 0 {
		s.sessions = semaphore.NewWeighted(int64(cfg.MaxSessions))
	}
	return s
}

// fitChunkSize returns chunkSize, or the smallest larger size that splits
// fileSize into at most protocol.MaxChunkCount chunks, capped at
// protocol.MaxChunkData.
func fitChunkSize(fileSize, chunkSize uint64) uint64 {
	if ChunkCount(fileSize, chunkSize) <= protocol.MaxChunkCount {
		return chunkSize
	}
	fitted := fileSize / protocol.MaxChunkCount
	if fileSize%protocol.MaxChunkCount != 0 {
		fitted++
	}
	return min(fitted, protocol.MaxChunkData)
}

// Metadata returns the Metadata message every session answers with.
func (s *Server) Metadata() protocol.Metadata {
	return protocol.Metadata{
		FileName:  s.meta.Name,
		FileSize:  s.meta.Size,
		ChunkSize: s.chunkSize,
	}
}

// Stats returns current counters.
func (s *Server) Stats() ServerStats {
	return ServerStats{
		ActiveSessions: s.active.Load(),
		TotalSessions:  s.total.Load(),
		ChunksServed:   s.chunks.Load(),
		BytesServed:    s.bytes.Load(),
	}
}

// Serve accepts streams from ln until ctx is cancelled or the listener is
// closed, running one session per stream. It waits for running sessions
// before returning. A cancelled context is not an error.
func (s *Server) Serve(ctx context.Context, ln transport.Listener) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	s.logger.Info("serving file",
		"name", s.meta.Name,
		"size", s.meta.Size,
		"chunk_size", s.chunkSize,
		"chunks", ChunkCount(s.meta.Size, s.chunkSize),
		"addr", ln.Addr())

	for {
		if s.sessions != nil {
			if err := s.sessions.Acquire(ctx, 1); err != nil {
				return nil
			}
		}
		stream, err := ln.Accept(ctx)
		if err != nil {
			s.release()
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("failed to accept connection: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.release()
			s.serveSession(ctx, stream)
		}()
	}
}

func (s *Server) release() {
	if s.sessions != nil {
		s.sessions.Release(1)
	}
}

// serveSession answers requests on one stream until the peer goes away,
// sends a malformed frame, or is told the transfer is complete.
func (s *Server) serveSession(ctx context.Context, stream transport.Stream) {
	logger := s.logger.With("session", uuid.NewString(), "remote_addr", stream.RemoteAddr())
	conn := newMsgConn(ctx, stream)
	defer conn.Close()

	s.active.Add(1)
	defer s.active.Add(-1)
	s.total.Add(1)
	logger.Debug("session started")

	for {
		msg, err := conn.Recv()
		if err != nil {
			if errors.Is(err, protocol.ErrMalformed) {
				logger.Warn("malformed request, closing session", "error", err)
			} else {
				logger.Debug("session ended", "reason", err)
			}
			return
		}

		resp, buf := s.respond(msg, logger)
		if resp == nil {
			continue
		}
		err = conn.Send(resp)
		if buf != nil {
			s.pool.Put(buf)
		}
		if err != nil {
			logger.Warn("failed to send response", "kind", resp.Kind(), "error", err)
			return
		}
		if resp.Kind() == protocol.KindTransferComplete {
			logger.Debug("transfer complete sent, closing session")
			return
		}
	}
}

// respond computes the reply to msg. A nil reply means nothing is sent. The
// returned buffer, if any, backs the reply's chunk data and goes back to
// the pool once the reply is written.
func (s *Server) respond(msg protocol.Message, logger *slog.Logger) (protocol.Message, []byte) {
	switch m := msg.(type) {
	case protocol.RequestMetadata:
		return s.Metadata(), nil
	case protocol.RequestChunk:
		return s.readChunk(m.ChunkIndex, logger)
	default:
		logger.Warn("unexpected message", "kind", msg.Kind())
		return nil, nil
	}
}

// readChunk opens the file and reads chunk index. Indices at or past the
// end, and read failures, are answered with TransferComplete.
func (s *Server) readChunk(index uint64, logger *slog.Logger) (protocol.Message, []byte) {
	n := ChunkLen(index, s.meta.Size, s.chunkSize)
	if n == 0 {
		return protocol.TransferComplete{}, nil
	}
	offset := index * s.chunkSize

	f, err := os.Open(s.meta.Path)
	if err != nil {
		logger.Error("failed to open file", "chunk", index, "error", err)
		return protocol.TransferComplete{}, nil
	}
	defer f.Close()

	buf := s.pool.Get(int(n))
	if _, err := f.ReadAt(buf, int64(offset)); err != nil {
		s.pool.Put(buf)
		logger.Error("failed to read chunk", "chunk", index, "offset", offset, "error", err)
		return protocol.TransferComplete{}, nil
	}

	s.chunks.Add(1)
	s.bytes.Add(n)
	return protocol.FileChunk{ChunkIndex: index, Data: buf}, buf
}
