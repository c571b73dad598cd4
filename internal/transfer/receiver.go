package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sheerbytes/chunkshare/internal/config"
	"github.com/sheerbytes/chunkshare/internal/logging"
	"github.com/sheerbytes/chunkshare/internal/transport"
	"github.com/sheerbytes/chunkshare/pkg/protocol"
)

// Strategy names the download path a transfer took.
type Strategy string

const (
	StrategySequential Strategy = "sequential"
	StrategyConcurrent Strategy = "concurrent"
)

// Observer receives progress callbacks from a Receiver. ChunkWritten is
// called from the goroutine that owns the destination file, once per
// distinct chunk.
type Observer interface {
	TransferStarted(name string, chunks, bytes uint64)
	ChunkWritten(index uint64, n int)
	TransferFinished(err error)
}

type noopObserver struct{}

func (noopObserver) TransferStarted(string, uint64, uint64) {}
func (noopObserver) ChunkWritten(uint64, int)               {}
func (noopObserver) TransferFinished(error)                 {}

// ReceiverOptions holds the optional parts of a Receiver.
type ReceiverOptions struct {
	OutDir   string // defaults to the current directory
	Logger   *slog.Logger
	Observer Observer
}

// Result summarises a finished transfer.
type Result struct {
	FileName   string
	Path       string
	FileSize   uint64
	ChunkSize  uint64
	ChunkCount uint64
	Strategy   Strategy
	Elapsed    time.Duration
}

// Receiver downloads the file served at one address.
type Receiver struct {
	addr     string
	dialer   transport.Dialer
	cfg      config.Transfer
	outDir   string
	logger   *slog.Logger
	observer Observer
}

// NewReceiver returns a receiver that dials addr with dialer.
func NewReceiver(addr string, dialer transport.Dialer, cfg config.Transfer, opts ReceiverOptions) *Receiver {
	outDir := opts.OutDir
	if outDir == "" {
		outDir = "."
	}
	observer := opts.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	return &Receiver{
		addr:     addr,
		dialer:   dialer,
		cfg:      cfg.Normalize(),
		outDir:   outDir,
		logger:   logging.OrDiscard(opts.Logger),
		observer: observer,
	}
}

// Run fetches the metadata, picks a strategy by file size and downloads the
// file into the output directory. The destination is preallocated before
// the first chunk is requested.
func (r *Receiver) Run(ctx context.Context) (res Result, err error) {
	start := time.Now()
	logger := r.logger.With("transfer", uuid.NewString(), "addr", r.addr)
	defer func() {
		if err != nil && ctx.Err() != nil {
			err = fmt.Errorf("transfer cancelled: %w", errors.Join(ctx.Err(), err))
		}
		r.observer.TransferFinished(err)
	}()

	conn, err := dialConn(ctx, r.dialer, r.addr)
	if err != nil {
		return Result{}, err
	}
	defer conn.Close()

	meta, err := requestMetadata(conn)
	if err != nil {
		return Result{}, err
	}
	if err := validateMetadata(meta); err != nil {
		return Result{}, err
	}

	dest := filepath.Join(r.outDir, meta.FileName)
	w, err := CreateChunkWriter(dest, meta.FileSize, meta.ChunkSize)
	if err != nil {
		return Result{}, err
	}
	defer w.Close()

	res = Result{
		FileName:   meta.FileName,
		Path:       w.Path(),
		FileSize:   meta.FileSize,
		ChunkSize:  meta.ChunkSize,
		ChunkCount: w.ChunkCount(),
		Strategy:   StrategySequential,
	}
	if meta.FileSize > r.cfg.ConcurrentThreshold {
		res.Strategy = StrategyConcurrent
	}
	logger = logger.With("file", meta.FileName, "strategy", res.Strategy)
	logger.Info("starting transfer",
		"size", meta.FileSize,
		"chunk_size", meta.ChunkSize,
		"chunks", res.ChunkCount,
		"dest", w.Path())
	r.observer.TransferStarted(meta.FileName, res.ChunkCount, meta.FileSize)

	if res.Strategy == StrategyConcurrent {
		_ = conn.Close()
		err = r.downloadConcurrent(ctx, meta, w, logger)
	} else {
		err = r.downloadSequential(conn, meta, w, logger)
	}
	if err == nil {
		err = w.Finish()
	}
	res.Elapsed = time.Since(start)
	if err != nil {
		return res, err
	}

	logger.Info("transfer complete", "elapsed", res.Elapsed)
	return res, nil
}

// requestMetadata performs the opening handshake on conn.
func requestMetadata(conn *msgConn) (protocol.Metadata, error) {
	if err := conn.Send(protocol.RequestMetadata{}); err != nil {
		return protocol.Metadata{}, fmt.Errorf("failed to request metadata: %w", err)
	}
	msg, err := conn.Recv()
	if err != nil {
		return protocol.Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}
	meta, ok := msg.(protocol.Metadata)
	if !ok {
		return protocol.Metadata{}, fmt.Errorf("%w: expected metadata, got %s", ErrUnexpectedMessage, msg.Kind())
	}
	return meta, nil
}

// fetchChunk requests chunk index and waits for it. A response that is not
// the requested chunk with the expected length is logged and the request is
// re-issued, up to maxRetries times. complete reports that the sender
// answered TransferComplete.
func fetchChunk(conn *msgConn, index uint64, meta protocol.Metadata, maxRetries int, logger *slog.Logger) (data []byte, complete bool, err error) {
	want := ChunkLen(index, meta.FileSize, meta.ChunkSize)
	for attempt := 1; ; attempt++ {
		if err := conn.Send(protocol.RequestChunk{ChunkIndex: index}); err != nil {
			return nil, false, fmt.Errorf("failed to request chunk %d: %w", index, err)
		}
		msg, err := conn.Recv()
		if err != nil {
			return nil, false, fmt.Errorf("failed to read chunk %d: %w", index, err)
		}

		switch m := msg.(type) {
		case protocol.FileChunk:
			if m.ChunkIndex == index && uint64(len(m.Data)) == want {
				return m.Data, false, nil
			}
			logger.Warn("mismatched chunk response",
				"requested", index,
				"received", m.ChunkIndex,
				"len", len(m.Data),
				"expected_len", want,
				"attempt", attempt)
		case protocol.TransferComplete:
			return nil, true, nil
		default:
			logger.Warn("unexpected message", "kind", msg.Kind(), "chunk", index, "attempt", attempt)
		}

		if attempt > maxRetries {
			return nil, false, fmt.Errorf("%w: chunk %d after %d attempts", ErrChunkLost, index, attempt)
		}
	}
}

// downloadSequential requests every chunk in order over the handshake
// connection. An early TransferComplete stops the loop; Finish reports
// whatever is missing.
func (r *Receiver) downloadSequential(conn *msgConn, meta protocol.Metadata, w *ChunkWriter, logger *slog.Logger) error {
	count := w.ChunkCount()
	for i := uint64(0); i < count; i++ {
		data, complete, err := fetchChunk(conn, i, meta, r.cfg.MaxRetries, logger)
		if err != nil {
			return err
		}
		if complete {
			logger.Info("sender reported transfer complete", "chunk", i, "chunks", count)
			return nil
		}
		if _, err := w.WriteChunk(i, data); err != nil {
			return err
		}
		r.observer.ChunkWritten(i, len(data))
	}
	return nil
}

type chunkResult struct {
	index uint64
	data  []byte
}

// downloadConcurrent fans chunk requests out over cfg.Workers connections
// and funnels the responses to a single collector that owns w.
func (r *Receiver) downloadConcurrent(ctx context.Context, meta protocol.Metadata, w *ChunkWriter, logger *slog.Logger) error {
	count := w.ChunkCount()
	queue := newWorkQueue(Partition(count, r.cfg.Workers))
	results := make(chan chunkResult, r.cfg.ResultBuffer)

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopQueue := context.AfterFunc(workCtx, queue.Close)
	defer stopQueue()

	var g errgroup.Group
	for id := 0; id < r.cfg.Workers; id++ {
		g.Go(func() error {
			return r.runWorker(workCtx, id, meta, queue, results, logger.With("worker", id))
		})
	}
	workersDone := make(chan error, 1)
	go func() {
		workersDone <- g.Wait()
		close(results)
	}()

	collectErr := r.collect(w, results, count)
	if collectErr != nil {
		cancel()
	}
	for range results {
	}
	workerErr := <-workersDone

	if collectErr != nil {
		return collectErr
	}
	if w.Written() < count && workerErr != nil {
		return fmt.Errorf("%d of %d chunks received: %w", w.Written(), count, workerErr)
	}
	if workerErr != nil {
		logger.Warn("worker failed, its chunks were fetched by others", "error", workerErr)
	}
	return nil
}

// collect writes results until count distinct chunks are on disk or every
// worker has exited.
func (r *Receiver) collect(w *ChunkWriter, results <-chan chunkResult, count uint64) error {
	for w.Written() < count {
		res, ok := <-results
		if !ok {
			return nil
		}
		if w.Has(res.index) {
			continue
		}
		fresh, err := w.WriteChunk(res.index, res.data)
		if err != nil {
			return err
		}
		if fresh {
			r.observer.ChunkWritten(res.index, len(res.data))
		}
	}
	return nil
}

// runWorker opens its own session and fetches indices from queue until it
// runs dry. On failure the in-flight index goes back to the queue.
func (r *Receiver) runWorker(ctx context.Context, id int, meta protocol.Metadata, queue *workQueue, results chan<- chunkResult, logger *slog.Logger) error {
	conn, err := dialConn(ctx, r.dialer, r.addr)
	if err != nil {
		logger.Warn("worker failed to connect", "error", err)
		return fmt.Errorf("worker %d: %w", id, err)
	}
	defer conn.Close()

	got, err := requestMetadata(conn)
	if err != nil {
		logger.Warn("worker handshake failed", "error", err)
		return fmt.Errorf("worker %d: %w", id, err)
	}
	if got != meta {
		return fmt.Errorf("worker %d: %w: sender reported %s (%d bytes), expected %s (%d bytes)",
			id, ErrInvalidMetadata, got.FileName, got.FileSize, meta.FileName, meta.FileSize)
	}

	var fetched int
	defer func() {
		logger.Debug("worker finished", "chunks", fetched)
	}()
	for {
		idx, ok := queue.Next(id)
		if !ok {
			return nil
		}
		data, complete, err := fetchChunk(conn, idx, meta, r.cfg.MaxRetries, logger)
		if err != nil {
			queue.Requeue(idx)
			logger.Warn("worker failed", "chunk", idx, "remaining", queue.Remaining(), "error", err)
			return fmt.Errorf("worker %d: %w", id, err)
		}
		if complete {
			queue.Requeue(idx)
			logger.Info("sender reported transfer complete", "chunk", idx)
			return nil
		}
		select {
		case results <- chunkResult{index: idx, data: data}:
			queue.Done(idx)
			fetched++
		case <-ctx.Done():
			queue.Requeue(idx)
			return ctx.Err()
		}
	}
}
