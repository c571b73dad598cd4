package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

// Environment variable names. Flags take precedence over these.
const (
	EnvListen              = "CHUNKSHARE_LISTEN"
	EnvTransport           = "CHUNKSHARE_TRANSPORT"
	EnvLogLevel            = "CHUNKSHARE_LOG_LEVEL"
	EnvOutDir              = "CHUNKSHARE_OUT_DIR"
	EnvChunkSize           = "CHUNKSHARE_CHUNK_SIZE"
	EnvWorkers             = "CHUNKSHARE_WORKERS"
	EnvConcurrentThreshold = "CHUNKSHARE_CONCURRENT_THRESHOLD"
	EnvMaxRetries          = "CHUNKSHARE_MAX_RETRIES"
	EnvMaxSessions         = "CHUNKSHARE_MAX_SESSIONS"
)

const (
	DefaultChunkSize           = 1024 * 1024
	DefaultWorkers             = 5
	DefaultConcurrentThreshold = 100 * 1024 * 1024
	DefaultResultBuffer        = 100
	DefaultMaxRetries          = 3
	DefaultMaxSessions         = 64

	// MinChunkSize is the smallest chunk a sender will serve.
	MinChunkSize = 16
	// MaxChunkSize keeps a chunk within a single protocol frame.
	MaxChunkSize = 64 * 1024 * 1024
	MaxWorkers   = 64
)

// Transport names accepted by --transport.
const (
	TransportTCP  = "tcp"
	TransportQUIC = "quic"
	TransportWS   = "ws"
)

// Transfer holds the tunables shared by both ends of a transfer.
type Transfer struct {
	ChunkSize           uint64 // Sender: bytes per chunk (authoritative for the transfer)
	Workers             int    // Receiver: parallel connections in concurrent mode
	ConcurrentThreshold uint64 // Receiver: files larger than this use concurrent mode
	ResultBuffer        int    // Receiver: capacity of the worker -> collector channel
	MaxRetries          int    // Receiver: re-requests per chunk after an unexpected response
	MaxSessions         int    // Sender: concurrent session cap (0 = unbounded)
}

// DefaultTransfer returns the built-in transfer settings.
func DefaultTransfer() Transfer {
	return Transfer{
		ChunkSize:           DefaultChunkSize,
		Workers:             DefaultWorkers,
		ConcurrentThreshold: DefaultConcurrentThreshold,
		ResultBuffer:        DefaultResultBuffer,
		MaxRetries:          DefaultMaxRetries,
		MaxSessions:         DefaultMaxSessions,
	}
}

// Normalize applies defaults to zero values and clamps out-of-range values.
func (t Transfer) Normalize() Transfer {
	out := t
	if out.ChunkSize == 0 {
		out.ChunkSize = DefaultChunkSize
	}
	if out.ChunkSize < MinChunkSize {
		out.ChunkSize = MinChunkSize
	}
	if out.ChunkSize > MaxChunkSize {
		out.ChunkSize = MaxChunkSize
	}
	if out.Workers < 1 {
		out.Workers = 1
	}
	if out.Workers > MaxWorkers {
		out.Workers = MaxWorkers
	}
	if out.ResultBuffer < 1 {
		out.ResultBuffer = 1
	}
	if out.MaxRetries < 0 {
		out.MaxRetries = 0
	}
	if out.MaxSessions < 0 {
		out.MaxSessions = 0
	}
	return out
}

// SenderConfig holds configuration for `chunkshare send`.
type SenderConfig struct {
	Path      string
	Listen    string // host:port; empty means <local-ip>:0
	Transport string
	LogLevel  string
	NoTUI     bool
	Transfer  Transfer
}

// ReceiverConfig holds configuration for `chunkshare receive`.
type ReceiverConfig struct {
	Address    string
	OutDir     string
	Transport  string
	LogLevel   string
	NoProgress bool
	Transfer   Transfer
}

// DefaultSenderConfig returns sender defaults overlaid with environment values.
func DefaultSenderConfig() (SenderConfig, error) {
	cfg := SenderConfig{
		Transport: TransportTCP,
		LogLevel:  "info",
		Transfer:  DefaultTransfer(),
	}
	if v := os.Getenv(EnvListen); v != "" {
		cfg.Listen = v
	}
	if err := applyCommonEnv(&cfg.Transport, &cfg.LogLevel, &cfg.Transfer); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// DefaultReceiverConfig returns receiver defaults overlaid with environment values.
func DefaultReceiverConfig() (ReceiverConfig, error) {
	cfg := ReceiverConfig{
		OutDir:    ".",
		Transport: TransportTCP,
		LogLevel:  "info",
		Transfer:  DefaultTransfer(),
	}
	if v := os.Getenv(EnvOutDir); v != "" {
		cfg.OutDir = v
	}
	if err := applyCommonEnv(&cfg.Transport, &cfg.LogLevel, &cfg.Transfer); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// BindSenderFlags registers sender flags on fs. Values already in cfg
// (defaults and environment) become the flag defaults, so parsed flags
// override them.
func BindSenderFlags(fs *pflag.FlagSet, cfg *SenderConfig) {
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "address to listen on (default <local-ip>:0)")
	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "transport: tcp, quic or ws")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.BoolVar(&cfg.NoTUI, "no-tui", cfg.NoTUI, "disable the interactive dashboard")
	fs.Uint64Var(&cfg.Transfer.ChunkSize, "chunk-size", cfg.Transfer.ChunkSize, "chunk size in bytes")
	fs.IntVar(&cfg.Transfer.MaxSessions, "max-sessions", cfg.Transfer.MaxSessions, "max concurrent sessions (0 = unbounded)")
}

// BindReceiverFlags registers receiver flags on fs.
func BindReceiverFlags(fs *pflag.FlagSet, cfg *ReceiverConfig) {
	fs.StringVarP(&cfg.OutDir, "out", "o", cfg.OutDir, "directory to write the received file into")
	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "transport: tcp, quic or ws")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.BoolVar(&cfg.NoProgress, "no-progress", cfg.NoProgress, "disable the progress bar")
	fs.IntVar(&cfg.Transfer.Workers, "workers", cfg.Transfer.Workers, "parallel connections for large files")
	fs.Uint64Var(&cfg.Transfer.ConcurrentThreshold, "concurrent-threshold", cfg.Transfer.ConcurrentThreshold, "file size in bytes above which downloads run concurrently")
	fs.IntVar(&cfg.Transfer.MaxRetries, "max-retries", cfg.Transfer.MaxRetries, "re-requests per chunk after an unexpected response")
	fs.IntVar(&cfg.Transfer.ResultBuffer, "result-buffer", cfg.Transfer.ResultBuffer, "chunks buffered between workers and the writer")
}

// Validate checks the sender configuration after flags are parsed.
func (c *SenderConfig) Validate() error {
	if strings.TrimSpace(c.Path) == "" {
		return fmt.Errorf("file path is required")
	}
	if err := ValidateTransport(c.Transport); err != nil {
		return err
	}
	c.Transfer = c.Transfer.Normalize()
	return nil
}

// Validate checks the receiver configuration after flags are parsed.
func (c *ReceiverConfig) Validate() error {
	if strings.TrimSpace(c.Address) == "" {
		return fmt.Errorf("sender address is required")
	}
	if err := ValidateTransport(c.Transport); err != nil {
		return err
	}
	if c.OutDir == "" {
		c.OutDir = "."
	}
	c.Transfer = c.Transfer.Normalize()
	return nil
}

// ValidateTransport reports whether name is a supported transport.
func ValidateTransport(name string) error {
	switch name {
	case TransportTCP, TransportQUIC, TransportWS:
		return nil
	default:
		return fmt.Errorf("unknown transport %q (want tcp, quic or ws)", name)
	}
}

func applyCommonEnv(transport, logLevel *string, t *Transfer) error {
	if v := os.Getenv(EnvTransport); v != "" {
		*transport = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		*logLevel = v
	}
	if err := envUint64(EnvChunkSize, &t.ChunkSize); err != nil {
		return err
	}
	if err := envUint64(EnvConcurrentThreshold, &t.ConcurrentThreshold); err != nil {
		return err
	}
	if err := envInt(EnvWorkers, &t.Workers); err != nil {
		return err
	}
	if err := envInt(EnvMaxRetries, &t.MaxRetries); err != nil {
		return err
	}
	return envInt(EnvMaxSessions, &t.MaxSessions)
}

func envUint64(name string, dst *uint64) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	parsed, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s value %q: %w", name, v, err)
	}
	*dst = parsed
	return nil
}

func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s value %q: %w", name, v, err)
	}
	*dst = parsed
	return nil
}
