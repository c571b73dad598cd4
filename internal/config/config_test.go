package config

import (
	"os"
	"testing"

	"github.com/spf13/pflag"
)

func TestDefaultTransfer(t *testing.T) {
	d := DefaultTransfer()
	if d.ChunkSize != 1024*1024 {
		t.Errorf("expected ChunkSize 1 MiB, got %d", d.ChunkSize)
	}
	if d.Workers != 5 {
		t.Errorf("expected Workers 5, got %d", d.Workers)
	}
	if d.ConcurrentThreshold != 100*1024*1024 {
		t.Errorf("expected ConcurrentThreshold 100 MiB, got %d", d.ConcurrentThreshold)
	}
	if d.ResultBuffer != 100 {
		t.Errorf("expected ResultBuffer 100, got %d", d.ResultBuffer)
	}
}

func TestTransferNormalize(t *testing.T) {
	got := Transfer{
		ChunkSize:    MaxChunkSize + 1,
		Workers:      0,
		ResultBuffer: -3,
		MaxRetries:   -1,
		MaxSessions:  -5,
	}.Normalize()

	if got.ChunkSize != MaxChunkSize {
		t.Errorf("expected ChunkSize clamped to %d, got %d", MaxChunkSize, got.ChunkSize)
	}
	if got.Workers != 1 {
		t.Errorf("expected Workers 1, got %d", got.Workers)
	}
	if got.ResultBuffer != 1 {
		t.Errorf("expected ResultBuffer 1, got %d", got.ResultBuffer)
	}
	if got.MaxRetries != 0 || got.MaxSessions != 0 {
		t.Errorf("expected negative retries/sessions to clamp to 0, got %d/%d", got.MaxRetries, got.MaxSessions)
	}

	if n := (Transfer{}).Normalize().ChunkSize; n != DefaultChunkSize {
		t.Errorf("expected zero ChunkSize to default, got %d", n)
	}
	if n := (Transfer{ChunkSize: 1}).Normalize().ChunkSize; n != MinChunkSize {
		t.Errorf("expected ChunkSize raised to %d, got %d", MinChunkSize, n)
	}
	if n := (Transfer{Workers: 1000}).Normalize().Workers; n != MaxWorkers {
		t.Errorf("expected Workers clamped to %d, got %d", MaxWorkers, n)
	}
}

func TestSenderConfig_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := DefaultSenderConfig()
	if err != nil {
		t.Fatalf("DefaultSenderConfig: %v", err)
	}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindSenderFlags(fs, &cfg)
	if err := fs.Parse([]string{}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Listen != "" {
		t.Errorf("expected empty Listen, got %q", cfg.Listen)
	}
	if cfg.Transport != TransportTCP {
		t.Errorf("expected Transport tcp, got %q", cfg.Transport)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected LogLevel info, got %q", cfg.LogLevel)
	}
	if cfg.Transfer.MaxSessions != DefaultMaxSessions {
		t.Errorf("expected MaxSessions %d, got %d", DefaultMaxSessions, cfg.Transfer.MaxSessions)
	}
}

func TestSenderConfig_Flags(t *testing.T) {
	os.Clearenv()

	cfg, err := DefaultSenderConfig()
	if err != nil {
		t.Fatalf("DefaultSenderConfig: %v", err)
	}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindSenderFlags(fs, &cfg)
	args := []string{"--listen", "127.0.0.1:9000", "--transport", "quic", "--chunk-size", "4096", "--max-sessions", "2", "--no-tui"}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Listen != "127.0.0.1:9000" {
		t.Errorf("expected Listen 127.0.0.1:9000, got %q", cfg.Listen)
	}
	if cfg.Transport != TransportQUIC {
		t.Errorf("expected Transport quic, got %q", cfg.Transport)
	}
	if cfg.Transfer.ChunkSize != 4096 {
		t.Errorf("expected ChunkSize 4096, got %d", cfg.Transfer.ChunkSize)
	}
	if cfg.Transfer.MaxSessions != 2 {
		t.Errorf("expected MaxSessions 2, got %d", cfg.Transfer.MaxSessions)
	}
	if !cfg.NoTUI {
		t.Errorf("expected NoTUI to be set")
	}
}

func TestReceiverConfig_EnvFallback(t *testing.T) {
	os.Clearenv()

	t.Setenv(EnvOutDir, "/tmp/downloads")
	t.Setenv(EnvWorkers, "8")
	t.Setenv(EnvConcurrentThreshold, "2048")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := DefaultReceiverConfig()
	if err != nil {
		t.Fatalf("DefaultReceiverConfig: %v", err)
	}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindReceiverFlags(fs, &cfg)
	if err := fs.Parse([]string{}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.OutDir != "/tmp/downloads" {
		t.Errorf("expected OutDir /tmp/downloads, got %q", cfg.OutDir)
	}
	if cfg.Transfer.Workers != 8 {
		t.Errorf("expected Workers 8, got %d", cfg.Transfer.Workers)
	}
	if cfg.Transfer.ConcurrentThreshold != 2048 {
		t.Errorf("expected ConcurrentThreshold 2048, got %d", cfg.Transfer.ConcurrentThreshold)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("expected LogLevel warn, got %q", cfg.LogLevel)
	}
}

func TestReceiverConfig_FlagsOverrideEnv(t *testing.T) {
	os.Clearenv()

	t.Setenv(EnvWorkers, "8")
	t.Setenv(EnvTransport, "ws")

	cfg, err := DefaultReceiverConfig()
	if err != nil {
		t.Fatalf("DefaultReceiverConfig: %v", err)
	}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindReceiverFlags(fs, &cfg)
	if err := fs.Parse([]string{"--workers", "3", "--transport", "tcp", "-o", "out"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Transfer.Workers != 3 {
		t.Errorf("expected Workers 3 (from flag), got %d", cfg.Transfer.Workers)
	}
	if cfg.Transport != TransportTCP {
		t.Errorf("expected Transport tcp (from flag), got %q", cfg.Transport)
	}
	if cfg.OutDir != "out" {
		t.Errorf("expected OutDir out, got %q", cfg.OutDir)
	}
}

func TestConfig_InvalidEnv(t *testing.T) {
	os.Clearenv()

	t.Setenv(EnvChunkSize, "lots")
	if _, err := DefaultSenderConfig(); err == nil {
		t.Fatalf("expected error for invalid %s", EnvChunkSize)
	}
}

func TestValidate(t *testing.T) {
	s := SenderConfig{Transport: TransportTCP}
	if err := s.Validate(); err == nil {
		t.Errorf("expected error for missing path")
	}
	s.Path = "file.bin"
	s.Transport = "carrier-pigeon"
	if err := s.Validate(); err == nil {
		t.Errorf("expected error for unknown transport")
	}
	s.Transport = TransportWS
	if err := s.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if s.Transfer.ChunkSize != DefaultChunkSize {
		t.Errorf("expected Validate to normalize ChunkSize, got %d", s.Transfer.ChunkSize)
	}

	r := ReceiverConfig{Transport: TransportTCP}
	if err := r.Validate(); err == nil {
		t.Errorf("expected error for missing address")
	}
	r.Address = "10.0.0.2:4000"
	if err := r.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if r.OutDir != "." {
		t.Errorf("expected OutDir to default to '.', got %q", r.OutDir)
	}
}
