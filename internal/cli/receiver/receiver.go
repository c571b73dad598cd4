package receiver

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sheerbytes/chunkshare/internal/cli"
	"github.com/sheerbytes/chunkshare/internal/config"
	"github.com/sheerbytes/chunkshare/internal/logging"
	"github.com/sheerbytes/chunkshare/internal/progress"
	"github.com/sheerbytes/chunkshare/internal/termio"
	"github.com/sheerbytes/chunkshare/internal/transfer"
	"github.com/sheerbytes/chunkshare/internal/transport"
)

// NewCommand returns the `receive` subcommand.
func NewCommand() *cobra.Command {
	cfg, envErr := config.DefaultReceiverConfig()
	cmd := &cobra.Command{
		Use:   "receive <host:port>",
		Short: "Download the file hosted at an address",
		Example: `  chunkshare receive 192.168.1.20:40123
  chunkshare receive 192.168.1.20:40123 -o ./downloads --workers 8`,
		Args: cli.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if envErr != nil {
				return &cli.UsageError{Err: envErr}
			}
			cfg.Address = args[0]
			if err := cfg.Validate(); err != nil {
				return &cli.UsageError{Err: err}
			}
			return Run(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.SetFlagErrorFunc(cli.FlagError)
	config.BindReceiverFlags(cmd.Flags(), &cfg)
	return cmd
}

// Run downloads the file served at cfg.Address into cfg.OutDir and prints a
// summary line to stdout.
func Run(ctx context.Context, cfg config.ReceiverConfig, stdout, stderr io.Writer) error {
	logger := logging.NewWithWriter(stderr, "chunkshare-receive", cfg.LogLevel)

	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	tr, err := transport.New(cfg.Transport, transport.Options{ChunkSize: cfg.Transfer.ChunkSize, Logger: logger})
	if err != nil {
		return err
	}

	bar := progress.NewChunkBar(stderr, cfg.NoProgress || !termio.IsTerminal(stderr))
	r := transfer.NewReceiver(cfg.Address, tr, cfg.Transfer, transfer.ReceiverOptions{
		OutDir:   cfg.OutDir,
		Logger:   logger,
		Observer: bar,
	})
	res, err := r.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, progress.FormatSummary(res.Path, bar.Stats()))
	logger.Debug("transfer result",
		"file", res.FileName,
		"strategy", res.Strategy,
		"chunks", res.ChunkCount,
		"chunk_size", res.ChunkSize,
		"elapsed", res.Elapsed)
	return nil
}
