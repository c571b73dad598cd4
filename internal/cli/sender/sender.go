package sender

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/sheerbytes/chunkshare/internal/cli"
	"github.com/sheerbytes/chunkshare/internal/config"
	"github.com/sheerbytes/chunkshare/internal/logging"
	"github.com/sheerbytes/chunkshare/internal/netaddr"
	"github.com/sheerbytes/chunkshare/internal/progress"
	"github.com/sheerbytes/chunkshare/internal/transfer"
	"github.com/sheerbytes/chunkshare/internal/transport"
)

const statusInterval = 5 * time.Second

// NewCommand returns the `send` subcommand.
func NewCommand() *cobra.Command {
	cfg, envErr := config.DefaultSenderConfig()
	cmd := &cobra.Command{
		Use:   "send <file>",
		Short: "Host a file for receivers to download",
		Example: `  chunkshare send ./movie.mkv
  chunkshare send ./movie.mkv --listen 0.0.0.0:9000 --transport quic`,
		Args: cli.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if envErr != nil {
				return &cli.UsageError{Err: envErr}
			}
			cfg.Path = args[0]
			if err := cfg.Validate(); err != nil {
				return &cli.UsageError{Err: err}
			}
			return Run(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.SetFlagErrorFunc(cli.FlagError)
	config.BindSenderFlags(cmd.Flags(), &cfg)
	return cmd
}

// Run hosts cfg.Path until ctx is cancelled. The advertised address is
// printed to stdout as soon as the listener is bound.
func Run(ctx context.Context, cfg config.SenderConfig, stdout, stderr io.Writer) error {
	logger := logging.NewWithWriter(stderr, "chunkshare-send", cfg.LogLevel)

	meta, err := transfer.LoadFileMetadata(cfg.Path)
	if err != nil {
		return err
	}
	tr, err := transport.New(cfg.Transport, transport.Options{ChunkSize: cfg.Transfer.ChunkSize, Logger: logger})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	listen := cfg.Listen
	if listen == "" {
		listen = netaddr.DefaultListenAddr()
	}
	ln, err := tr.Listen(ctx, listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", listen, err)
	}
	defer ln.Close()

	addr := netaddr.Advertise(ln.Addr())
	fmt.Fprintf(stdout, "hosting %s on %s\n", meta.Name, addr)

	srv := transfer.NewServer(meta, cfg.Transfer, logger)
	if !cfg.NoTUI {
		started := time.Now()
		wire := srv.Metadata()
		chunks := wire.ChunkCount()
		view := func() progress.SenderView {
			st := srv.Stats()
			return progress.SenderView{
				Address:        addr,
				Transport:      tr.Name(),
				FileName:       meta.Name,
				FileSize:       meta.Size,
				ChunkSize:      wire.ChunkSize,
				Chunks:         chunks,
				ActiveSessions: st.ActiveSessions,
				TotalSessions:  st.TotalSessions,
				ChunksServed:   st.ChunksServed,
				BytesServed:    st.BytesServed,
				Uptime:         time.Since(started),
			}
		}
		stop := progress.RenderSender(ctx, stdout, logger, statusInterval, view, cancel)
		defer stop()
	}

	if err := srv.Serve(ctx, ln); err != nil {
		return err
	}
	st := srv.Stats()
	logger.Info("sender stopped", "sessions", st.TotalSessions, "chunks_served", st.ChunksServed, "bytes_served", st.BytesServed)
	return nil
}
