package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sheerbytes/chunkshare/internal/cli"
	"github.com/sheerbytes/chunkshare/internal/cli/receiver"
	"github.com/sheerbytes/chunkshare/internal/cli/sender"
	"github.com/sheerbytes/chunkshare/internal/termio"
)

const (
	version = "v0.1.0"
	banner  = `
 ┌─┐┬ ┬┬ ┬┌┐┌┬┌─┌─┐┬ ┬┌─┐┬─┐┌─┐
 │  ├─┤│ │││││├┴┐└─┐├─┤├─┤├┬┘├┤
 └─┘┴ ┴└─┘┘└┘┴ ┴└─┘┴ ┴┴ ┴┴└─└─┘
chunkshare ` + version + `
One file, many chunks, straight across the LAN.
`
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], termio.Stdout(), termio.Stderr())
	stop()
	os.Exit(code)
}

// run executes the command line and returns the process exit code: 0 on
// success, 2 for usage errors, 1 for everything else.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	if cli.IsUsage(err) || strings.HasPrefix(err.Error(), "unknown command") {
		fmt.Fprintln(stderr, "run 'chunkshare --help' for usage")
		return 2
	}
	return 1
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:     "chunkshare",
		Short:   "Share one file over the local network in chunks",
		Long:    strings.TrimPrefix(banner, "\n"),
		Version: version,
		Example: `  chunkshare send ./movie.mkv
  chunkshare receive 192.168.1.20:40123 --out ./downloads`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(cli.FlagError)
	root.CompletionOptions.DisableDefaultCmd = true
	root.AddCommand(sender.NewCommand(), receiver.NewCommand())
	return root
}
