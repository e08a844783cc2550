// Command tms runs moving-block simulations from scenario files.
//
//	tms run scenario.yaml --trace out.msgpack.zst --db telemetry.sqlite
//	tms run - < input.json
//	tms validate scenario.yaml
//	tms clusters scenario.yaml
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cxd309/movingblock/internal/log"
)

// Version is set via ldflags.
var Version = "dev"

var (
	logLevel string
	logDir   string
	lg       *log.Logger
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		if lg != nil {
			lg.Error("command failed", "err", err)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "tms",
		Short:         "Moving-block railway simulator",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			lg, err = log.New(logLevel, logDir)
			return err
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	root.PersistentFlags().StringVar(&logDir, "log-dir", "", "write rotated logs to this directory instead of stderr")

	root.AddCommand(newRunCommand())
	root.AddCommand(newValidateCommand())
	root.AddCommand(newClustersCommand())
	return root
}
