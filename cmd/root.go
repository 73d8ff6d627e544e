// Package cmd wires the resysnipe command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/resy-sniper/internal/logging"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

type globalFlags struct {
	verbose bool
	quiet   bool
	logFile string
}

func NewRootCmd() *cobra.Command {
	var (
		flags  globalFlags
		closer io.Closer
	)

	root := &cobra.Command{
		Use:           "resysnipe",
		Short:         "Grab Resy reservations the moment they open",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, c, err := logging.New(logging.Options{
				Verbose: flags.verbose,
				Quiet:   flags.quiet,
				File:    flags.logFile,
				Console: consoleOverride(cmd),
			})
			if err != nil {
				return err
			}
			closer = c
			cmd.SetContext(logger.WithContext(cmd.Context()))
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if closer != nil {
				return closer.Close()
			}
			return nil
		},
	}

	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().BoolVarP(&flags.quiet, "quiet", "q", false, "only log warnings and errors")
	root.PersistentFlags().StringVar(&flags.logFile, "log-file", "", "also write JSON logs to this rotated file")
	root.MarkFlagsMutuallyExclusive("verbose", "quiet")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newSnipeCmd())
	root.AddCommand(newPingCmd())
	root.AddCommand(newKeysCmd())
	root.AddCommand(newServerCmd())
	root.AddCommand(newUserCmd())
	root.AddCommand(newJobCmd())

	return root
}

// consoleOverride sends logs to the command's error writer when a caller
// (usually a test) replaced it; nil keeps the terminal-aware default.
func consoleOverride(cmd *cobra.Command) io.Writer {
	if w := cmd.ErrOrStderr(); w != os.Stderr {
		return w
	}
	return nil
}

func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
