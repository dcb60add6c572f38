package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/matzehuels/texpal/internal/cli"
	texerrors "github.com/matzehuels/texpal/pkg/errors"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := run(ctx)
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, context.Canceled), texerrors.Is(err, texerrors.ErrCodeCancelled):
		os.Exit(130) // Standard shell convention for SIGINT
	case errors.Is(err, cli.ErrPartialBuild):
		fmt.Fprintln(os.Stderr, cli.FormatError(err))
		os.Exit(2)
	}
	fmt.Fprintln(os.Stderr, cli.FormatError(err))
	os.Exit(1)
}

func run(ctx context.Context) error {
	var (
		verbose bool
		logFile string
	)

	c := cli.New(os.Stderr, cli.LogInfo)
	defer c.Close()

	root := c.RootCommand()
	root.SilenceErrors = true
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file (rotated at 10 MB)")

	originalPreRun := root.PersistentPreRunE
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if verbose {
			c.SetLogLevel(cli.LogDebug)
		}
		c.SetLogFile(logFile)

		if originalPreRun != nil {
			return originalPreRun(cmd, args)
		}
		return nil
	}

	return root.ExecuteContext(ctx)
}
