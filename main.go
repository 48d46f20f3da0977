package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"library-loans/internal/cli"
	"library-loans/library"

	"github.com/spf13/cobra"
)

// app carries what every subcommand needs once the root command has run.
type app struct {
	cfg      library.Config
	logLevel string
	logger   *slog.Logger
	mgr      *library.LibraryManager
	out      io.Writer
}

func main() {
	if err := cli.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	a := &app{cfg: library.ConfigFromEnv(), out: os.Stdout}
	err := a.rootCommand().Execute()
	// Post-run hooks are skipped when a command fails.
	a.close()
	if err != nil {
		os.Exit(1)
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "library",
		Short:         "Manage members, books, loans and reservations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !needsStore(cmd) {
				return nil
			}
			return a.open(cmd.Context())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}
	cli.BindConfigFlags(root.PersistentFlags(), &a.cfg)
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "debug, info, warn or error")

	for _, n := range nouns {
		root.AddCommand(a.nounCommand(n))
	}
	root.AddCommand(a.shellCommand())
	return root
}

// needsStore is false for the commands cobra adds itself.
func needsStore(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return false
		}
	}
	return true
}

// open connects to the configured store.
func (a *app) open(ctx context.Context) error {
	logger, err := cli.NewLogger(os.Stderr, a.logLevel)
	if err != nil {
		return a.fail(err)
	}
	a.logger = logger

	if err := cli.ResolvePassword(&a.cfg); err != nil {
		return a.fail(err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	mgr, err := library.NewLibraryManager(ctx, a.cfg, library.WithLogger(logger))
	if err != nil {
		return a.fail(err)
	}
	a.mgr = mgr
	return nil
}

func (a *app) close() error {
	if a.mgr == nil {
		return nil
	}
	err := a.mgr.Close()
	a.mgr = nil
	return err
}

// fail prints err for people and hands it back for the exit status.
func (a *app) fail(err error) error {
	fmt.Fprintf(os.Stderr, "Error: %s\n", cli.Describe(err))
	return err
}
