package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"library-loans/internal/cli"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func (a *app) shellCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shell [FILE]",
		Short: "Run commands from FILE, or interactively from standard input",
		Long: `Each line is one command such as "loan start 1 7", run in its own
transaction. Quote arguments containing spaces. Lines starting with # are
ignored and a failed line does not stop the run.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := io.Reader(os.Stdin)
			interactive := term.IsTerminal(int(os.Stdin.Fd()))
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return a.fail(err)
				}
				defer f.Close()
				in, interactive = f, false
			}

			failed, err := a.runShell(cmd.Context(), in, interactive)
			if err != nil {
				return a.fail(err)
			}
			if failed > 0 && !interactive {
				return a.fail(fmt.Errorf("%d command(s) failed", failed))
			}
			return nil
		},
	}
}

// runShell executes every command line read from in and returns how many
// failed.
func (a *app) runShell(ctx context.Context, in io.Reader, interactive bool) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := a.logger.With("session", uuid.NewString())
	if interactive {
		fmt.Fprintln(a.out, "Library shell. Type 'help' for commands, 'exit' to leave.")
	}

	scanner := bufio.NewScanner(in)
	lineNo, failed := 0, 0
	for {
		if interactive {
			fmt.Fprint(a.out, "\n> ")
		}
		if !scanner.Scan() {
			break
		}
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "" || strings.HasPrefix(line, "#"):
			continue
		case line == "exit" || line == "quit":
			fmt.Fprintln(a.out, "Goodbye!")
			return failed, nil
		case line == "help":
			printHelp(a.out)
			continue
		}

		if err := a.runLine(ctx, line); err != nil {
			failed++
			logger.Info("command failed", "line", lineNo, "command", line, "error", err)
			fmt.Fprintf(a.out, "Error on line %d: %s\n", lineNo, cli.Describe(err))
			continue
		}
		logger.Debug("command committed", "line", lineNo, "command", line)
	}
	return failed, scanner.Err()
}

func (a *app) runLine(ctx context.Context, line string) error {
	fields, err := splitFields(line)
	if err != nil {
		return err
	}
	op, err := lookup(fields)
	if err != nil {
		return err
	}
	return a.execute(ctx, op, fields[2:])
}

// splitFields splits a command line on spaces, honouring double quotes.
func splitFields(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = ' '
	r.TrimLeadingSpace = true
	r.LazyQuotes = true
	fields, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("cannot parse %q: %w", line, err)
	}
	return fields, nil
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "Available commands:")
	for _, n := range nouns {
		for _, op := range n.ops {
			usage := strings.TrimSpace(n.name + " " + op.verb + " " + strings.Join(op.args, " "))
			fmt.Fprintf(out, "  %-45s %s\n", usage, op.short)
		}
	}
	fmt.Fprintln(out, "  exit")
}
