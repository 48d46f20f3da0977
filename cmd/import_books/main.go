package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
		"strconv"
	"strings"

	"library-loans/internal/cli"
	"library-loans/library"

	"github.com/spf13/cobra"
)

func main() {
	if err := cli.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := newCommand(library.ConfigFromEnv(), os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", cli.Describe(err))
		os.Exit(1)
	}
}

func newCommand(cfg library.Config, out io.Writer) *cobra.Command {
	var (
		fresh    bool
		logLevel string
	)
	cmd := &cobra.Command{
		Use:   "import_books FILE",
		Short: "Acquire the books listed in a CSV file (id,title,author,date)",
		Long: `Each row acquires one book in its own transaction; rows that fail are
reported and skipped. A header row starting with "id" is ignored.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := cli.NewLogger(os.Stderr, logLevel)
			if err != nil {
				return err
			}
			if fresh {
				if err := removeLocalStore(cfg, out); err != nil {
					return err
				}
			}
			if err := cli.ResolvePassword(&cfg); err != nil {
				return err
			}

			mgr, err := library.NewLibraryManager(cmd.Context(), cfg, library.WithLogger(logger))
			if err != nil {
				return err
			}
			defer mgr.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			ok, failed, err := importBooks(cmd.Context(), mgr, f, out)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nImport complete!\n")
			fmt.Fprintf(out, "Successfully imported: %d books\n", ok)
			fmt.Fprintf(out, "Errors: %d\n", failed)
			return nil
		},
	}
	cli.BindConfigFlags(cmd.Flags(), &cfg)
	cmd.Flags().BoolVar(&fresh, "fresh", false, "delete the local SQLite store before importing")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "debug, info, warn or error")
	return cmd
}

// importBooks acquires one book per CSV row and reports each row on out.
func importBooks(ctx context.Context, mgr *library.LibraryManager, in io.Reader, out io.Writer) (ok, failed int, err error) {
	r := csv.NewReader(in)
	r.FieldsPerRecord = 4
	r.TrimLeadingSpace = true
	r.Comment = '#'

	for row := 1; ; row++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return ok, failed, nil
		}
		if errors.Is(err, csv.ErrFieldCount) {
			fmt.Fprintf(out, "Row %d: ERROR - %v\n", row, err)
			failed++
			continue
		}
		if err != nil {
			return ok, failed, err
		}
		if row == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "id") {
			continue
		}

		fmt.Fprintf(out, "Importing: %s by %s... ", rec[1], rec[2])
		var book *library.Book
		err = mgr.InTransaction(ctx, func(tx *library.Transaction) error {
			id, err := parseID(rec[0])
			if err != nil {
				return err
			}
			acquired, err := library.ParseDate(rec[3])
			if err != nil {
				return err
			}
			book, err = mgr.AcquireBook(ctx, tx, id, strings.TrimSpace(rec[1]), strings.TrimSpace(rec[2]), acquired)
			return err
		})
		if err != nil {
			fmt.Fprintf(out, "ERROR - %s\n", cli.Describe(err))
			failed++
			continue
		}
		fmt.Fprintf(out, "SUCCESS (ID: %d)\n", book.ID)
		ok++
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: id must be a number, got %q", library.ErrInvalidArgument, s)
	}
	return id, nil
}

// removeLocalStore deletes the SQLite file and its WAL companions.
func removeLocalStore(cfg library.Config, out io.Writer) error {
	if !cfg.IsLocal() {
		return fmt.Errorf("%w: --fresh only applies to the local server type", library.ErrInvalidArgument)
	}
	base := cfg.LocalFile()
	fmt.Fprintln(out, "Cleaning up existing database files...")
	for _, file := range []string{base, base + "-shm", base + "-wal"} {
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(out, "Warning: Could not remove %s: %v\n", file, err)
		}
	}
	return nil
}
