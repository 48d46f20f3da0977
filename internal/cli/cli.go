// Package cli holds the configuration plumbing shared by the library
// commands.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"library-loans/library"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

// LoadEnv reads .env and then .env.local from the working directory. Missing
// files are skipped and variables already set in the environment win.
func LoadEnv() error {
	for _, name := range []string{".env", ".env.local"} {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

// BindConfigFlags registers the connection flags on fs, defaulting to cfg.
func BindConfigFlags(fs *pflag.FlagSet, cfg *library.Config) {
	fs.StringVar(&cfg.Server, "server", cfg.Server, "server type: local, remote or cluster")
	fs.StringVar(&cfg.Schema, "schema", cfg.Schema, "database (or SQLite file) name")
	fs.StringVar(&cfg.User, "user", cfg.User, "database user for remote and cluster servers")
	fs.StringVar(&cfg.Password, "password", cfg.Password, "database password; prompted for when empty")
	fs.StringVar(&cfg.Host, "host", cfg.Host, "host:port, comma separated for cluster")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory holding the SQLite file")
}

// NewLogger returns a text logger writing to w at the named level.
func NewLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// ResolvePassword prompts on the terminal when cfg needs a password that was
// not configured. Without a terminal the config is left unchanged.
func ResolvePassword(cfg *library.Config) error {
	if !cfg.NeedsPassword() || !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil
	}
	pw, err := readPassword(fmt.Sprintf("Password for %s: ", cfg.Redacted()))
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	cfg.Password = pw
	return nil
}

// readPassword reads a password with echo disabled.
func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// Describe turns an error from the library into a short message for people.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var storageErr *library.StorageError
	switch {
	case errors.Is(err, library.ErrInvalidArgument):
		return "invalid input: " + err.Error()
	case errors.Is(err, library.ErrEntityExists):
		return "already registered: " + err.Error()
	case errors.Is(err, library.ErrMissingEntity):
		return "not found: " + err.Error()
	case errors.Is(err, library.ErrMissingLoan):
		return "no active loan: " + err.Error()
	case errors.Is(err, library.ErrMissingReservation):
		return "no such reservation: " + err.Error()
	case errors.Is(err, library.ErrExistingLoan):
		return "a loan is in the way: " + err.Error()
	case errors.Is(err, library.ErrExistingReservation):
		return "a reservation is in the way: " + err.Error()
	case errors.Is(err, library.ErrLoanLimitExceeded):
		return "loan limit reached: " + err.Error()
	case errors.Is(err, library.ErrConnection):
		return "cannot reach the database: " + err.Error()
	case errors.Is(err, library.ErrTransaction), errors.Is(err, library.ErrInvalidSession):
		return "transaction failed, nothing was saved: " + err.Error()
	case errors.As(err, &storageErr):
		return "storage failure: " + err.Error()
	}
	return err.Error()
}
