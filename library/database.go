package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Logger receives SQL traces at Debug level and connection lifecycle
// messages at Info. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type settings struct {
	logger Logger
	now    func() time.Time
}

// Option configures a Database, RuleEngine or LibraryManager.
type Option func(*settings)

// WithLogger sets the logger used by the storage layer.
func WithLogger(logger Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithClock replaces time.Now for loan and reservation dates.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

func newSettings(opts []Option) settings {
	s := settings{now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = nopLogger{}
	}
	return s
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Database owns the connection pool. Work happens on Transactions obtained
// from Begin, each pinned to one pooled connection.
type Database struct {
	db      *sqlx.DB
	dialect goqu.DialectWrapper
	logger  Logger
}

// NewDatabase connects to the store selected by cfg and applies schema
// migrations.
func NewDatabase(ctx context.Context, cfg Config, opts ...Option) (*Database, error) {
	s := newSettings(opts)

	driver, dsn, err := cfg.dataSource()
	if err != nil {
		return nil, err
	}

	// Ensure directory exists so first-run succeeds.
	if driver == driverSQLite && cfg.DataDir != "" && cfg.DataDir != "." {
		if err := os.MkdirAll(filepath.Clean(cfg.DataDir), 0o755); err != nil {
			return nil, fmt.Errorf("%w: create data dir: %v", ErrConnection, err)
		}
	}

	return openDatabase(ctx, driver, dsn, s)
}

// openDatabase connects with a registered database/sql driver and migrates.
func openDatabase(ctx context.Context, driver, dsn string, s settings) (*Database, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrConnection, redactDSN(dsn), err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", ErrConnection, redactDSN(dsn), err)
	}
	s.logger.Info("database connection established", "driver", driver, "target", redactDSN(dsn))

	if err := applyMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Database{db: db, dialect: dialectFor(driver), logger: s.logger}, nil
}

func dialectFor(driver string) goqu.DialectWrapper {
	if driver == driverPostgres {
		return goqu.Dialect("postgres")
	}
	return goqu.Dialect("sqlite3")
}

// Close closes the pool. Open transactions must be closed first.
func (d *Database) Close() error { return d.db.Close() }

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

var schema = []string{
	`CREATE TABLE IF NOT EXISTS membre (
		"idMembre" INTEGER PRIMARY KEY,
		"nom" VARCHAR(100) NOT NULL,
		"telephone" VARCHAR(20) NOT NULL DEFAULT '',
		"limitePret" INTEGER NOT NULL,
		"nbPret" INTEGER NOT NULL DEFAULT 0,
		CHECK ("limitePret" BETWEEN 1 AND 10),
		CHECK ("nbPret" >= 0 AND "nbPret" <= "limitePret")
	)`,
	`CREATE TABLE IF NOT EXISTS livre (
		"idLivre" INTEGER PRIMARY KEY,
		"titre" VARCHAR(100) NOT NULL,
		"auteur" VARCHAR(100) NOT NULL,
		"dateAcquisition" TIMESTAMP NOT NULL,
		"idMembre" INTEGER REFERENCES membre("idMembre"),
		"datePret" TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS pret (
		"idPret" INTEGER PRIMARY KEY,
		"idMembre" INTEGER NOT NULL REFERENCES membre("idMembre") ON DELETE CASCADE,
		"idLivre" INTEGER NOT NULL REFERENCES livre("idLivre") ON DELETE CASCADE,
		"datePret" TIMESTAMP NOT NULL,
		"dateRetour" TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS reservation (
		"idReservation" INTEGER PRIMARY KEY,
		"idMembre" INTEGER NOT NULL REFERENCES membre("idMembre") ON DELETE CASCADE,
		"idLivre" INTEGER NOT NULL REFERENCES livre("idLivre") ON DELETE CASCADE,
		"dateReservation" TIMESTAMP NOT NULL,
		UNIQUE ("idMembre", "idLivre")
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pret_livre ON pret("idLivre")`,
	`CREATE INDEX IF NOT EXISTS idx_reservation_livre ON reservation("idLivre", "dateReservation")`,
}

func applyMigrations(ctx context.Context, db *sqlx.DB) error {
	if db.DriverName() == driverSQLite {
		// WAL lets readers proceed while a writer holds its transaction open.
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			return fmt.Errorf("enable WAL: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT)`); err != nil {
		return &StorageError{Op: "create meta", Err: err}
	}

	var current sql.NullString
	err := db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key='schema_version'`).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return &StorageError{Op: "read schema version", Err: err}
	}
	if v, _ := strconv.Atoi(current.String); v >= schemaVersion {
		return nil
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "begin migration", Err: err}
	}
	defer tx.Rollback()

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return &StorageError{Op: "apply migration " + firstLine(stmt), Err: err}
		}
	}

	upsert := tx.Rebind(`INSERT INTO meta(key,value) VALUES('schema_version',?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value`)
	if _, err := tx.ExecContext(ctx, upsert, strconv.Itoa(schemaVersion)); err != nil {
		return &StorageError{Op: "record schema version", Err: err}
	}

	return tx.Commit()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
