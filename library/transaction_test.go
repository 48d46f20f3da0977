package library

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serializableRefusingDriver is SQLite that only begins transactions at the
// default isolation level, like stores without serializable support.
const serializableRefusingDriver = "sqlite3_no_serializable"

var (
	errSerializableRefused = errors.New("isolation level not supported")
	errConnectionLost      = errors.New("connection lost")

	// defaultBeginBroken makes default-level begins fail as well.
	defaultBeginBroken atomic.Bool
	registerRefusing   sync.Once
)

type refusingDriver struct{ sqlite3.SQLiteDriver }

func (d *refusingDriver) Open(dsn string) (driver.Conn, error) {
	c, err := d.SQLiteDriver.Open(dsn)
	if err != nil {
		return nil, err
	}
	return &refusingConn{SQLiteConn: c.(*sqlite3.SQLiteConn)}, nil
}

type refusingConn struct{ *sqlite3.SQLiteConn }

func (c *refusingConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if opts.Isolation != driver.IsolationLevel(sql.LevelDefault) {
		return nil, errSerializableRefused
	}
	if defaultBeginBroken.Load() {
		return nil, errConnectionLost
	}
	return c.SQLiteConn.BeginTx(ctx, opts)
}

func refusingDB(t *testing.T) *Database {
	t.Helper()
	registerRefusing.Do(func() { sql.Register(serializableRefusingDriver, &refusingDriver{}) })

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1", filepath.Join(t.TempDir(), "refusing.db"))
	db, err := openDatabase(context.Background(), serializableRefusingDriver, dsn, newSettings(nil))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBeginRunsSerializable(t *testing.T) {
	db := tempDB(t)
	tx := beginTx(t, db)
	assert.Equal(t, sql.LevelSerializable, tx.Isolation())
}

func TestBeginFallsBackToDefaultIsolation(t *testing.T) {
	ctx := context.Background()
	db := refusingDB(t)
	repos := NewRepositories()

	tx := beginTx(t, db)
	assert.Equal(t, sql.LevelDefault, tx.Isolation())

	require.NoError(t, repos.Members.Create(ctx, tx, &Member{ID: 1, Name: "Alice", LoanLimit: 2}))
	require.NoError(t, tx.Commit())

	// The next transaction on the handle starts at the default level directly.
	m, err := repos.Members.Read(ctx, tx, 1)
	require.NoError(t, err)
	require.NotNil(t, m)
	require.NoError(t, tx.Commit())
	assert.Equal(t, sql.LevelDefault, tx.Isolation())
}

func TestBeginReportsBothFailuresWhenFallbackFails(t *testing.T) {
	db := refusingDB(t)
	defaultBeginBroken.Store(true)
	t.Cleanup(func() { defaultBeginBroken.Store(false) })

	_, err := db.Begin(context.Background())
	require.ErrorIs(t, err, ErrTransaction)
	assert.ErrorIs(t, err, errSerializableRefused)
	assert.ErrorIs(t, err, errConnectionLost)
}

func TestCommitMakesChangesVisible(t *testing.T) {
	ctx := context.Background()
	db := tempDB(t)
	repos := NewRepositories()

	writer := beginTx(t, db)
	require.NoError(t, repos.Members.Create(ctx, writer, &Member{ID: 1, Name: "Alice", LoanLimit: 2}))
	require.NoError(t, writer.Commit())

	reader := beginTx(t, db)
	m, err := repos.Members.Read(ctx, reader, 1)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "Alice", m.Name)
}

func TestRollbackDiscardsAndHandleStaysUsable(t *testing.T) {
	ctx := context.Background()
	db := tempDB(t)
	repos := NewRepositories()
	tx := beginTx(t, db)

	require.NoError(t, repos.Members.Create(ctx, tx, &Member{ID: 1, Name: "Alice", LoanLimit: 2}))
	require.NoError(t, tx.Rollback())

	// The next call begins a new transaction on the same connection.
	m, err := repos.Members.Read(ctx, tx, 1)
	require.NoError(t, err)
	assert.Nil(t, m)

	require.NoError(t, repos.Members.Create(ctx, tx, &Member{ID: 2, Name: "Bob", LoanLimit: 2}))
	require.NoError(t, tx.Commit())

	m, err = repos.Members.Read(ctx, tx, 2)
	require.NoError(t, err)
	require.NotNil(t, m)
}

func TestCloseRollsBackUncommittedWork(t *testing.T) {
	ctx := context.Background()
	db := tempDB(t)
	repos := NewRepositories()

	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, repos.Members.Create(ctx, tx, &Member{ID: 1, Name: "Alice", LoanLimit: 2}))
	require.NoError(t, tx.Close())
	require.NoError(t, tx.Close(), "second close is a no-op")

	check := beginTx(t, db)
	m, err := repos.Members.Read(ctx, check, 1)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestClosedOrMissingHandleIsInvalid(t *testing.T) {
	ctx := context.Background()
	db := tempDB(t)
	repos := NewRepositories()

	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Close())

	assert.ErrorIs(t, tx.Commit(), ErrInvalidSession)
	assert.ErrorIs(t, tx.Rollback(), ErrInvalidSession)
	_, err = repos.Members.Read(ctx, tx, 1)
	assert.ErrorIs(t, err, ErrInvalidSession)

	_, err = repos.Books.Read(ctx, nil, 1)
	assert.ErrorIs(t, err, ErrInvalidSession)
	var nilTx *Transaction
	assert.ErrorIs(t, nilTx.Commit(), ErrInvalidSession)
}

func TestWithTransactionCommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	db := tempDB(t)
	repos := NewRepositories()

	err := db.WithTransaction(ctx, func(tx *Transaction) error {
		return repos.Members.Create(ctx, tx, &Member{ID: 7, Name: "Grace", LoanLimit: 3})
	})
	require.NoError(t, err)

	check := beginTx(t, db)
	m, err := repos.Members.Read(ctx, check, 7)
	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	db := tempDB(t)
	repos := NewRepositories()
	boom := errors.New("boom")

	err := db.WithTransaction(ctx, func(tx *Transaction) error {
		if err := repos.Members.Create(ctx, tx, &Member{ID: 7, Name: "Grace", LoanLimit: 3}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	check := beginTx(t, db)
	m, err := repos.Members.Read(ctx, check, 7)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestWithTransactionRollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	db := tempDB(t)
	repos := NewRepositories()

	assert.Panics(t, func() {
		_ = db.WithTransaction(ctx, func(tx *Transaction) error {
			if err := repos.Members.Create(ctx, tx, &Member{ID: 7, Name: "Grace", LoanLimit: 3}); err != nil {
				return err
			}
			panic("interrupted")
		})
	})

	check := beginTx(t, db)
	m, err := repos.Members.Read(ctx, check, 7)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestNewDatabaseRejectsUnknownServer(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server = "mainframe"
	_, err := NewDatabase(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrConnection)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	first, err := NewDatabase(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, first.WithTransaction(ctx, func(tx *Transaction) error {
		return NewRepositories().Members.Create(ctx, tx, &Member{ID: 1, Name: "Alice", LoanLimit: 1})
	}))
	require.NoError(t, first.Close())

	second, err := NewDatabase(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { second.Close() })

	tx := beginTx(t, second)
	m, err := NewRepositories().Members.Read(ctx, tx, 1)
	require.NoError(t, err)
	assert.NotNil(t, m)
}
