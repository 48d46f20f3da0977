package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
)

// Transaction is a unit of work pinned to a single connection. A database
// transaction is begun on Begin and again on first use after every Commit or
// Rollback. A Transaction must not be shared between goroutines.
type Transaction struct {
	conn      *sqlx.Conn
	tx        *sqlx.Tx
	isolation sql.IsolationLevel
	dialect   goqu.DialectWrapper
	logger    Logger
	closed    bool
}

// Begin acquires a connection and starts a serializable transaction on it,
// or a transaction at the store's default level when serializable is refused.
func (d *Database) Begin(ctx context.Context) (*Transaction, error) {
	conn, err := d.db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: acquire connection: %v", ErrConnection, err)
	}
	t := &Transaction{
		conn:      conn,
		isolation: sql.LevelSerializable,
		dialect:   d.dialect,
		logger:    d.logger,
	}
	if _, err := t.active(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return t, nil
}

// WithTransaction runs fn in a fresh Transaction. It commits when fn returns
// nil, otherwise it rolls back; the transaction is closed either way, also
// when fn panics.
func (d *Database) WithTransaction(ctx context.Context, fn func(*Transaction) error) (err error) {
	t, err := d.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = t.Rollback()
			_ = t.Close()
			panic(p)
		}
		if err != nil {
			if rbErr := t.Rollback(); rbErr != nil {
				err = errors.Join(err, rbErr)
			}
		}
		if cErr := t.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	if err = fn(t); err != nil {
		return err
	}
	return t.Commit()
}

// Isolation reports the isolation level the handle runs at.
func (t *Transaction) Isolation() sql.IsolationLevel { return t.isolation }

// Commit makes the current transaction's changes durable.
func (t *Transaction) Commit() error {
	if t == nil || t.closed {
		return ErrInvalidSession
	}
	if t.tx == nil {
		return nil
	}
	tx := t.tx
	t.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrTransaction, err)
	}
	t.logger.Debug("transaction committed")
	return nil
}

// Rollback discards the current transaction's changes.
func (t *Transaction) Rollback() error {
	if t == nil || t.closed {
		return ErrInvalidSession
	}
	if t.tx == nil {
		return nil
	}
	tx := t.tx
	t.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("%w: rollback: %v", ErrTransaction, err)
	}
	t.logger.Debug("transaction rolled back")
	return nil
}

// Close rolls back any uncommitted work and releases the connection. Calling
// Close more than once is a no-op.
func (t *Transaction) Close() error {
	if t == nil || t.closed {
		return nil
	}
	rbErr := t.Rollback()
	t.closed = true
	if err := t.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: close: %v", ErrConnection, err)
	}
	return rbErr
}

// active returns the open database transaction, beginning one if needed.
func (t *Transaction) active(ctx context.Context) (*sqlx.Tx, error) {
	if t == nil || t.closed {
		return nil, ErrInvalidSession
	}
	if t.tx != nil {
		return t.tx, nil
	}

	tx, err := t.conn.BeginTxx(ctx, &sql.TxOptions{Isolation: t.isolation})
	if err != nil && t.isolation != sql.LevelDefault {
		// Downgrade only when the store accepts a default-level transaction,
		// otherwise report both failures.
		fallback, fbErr := t.conn.BeginTxx(ctx, nil)
		if fbErr != nil {
			return nil, fmt.Errorf("%w: begin: %w", ErrTransaction, errors.Join(err, fbErr))
		}
		t.logger.Debug("isolation level refused, using store default", "level", t.isolation.String(), "error", err)
		t.isolation = sql.LevelDefault
		tx, err = fallback, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %w", ErrTransaction, err)
	}
	t.tx = tx
	return tx, nil
}
