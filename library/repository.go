package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"slices"

	"github.com/doug-martin/goqu/v9"
)

// Repository maps one entity type to storage. Every call runs inside the
// given Transaction.
type Repository[T any] interface {
	Create(ctx context.Context, tx *Transaction, e *T) error
	Read(ctx context.Context, tx *Transaction, key int64) (*T, error)
	Update(ctx context.Context, tx *Transaction, e *T) error
	Delete(ctx context.Context, tx *Transaction, key int64) error
	// FindBy returns the rows whose field equals value, ascending by sort.
	FindBy(ctx context.Context, tx *Transaction, field string, value any, sort string) ([]T, error)
}

// table describes how an entity type is stored.
type table[T any] struct {
	name    string
	key     string
	columns []string
	keyOf   func(*T) int64
	setKey  func(*T, int64)
	record  func(*T) goqu.Record
}

// SQLRepository implements Repository with goqu-built statements executed
// through sqlx.
type SQLRepository[T any] struct {
	t table[T]
}

func newSQLRepository[T any](t table[T]) *SQLRepository[T] {
	return &SQLRepository[T]{t: t}
}

// Create inserts e. A zero key is replaced by the next free key.
func (r *SQLRepository[T]) Create(ctx context.Context, tx *Transaction, e *T) error {
	stx, err := tx.active(ctx)
	if err != nil {
		return err
	}
	if e == nil {
		return fmt.Errorf("%w: nil %s", ErrInvalidArgument, r.t.name)
	}

	if r.t.keyOf(e) == 0 {
		next, err := r.nextKey(ctx, tx)
		if err != nil {
			return err
		}
		r.t.setKey(e, next)
	}

	query, args, err := tx.dialect.Insert(r.t.name).Rows(r.t.record(e)).Prepared(true).ToSQL()
	if err != nil {
		return &StorageError{Op: "build insert " + r.t.name, Err: err}
	}
	tx.logger.Debug("executing sql", "query", query)
	if _, err := stx.ExecContext(ctx, query, args...); err != nil {
		return &StorageError{Op: "insert " + r.t.name, Err: err}
	}
	return nil
}

// Read returns the entity stored under key, or nil when there is none.
func (r *SQLRepository[T]) Read(ctx context.Context, tx *Transaction, key int64) (*T, error) {
	stx, err := tx.active(ctx)
	if err != nil {
		return nil, err
	}

	query, args, err := r.selectFrom(tx).Where(goqu.C(r.t.key).Eq(key)).Prepared(true).ToSQL()
	if err != nil {
		return nil, &StorageError{Op: "build select " + r.t.name, Err: err}
	}
	tx.logger.Debug("executing sql", "query", query)

	var e T
	if err := stx.GetContext(ctx, &e, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, &StorageError{Op: "select " + r.t.name, Err: err}
	}
	return &e, nil
}

// Update overwrites the stored row with e.
func (r *SQLRepository[T]) Update(ctx context.Context, tx *Transaction, e *T) error {
	stx, err := tx.active(ctx)
	if err != nil {
		return err
	}
	if e == nil {
		return fmt.Errorf("%w: nil %s", ErrInvalidArgument, r.t.name)
	}

	key := r.t.keyOf(e)
	query, args, err := tx.dialect.Update(r.t.name).
		Set(r.t.record(e)).
		Where(goqu.C(r.t.key).Eq(key)).
		Prepared(true).ToSQL()
	if err != nil {
		return &StorageError{Op: "build update " + r.t.name, Err: err}
	}
	tx.logger.Debug("executing sql", "query", query)

	res, err := stx.ExecContext(ctx, query, args...)
	if err != nil {
		return &StorageError{Op: "update " + r.t.name, Err: err}
	}
	return r.expectOne(res, key)
}

// Delete removes the row stored under key.
func (r *SQLRepository[T]) Delete(ctx context.Context, tx *Transaction, key int64) error {
	stx, err := tx.active(ctx)
	if err != nil {
		return err
	}

	query, args, err := tx.dialect.Delete(r.t.name).Where(goqu.C(r.t.key).Eq(key)).Prepared(true).ToSQL()
	if err != nil {
		return &StorageError{Op: "build delete " + r.t.name, Err: err}
	}
	tx.logger.Debug("executing sql", "query", query)

	res, err := stx.ExecContext(ctx, query, args...)
	if err != nil {
		return &StorageError{Op: "delete " + r.t.name, Err: err}
	}
	return r.expectOne(res, key)
}

// FindBy returns every row whose field equals value, ascending by sort. An
// empty, non-nil slice is returned when nothing matches.
func (r *SQLRepository[T]) FindBy(ctx context.Context, tx *Transaction, field string, value any, sort string) ([]T, error) {
	stx, err := tx.active(ctx)
	if err != nil {
		return nil, err
	}
	if field == "" || isNil(value) {
		return nil, fmt.Errorf("%w: field and value are required", ErrInvalidCriterion)
	}
	if !slices.Contains(r.t.columns, field) {
		return nil, fmt.Errorf("%w: %s has no field %q", ErrInvalidCriterion, r.t.name, field)
	}
	if sort == "" {
		return nil, fmt.Errorf("%w: sort field is required", ErrInvalidSortProperty)
	}
	if !slices.Contains(r.t.columns, sort) {
		return nil, fmt.Errorf("%w: %s has no field %q", ErrInvalidSortProperty, r.t.name, sort)
	}

	query, args, err := r.selectFrom(tx).
		Where(goqu.C(field).Eq(value)).
		Order(goqu.C(sort).Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, &StorageError{Op: "build select " + r.t.name, Err: err}
	}
	tx.logger.Debug("executing sql", "query", query)

	out := []T{}
	if err := stx.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, &StorageError{Op: "select " + r.t.name, Err: err}
	}
	return out, nil
}

func (r *SQLRepository[T]) selectFrom(tx *Transaction) *goqu.SelectDataset {
	cols := make([]any, len(r.t.columns))
	for i, c := range r.t.columns {
		cols[i] = goqu.C(c)
	}
	return tx.dialect.From(r.t.name).Select(cols...)
}

func (r *SQLRepository[T]) nextKey(ctx context.Context, tx *Transaction) (int64, error) {
	query, args, err := tx.dialect.From(r.t.name).
		Select(goqu.COALESCE(goqu.MAX(r.t.key), 0)).
		Prepared(true).ToSQL()
	if err != nil {
		return 0, &StorageError{Op: "build key query " + r.t.name, Err: err}
	}
	var max int64
	if err := tx.tx.QueryRowxContext(ctx, query, args...).Scan(&max); err != nil {
		return 0, &StorageError{Op: "next key " + r.t.name, Err: err}
	}
	return max + 1, nil
}

func (r *SQLRepository[T]) expectOne(res sql.Result, key int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return &StorageError{Op: "rows affected " + r.t.name, Err: err}
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %d", ErrMissingEntity, r.t.name, key)
	}
	return nil
}

// isNil reports whether v is nil or a nil pointer, map, slice or interface
// stored in an interface.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Chan, reflect.Func:
		return rv.IsNil()
	}
	return false
}

// nullable turns a nil pointer into SQL NULL.
func nullable[V any](p *V) any {
	if p == nil {
		return nil
	}
	return *p
}
