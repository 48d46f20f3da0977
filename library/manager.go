package library

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// LibraryManager is the caller-facing façade over the rule engine. Every
// failure comes back as a *ServiceError wrapping the typed cause.
type LibraryManager struct {
	db     *Database
	engine *RuleEngine
}

// NewLibraryManager opens (or creates) the store described by cfg.
func NewLibraryManager(ctx context.Context, cfg Config, opts ...Option) (*LibraryManager, error) {
	db, err := NewDatabase(ctx, cfg, opts...)
	if err != nil {
		return nil, wrapService("open", err)
	}
	return &LibraryManager{db: db, engine: NewRuleEngine(NewRepositories(), opts...)}, nil
}

// Close closes the underlying database.
func (lm *LibraryManager) Close() error { return lm.db.Close() }

// Begin opens a Transaction. The caller commits or rolls back and closes it.
func (lm *LibraryManager) Begin(ctx context.Context) (*Transaction, error) {
	tx, err := lm.db.Begin(ctx)
	return tx, wrapService("begin", err)
}

// InTransaction runs fn in its own Transaction, committing on success.
func (lm *LibraryManager) InTransaction(ctx context.Context, fn func(*Transaction) error) error {
	err := lm.db.WithTransaction(ctx, fn)
	var se *ServiceError
	if err != nil && !errors.As(err, &se) {
		return wrapService("transaction", err)
	}
	return err
}

// ------------------ Members ------------------

// RegisterMember adds a member identified by id.
func (lm *LibraryManager) RegisterMember(ctx context.Context, tx *Transaction, id int64, name, phone string, limit int) (*Member, error) {
	m := &Member{ID: id, Name: name, Phone: phone, LoanLimit: limit}
	if err := lm.engine.Members.Register(ctx, tx, m); err != nil {
		return nil, wrapService("register member", err)
	}
	return m, nil
}

func (lm *LibraryManager) DeregisterMember(ctx context.Context, tx *Transaction, id int64) error {
	return wrapService("deregister member", lm.engine.Members.Deregister(ctx, tx, id))
}

func (lm *LibraryManager) GetMember(ctx context.Context, tx *Transaction, id int64) (*Member, error) {
	m, err := lm.engine.Members.Get(ctx, tx, id)
	return m, wrapService("get member", err)
}

// ------------------ Books ------------------

// AcquireBook adds a book identified by id to the catalogue.
func (lm *LibraryManager) AcquireBook(ctx context.Context, tx *Transaction, id int64, title, author string, acquired time.Time) (*Book, error) {
	b := &Book{ID: id, Title: title, Author: author, AcquiredOn: acquired}
	if err := lm.engine.Books.Acquire(ctx, tx, b); err != nil {
		return nil, wrapService("acquire book", err)
	}
	return b, nil
}

func (lm *LibraryManager) DisposeBook(ctx context.Context, tx *Transaction, id int64) error {
	return wrapService("dispose book", lm.engine.Books.Dispose(ctx, tx, id))
}

func (lm *LibraryManager) GetBook(ctx context.Context, tx *Transaction, id int64) (*Book, error) {
	b, err := lm.engine.Books.Get(ctx, tx, id)
	return b, wrapService("get book", err)
}

func (lm *LibraryManager) BooksByAuthor(ctx context.Context, tx *Transaction, author string) ([]Book, error) {
	bs, err := lm.engine.Books.ByAuthor(ctx, tx, author)
	return bs, wrapService("list books by author", err)
}

// ------------------ Circulation ------------------

func (lm *LibraryManager) StartLoan(ctx context.Context, tx *Transaction, memberID, bookID int64) (*Loan, error) {
	l, err := lm.engine.Loans.Start(ctx, tx, memberID, bookID)
	return l, wrapService("start loan", err)
}

func (lm *LibraryManager) RenewLoan(ctx context.Context, tx *Transaction, loanID int64) (*Loan, error) {
	l, err := lm.engine.Loans.Renew(ctx, tx, loanID)
	return l, wrapService("renew loan", err)
}

func (lm *LibraryManager) EndLoan(ctx context.Context, tx *Transaction, loanID int64) (*Loan, error) {
	l, err := lm.engine.Loans.End(ctx, tx, loanID)
	return l, wrapService("end loan", err)
}

// ActiveLoan returns the open loan on a book, nil when it is available.
func (lm *LibraryManager) ActiveLoan(ctx context.Context, tx *Transaction, bookID int64) (*Loan, error) {
	l, err := lm.engine.Loans.Current(ctx, tx, bookID)
	return l, wrapService("find active loan", err)
}

func (lm *LibraryManager) MemberLoans(ctx context.Context, tx *Transaction, memberID int64) ([]Loan, error) {
	ls, err := lm.engine.Loans.History(ctx, tx, memberID)
	return ls, wrapService("list member loans", err)
}

// ------------------ Reservations ------------------

func (lm *LibraryManager) PlaceReservation(ctx context.Context, tx *Transaction, memberID, bookID int64) (*Reservation, error) {
	r, err := lm.engine.Reservations.Place(ctx, tx, memberID, bookID)
	return r, wrapService("place reservation", err)
}

func (lm *LibraryManager) FulfillReservation(ctx context.Context, tx *Transaction, reservationID int64) (*Loan, error) {
	l, err := lm.engine.Reservations.Fulfill(ctx, tx, reservationID)
	return l, wrapService("fulfill reservation", err)
}

func (lm *LibraryManager) CancelReservation(ctx context.Context, tx *Transaction, reservationID int64) error {
	return wrapService("cancel reservation", lm.engine.Reservations.Cancel(ctx, tx, reservationID))
}

// ReservationQueue lists the reservations on a book in the order they will
// be honoured.
func (lm *LibraryManager) ReservationQueue(ctx context.Context, tx *Transaction, bookID int64) ([]Reservation, error) {
	rs, err := lm.engine.Reservations.Queue(ctx, tx, bookID)
	return rs, wrapService("list reservations", err)
}

func (lm *LibraryManager) MemberReservations(ctx context.Context, tx *Transaction, memberID int64) ([]Reservation, error) {
	rs, err := lm.engine.Reservations.OfMember(ctx, tx, memberID)
	return rs, wrapService("list member reservations", err)
}

// ------------------ Utilities ------------------

// PrettyBook formats a book for lists.
func PrettyBook(b *Book) string {
	borrower := "-"
	if b.OnLoan() {
		borrower = fmt.Sprint(*b.BorrowerID)
	}
	return fmt.Sprintf("%-5d %-30s %-25s %-10s %s", b.ID, truncate(b.Title, 30), truncate(b.Author, 25), FormatDate(b.AcquiredOn), borrower)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
