package library

import (
	"context"
	"fmt"
	"time"
)

// RuleEngine enforces the lending and reservation rules on top of the
// repositories. It never commits: the caller owns the Transaction.
type RuleEngine struct {
	Loans        *LoanService
	Reservations *ReservationService
	Members      *MemberService
	Books        *BookService
}

// engine is the state shared by the services.
type engine struct {
	repos Repositories
	now   func() time.Time
}

// NewRuleEngine builds the services over repos. Only WithClock is relevant
// here.
func NewRuleEngine(repos Repositories, opts ...Option) *RuleEngine {
	s := newSettings(opts)
	e := &engine{repos: repos, now: s.now}
	return &RuleEngine{
		Loans:        &LoanService{e},
		Reservations: &ReservationService{e},
		Members:      &MemberService{e},
		Books:        &BookService{e},
	}
}

// timestamp is the current time at the precision every supported store keeps.
func (e *engine) timestamp() time.Time {
	return e.now().UTC().Truncate(time.Microsecond)
}

func (e *engine) member(ctx context.Context, tx *Transaction, id int64) (*Member, error) {
	m, err := e.repos.Members.Read(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: member %d", ErrMissingEntity, id)
	}
	return m, nil
}

func (e *engine) book(ctx context.Context, tx *Transaction, id int64) (*Book, error) {
	b, err := e.repos.Books.Read(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("%w: book %d", ErrMissingEntity, id)
	}
	return b, nil
}

// activeLoan returns the open loan with the given id.
func (e *engine) activeLoan(ctx context.Context, tx *Transaction, id int64) (*Loan, error) {
	l, err := e.repos.Loans.Read(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if l == nil || !l.Active() {
		return nil, fmt.Errorf("%w: loan %d", ErrMissingLoan, id)
	}
	return l, nil
}

// queue returns the reservations on a book in priority order.
func (e *engine) queue(ctx context.Context, tx *Transaction, bookID int64) ([]Reservation, error) {
	rs, err := e.repos.Reservations.FindBy(ctx, tx, ColBookID, bookID, ColReservationDate)
	if err != nil {
		return nil, err
	}
	sortReservations(rs)
	return rs, nil
}

// lend records a new loan of book to member. Callers have already checked
// availability and the member's limit.
func (e *engine) lend(ctx context.Context, tx *Transaction, m *Member, b *Book) (*Loan, error) {
	now := e.timestamp()
	loan := &Loan{MemberID: m.ID, BookID: b.ID, LoanDate: now}
	if err := e.repos.Loans.Create(ctx, tx, loan); err != nil {
		return nil, err
	}

	m.LoanCount++
	if err := e.repos.Members.Update(ctx, tx, m); err != nil {
		return nil, err
	}

	b.lend(m.ID, now)
	if err := e.repos.Books.Update(ctx, tx, b); err != nil {
		return nil, err
	}
	return loan, nil
}

// purgeHistory deletes the closed loans matching field = id.
func (e *engine) purgeHistory(ctx context.Context, tx *Transaction, field string, id int64) error {
	loans, err := e.repos.Loans.FindBy(ctx, tx, field, id, ColLoanDate)
	if err != nil {
		return err
	}
	for _, l := range loans {
		if l.Active() {
			return fmt.Errorf("%w: loan %d is still open", ErrExistingLoan, l.ID)
		}
		if err := e.repos.Loans.Delete(ctx, tx, l.ID); err != nil {
			return err
		}
	}
	return nil
}
