package library

import (
	"context"
	"fmt"
)

// LoanService starts, renews and ends loans.
type LoanService struct{ *engine }

// Start lends book to member.
//
// It fails with ErrMissingEntity when either does not exist, ErrExistingLoan
// when the book is already out, ErrLoanLimitExceeded when the member is at
// their limit and ErrExistingReservation when anyone has reserved the book.
func (s *LoanService) Start(ctx context.Context, tx *Transaction, memberID, bookID int64) (*Loan, error) {
	m, err := s.member(ctx, tx, memberID)
	if err != nil {
		return nil, err
	}
	b, err := s.book(ctx, tx, bookID)
	if err != nil {
		return nil, err
	}
	if b.OnLoan() {
		return nil, fmt.Errorf("%w: book %d is lent to member %d", ErrExistingLoan, b.ID, *b.BorrowerID)
	}
	if !m.CanBorrow() {
		return nil, fmt.Errorf("%w: member %d holds %d of %d loans", ErrLoanLimitExceeded, m.ID, m.LoanCount, m.LoanLimit)
	}
	queue, err := s.queue(ctx, tx, b.ID)
	if err != nil {
		return nil, err
	}
	if len(queue) > 0 {
		return nil, fmt.Errorf("%w: book %d has %d pending reservation(s)", ErrExistingReservation, b.ID, len(queue))
	}
	return s.lend(ctx, tx, m, b)
}

// Renew refreshes the loan date of an open loan. The loan limit is not
// checked again; a pending reservation on the book blocks renewal.
func (s *LoanService) Renew(ctx context.Context, tx *Transaction, loanID int64) (*Loan, error) {
	l, err := s.activeLoan(ctx, tx, loanID)
	if err != nil {
		return nil, err
	}
	queue, err := s.queue(ctx, tx, l.BookID)
	if err != nil {
		return nil, err
	}
	if len(queue) > 0 {
		return nil, fmt.Errorf("%w: book %d is reserved by member %d", ErrExistingReservation, l.BookID, queue[0].MemberID)
	}

	b, err := s.book(ctx, tx, l.BookID)
	if err != nil {
		return nil, err
	}

	now := s.timestamp()
	l.LoanDate = now
	if err := s.repos.Loans.Update(ctx, tx, l); err != nil {
		return nil, err
	}
	b.LoanDate = &now
	if err := s.repos.Books.Update(ctx, tx, b); err != nil {
		return nil, err
	}
	return l, nil
}

// End closes an open loan and makes the book available again.
func (s *LoanService) End(ctx context.Context, tx *Transaction, loanID int64) (*Loan, error) {
	l, err := s.activeLoan(ctx, tx, loanID)
	if err != nil {
		return nil, err
	}
	m, err := s.member(ctx, tx, l.MemberID)
	if err != nil {
		return nil, err
	}
	b, err := s.book(ctx, tx, l.BookID)
	if err != nil {
		return nil, err
	}

	now := s.timestamp()
	l.ReturnDate = &now
	if err := s.repos.Loans.Update(ctx, tx, l); err != nil {
		return nil, err
	}

	if m.LoanCount > 0 {
		m.LoanCount--
	}
	if err := s.repos.Members.Update(ctx, tx, m); err != nil {
		return nil, err
	}

	b.giveBack()
	if err := s.repos.Books.Update(ctx, tx, b); err != nil {
		return nil, err
	}
	return l, nil
}

// Current returns the open loan on a book, or nil when the book is in.
func (s *LoanService) Current(ctx context.Context, tx *Transaction, bookID int64) (*Loan, error) {
	if _, err := s.book(ctx, tx, bookID); err != nil {
		return nil, err
	}
	loans, err := s.repos.Loans.FindBy(ctx, tx, ColBookID, bookID, ColLoanDate)
	if err != nil {
		return nil, err
	}
	for i := range loans {
		if loans[i].Active() {
			return &loans[i], nil
		}
	}
	return nil, nil
}

// History lists a member's loans, open and closed, oldest first.
func (s *LoanService) History(ctx context.Context, tx *Transaction, memberID int64) ([]Loan, error) {
	if _, err := s.member(ctx, tx, memberID); err != nil {
		return nil, err
	}
	return s.repos.Loans.FindBy(ctx, tx, ColMemberID, memberID, ColLoanDate)
}
