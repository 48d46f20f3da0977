package library

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// ReservationService queues members for books that are out and hands books
// over in reservation order.
type ReservationService struct{ *engine }

// Place queues member for book. Only a book currently lent to someone else
// can be reserved, and a member holds at most one reservation per book.
func (s *ReservationService) Place(ctx context.Context, tx *Transaction, memberID, bookID int64) (*Reservation, error) {
	m, err := s.member(ctx, tx, memberID)
	if err != nil {
		return nil, err
	}
	b, err := s.book(ctx, tx, bookID)
	if err != nil {
		return nil, err
	}
	if !b.OnLoan() {
		return nil, fmt.Errorf("%w: book %d is not on loan", ErrMissingLoan, b.ID)
	}
	if b.LentTo(m.ID) {
		return nil, fmt.Errorf("%w: member %d already borrows book %d", ErrExistingLoan, m.ID, b.ID)
	}

	queue, err := s.queue(ctx, tx, b.ID)
	if err != nil {
		return nil, err
	}
	if slices.ContainsFunc(queue, func(r Reservation) bool { return r.MemberID == m.ID }) {
		return nil, fmt.Errorf("%w: member %d already reserved book %d", ErrExistingReservation, m.ID, b.ID)
	}

	date := s.timestamp()
	if n := len(queue); n > 0 && !date.After(queue[n-1].Date) {
		date = queue[n-1].Date.Add(time.Microsecond)
	}

	r := &Reservation{MemberID: m.ID, BookID: b.ID, Date: date}
	if err := s.repos.Reservations.Create(ctx, tx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Fulfill turns a reservation into a loan. Only the first reservation in a
// book's queue can be fulfilled, once the book is back and the member is
// under their loan limit.
func (s *ReservationService) Fulfill(ctx context.Context, tx *Transaction, reservationID int64) (*Loan, error) {
	r, err := s.reservation(ctx, tx, reservationID)
	if err != nil {
		return nil, err
	}

	queue, err := s.queue(ctx, tx, r.BookID)
	if err != nil {
		return nil, err
	}
	if len(queue) > 0 && queue[0].ID != r.ID {
		return nil, fmt.Errorf("%w: reservation %d of member %d comes first", ErrExistingReservation, queue[0].ID, queue[0].MemberID)
	}

	b, err := s.book(ctx, tx, r.BookID)
	if err != nil {
		return nil, err
	}
	if b.OnLoan() {
		return nil, fmt.Errorf("%w: book %d is still lent to member %d", ErrExistingLoan, b.ID, *b.BorrowerID)
	}
	m, err := s.member(ctx, tx, r.MemberID)
	if err != nil {
		return nil, err
	}
	if !m.CanBorrow() {
		return nil, fmt.Errorf("%w: member %d holds %d of %d loans", ErrLoanLimitExceeded, m.ID, m.LoanCount, m.LoanLimit)
	}

	if err := s.repos.Reservations.Delete(ctx, tx, r.ID); err != nil {
		return nil, err
	}
	return s.lend(ctx, tx, m, b)
}

// Cancel deletes a reservation.
func (s *ReservationService) Cancel(ctx context.Context, tx *Transaction, reservationID int64) error {
	r, err := s.reservation(ctx, tx, reservationID)
	if err != nil {
		return err
	}
	return s.repos.Reservations.Delete(ctx, tx, r.ID)
}

// Queue lists the reservations on a book, first in line first.
func (s *ReservationService) Queue(ctx context.Context, tx *Transaction, bookID int64) ([]Reservation, error) {
	if _, err := s.book(ctx, tx, bookID); err != nil {
		return nil, err
	}
	return s.queue(ctx, tx, bookID)
}

// OfMember lists a member's reservations, oldest first.
func (s *ReservationService) OfMember(ctx context.Context, tx *Transaction, memberID int64) ([]Reservation, error) {
	if _, err := s.member(ctx, tx, memberID); err != nil {
		return nil, err
	}
	rs, err := s.repos.Reservations.FindBy(ctx, tx, ColMemberID, memberID, ColReservationDate)
	if err != nil {
		return nil, err
	}
	sortReservations(rs)
	return rs, nil
}

func (s *ReservationService) reservation(ctx context.Context, tx *Transaction, id int64) (*Reservation, error) {
	r, err := s.repos.Reservations.Read(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("%w: reservation %d", ErrMissingReservation, id)
	}
	return r, nil
}

// sortReservations orders by date, breaking ties by id.
func sortReservations(rs []Reservation) {
	slices.SortStableFunc(rs, func(a, b Reservation) int {
		switch {
		case a.before(&b):
			return -1
		case b.before(&a):
			return 1
		default:
			return 0
		}
	})
}
