package library

import (
	"context"
	"fmt"
)

// MemberService registers and deregisters members.
type MemberService struct{ *engine }

// Register adds a member with no loans.
func (s *MemberService) Register(ctx context.Context, tx *Transaction, m *Member) error {
	if m == nil {
		return fmt.Errorf("%w: member is required", ErrInvalidArgument)
	}
	m.LoanCount = 0
	if err := m.Validate(); err != nil {
		return err
	}
	existing, err := s.repos.Members.Read(ctx, tx, m.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: member %d", ErrEntityExists, m.ID)
	}
	return s.repos.Members.Create(ctx, tx, m)
}

// Deregister removes a member who has no loans and no reservations. Their
// closed loan history goes with them.
func (s *MemberService) Deregister(ctx context.Context, tx *Transaction, memberID int64) error {
	m, err := s.member(ctx, tx, memberID)
	if err != nil {
		return err
	}
	if m.LoanCount > 0 {
		return fmt.Errorf("%w: member %d has %d book(s) on loan", ErrExistingLoan, m.ID, m.LoanCount)
	}
	rs, err := s.repos.Reservations.FindBy(ctx, tx, ColMemberID, m.ID, ColReservationDate)
	if err != nil {
		return err
	}
	if len(rs) > 0 {
		return fmt.Errorf("%w: member %d has %d reservation(s)", ErrExistingReservation, m.ID, len(rs))
	}
	if err := s.purgeHistory(ctx, tx, ColMemberID, m.ID); err != nil {
		return err
	}
	return s.repos.Members.Delete(ctx, tx, m.ID)
}

// Get returns a member.
func (s *MemberService) Get(ctx context.Context, tx *Transaction, memberID int64) (*Member, error) {
	return s.member(ctx, tx, memberID)
}

// BookService acquires and disposes of books.
type BookService struct{ *engine }

// Acquire adds a book to the catalogue, available for loan.
func (s *BookService) Acquire(ctx context.Context, tx *Transaction, b *Book) error {
	if b == nil {
		return fmt.Errorf("%w: book is required", ErrInvalidArgument)
	}
	b.giveBack()
	if err := b.Validate(); err != nil {
		return err
	}
	existing, err := s.repos.Books.Read(ctx, tx, b.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: book %d", ErrEntityExists, b.ID)
	}
	return s.repos.Books.Create(ctx, tx, b)
}

// Dispose removes a book that is neither on loan nor reserved.
func (s *BookService) Dispose(ctx context.Context, tx *Transaction, bookID int64) error {
	b, err := s.book(ctx, tx, bookID)
	if err != nil {
		return err
	}
	if b.OnLoan() {
		return fmt.Errorf("%w: book %d is lent to member %d", ErrExistingLoan, b.ID, *b.BorrowerID)
	}
	rs, err := s.repos.Reservations.FindBy(ctx, tx, ColBookID, b.ID, ColReservationDate)
	if err != nil {
		return err
	}
	if len(rs) > 0 {
		return fmt.Errorf("%w: book %d has %d reservation(s)", ErrExistingReservation, b.ID, len(rs))
	}
	if err := s.purgeHistory(ctx, tx, ColBookID, b.ID); err != nil {
		return err
	}
	return s.repos.Books.Delete(ctx, tx, b.ID)
}

// Get returns a book.
func (s *BookService) Get(ctx context.Context, tx *Transaction, bookID int64) (*Book, error) {
	return s.book(ctx, tx, bookID)
}

// ByAuthor lists an author's books by title.
func (s *BookService) ByAuthor(ctx context.Context, tx *Transaction, author string) ([]Book, error) {
	if author == "" {
		return nil, fmt.Errorf("%w: author is required", ErrInvalidArgument)
	}
	return s.repos.Books.FindBy(ctx, tx, ColAuthor, author, ColTitle)
}
