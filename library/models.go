package library

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxNameLength  = 100
	MaxPhoneLength = 20
	MinLoanLimit   = 1
	MaxLoanLimit   = 10
)

// Member represents a registered library member.
type Member struct {
	ID        int64  `db:"idMembre" json:"id"`
	Name      string `db:"nom" json:"name"`
	Phone     string `db:"telephone" json:"phone"`
	LoanLimit int    `db:"limitePret" json:"loan_limit"`
	LoanCount int    `db:"nbPret" json:"loan_count"`
}

// Validate checks the fields a caller must supply on registration.
func (m *Member) Validate() error {
	if m.ID <= 0 {
		return fmt.Errorf("%w: member id must be positive, got %d", ErrInvalidArgument, m.ID)
	}
	if err := checkText("member name", m.Name, MaxNameLength); err != nil {
		return err
	}
	if utf8.RuneCountInString(m.Phone) > MaxPhoneLength {
		return fmt.Errorf("%w: phone number longer than %d characters", ErrInvalidArgument, MaxPhoneLength)
	}
	if m.LoanLimit < MinLoanLimit || m.LoanLimit > MaxLoanLimit {
		return fmt.Errorf("%w: loan limit must be between %d and %d, got %d", ErrInvalidArgument, MinLoanLimit, MaxLoanLimit, m.LoanLimit)
	}
	if m.LoanCount < 0 || m.LoanCount > m.LoanLimit {
		return fmt.Errorf("%w: loan count %d outside [0,%d]", ErrInvalidArgument, m.LoanCount, m.LoanLimit)
	}
	return nil
}

// CanBorrow reports whether the member is under their loan limit.
func (m *Member) CanBorrow() bool { return m.LoanCount < m.LoanLimit }

// Book represents a catalogue entry. BorrowerID and LoanDate are set together
// while the book is out and cleared together when it comes back.
type Book struct {
	ID         int64      `db:"idLivre" json:"id"`
	Title      string     `db:"titre" json:"title"`
	Author     string     `db:"auteur" json:"author"`
	AcquiredOn time.Time  `db:"dateAcquisition" json:"acquired_on"`
	BorrowerID *int64     `db:"idMembre" json:"borrower_id,omitempty"`
	LoanDate   *time.Time `db:"datePret" json:"loan_date,omitempty"`
}

// Validate checks the fields a caller must supply on acquisition.
func (b *Book) Validate() error {
	if b.ID <= 0 {
		return fmt.Errorf("%w: book id must be positive, got %d", ErrInvalidArgument, b.ID)
	}
	if err := checkText("title", b.Title, MaxNameLength); err != nil {
		return err
	}
	if err := checkText("author", b.Author, MaxNameLength); err != nil {
		return err
	}
	if b.AcquiredOn.IsZero() {
		return fmt.Errorf("%w: acquisition date is required", ErrInvalidArgument)
	}
	return nil
}

// OnLoan reports whether the book currently has a borrower.
func (b *Book) OnLoan() bool { return b.BorrowerID != nil }

// LentTo reports whether memberID is the current borrower.
func (b *Book) LentTo(memberID int64) bool {
	return b.BorrowerID != nil && *b.BorrowerID == memberID
}

func (b *Book) lend(memberID int64, at time.Time) {
	b.BorrowerID = &memberID
	b.LoanDate = &at
}

func (b *Book) giveBack() {
	b.BorrowerID = nil
	b.LoanDate = nil
}

// Loan records one member borrowing one book.
type Loan struct {
	ID         int64      `db:"idPret" json:"id"`
	MemberID   int64      `db:"idMembre" json:"member_id"`
	BookID     int64      `db:"idLivre" json:"book_id"`
	LoanDate   time.Time  `db:"datePret" json:"loan_date"`
	ReturnDate *time.Time `db:"dateRetour" json:"return_date,omitempty"`
}

// Active reports whether the loan has not been closed yet.
func (l *Loan) Active() bool { return l.ReturnDate == nil }

// Reservation is a member's queued claim on a book that is out on loan.
type Reservation struct {
	ID       int64     `db:"idReservation" json:"id"`
	MemberID int64     `db:"idMembre" json:"member_id"`
	BookID   int64     `db:"idLivre" json:"book_id"`
	Date     time.Time `db:"dateReservation" json:"date"`
}

// before orders reservations by date, then by id.
func (r *Reservation) before(o *Reservation) bool {
	if !r.Date.Equal(o.Date) {
		return r.Date.Before(o.Date)
	}
	return r.ID < o.ID
}

func checkText(field, value string, max int) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidArgument, field)
	}
	if utf8.RuneCountInString(value) > max {
		return fmt.Errorf("%w: %s longer than %d characters", ErrInvalidArgument, field, max)
	}
	return nil
}
