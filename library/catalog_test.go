package library

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterMember(t *testing.T) {
	f := newFixture(t)

	m := &Member{ID: 1, Name: "Ada", Phone: "555-0101", LoanLimit: 3, LoanCount: 2}
	require.NoError(t, f.engine.Members.Register(f.ctx, f.tx, m))
	assert.Equal(t, 0, m.LoanCount, "new members start without loans")
	assert.Equal(t, 0, f.reloadMember(1).LoanCount)

	err := f.engine.Members.Register(f.ctx, f.tx, &Member{ID: 1, Name: "Other", LoanLimit: 1})
	assert.ErrorIs(t, err, ErrEntityExists)
}

func TestRegisterMemberValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		m    *Member
	}{
		{"nil", nil},
		{"zero id", &Member{Name: "Ada", LoanLimit: 1}},
		{"blank name", &Member{ID: 1, Name: "  ", LoanLimit: 1}},
		{"long name", &Member{ID: 1, Name: strings.Repeat("a", MaxNameLength+1), LoanLimit: 1}},
		{"long phone", &Member{ID: 1, Name: "Ada", Phone: strings.Repeat("5", MaxPhoneLength+1), LoanLimit: 1}},
		{"limit too low", &Member{ID: 1, Name: "Ada", LoanLimit: 0}},
		{"limit too high", &Member{ID: 1, Name: "Ada", LoanLimit: MaxLoanLimit + 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, f.engine.Members.Register(f.ctx, f.tx, tt.m), ErrInvalidArgument)
		})
	}
}

func TestDeregisterMember(t *testing.T) {
	f := newFixture(t)
	f.member(1, 2)
	f.member(2, 2)
	f.book(10)
	l := f.loan(1, 10)

	assert.ErrorIs(t, f.engine.Members.Deregister(f.ctx, f.tx, 1), ErrExistingLoan)

	r := f.reserve(2, 10)
	assert.ErrorIs(t, f.engine.Members.Deregister(f.ctx, f.tx, 2), ErrExistingReservation)
	require.NoError(t, f.engine.Reservations.Cancel(f.ctx, f.tx, r.ID))
	require.NoError(t, f.engine.Members.Deregister(f.ctx, f.tx, 2))

	_, err := f.engine.Loans.End(f.ctx, f.tx, l.ID)
	require.NoError(t, err)
	require.NoError(t, f.engine.Members.Deregister(f.ctx, f.tx, 1))

	_, err = f.engine.Members.Get(f.ctx, f.tx, 1)
	assert.ErrorIs(t, err, ErrMissingEntity)
	loans, err := f.repos.Loans.FindBy(f.ctx, f.tx, ColMemberID, int64(1), ColLoanDate)
	require.NoError(t, err)
	assert.Empty(t, loans, "closed history leaves with the member")

	assert.ErrorIs(t, f.engine.Members.Deregister(f.ctx, f.tx, 1), ErrMissingEntity)
}

func TestAcquireBook(t *testing.T) {
	f := newFixture(t)
	borrower := int64(5)
	b := &Book{ID: 10, Title: "Dune", Author: "Herbert", AcquiredOn: time.Date(2019, 5, 1, 0, 0, 0, 0, time.UTC), BorrowerID: &borrower}

	require.NoError(t, f.engine.Books.Acquire(f.ctx, f.tx, b))
	assert.False(t, f.reloadBook(10).OnLoan(), "new books are on the shelf")

	assert.ErrorIs(t, f.engine.Books.Acquire(f.ctx, f.tx, &Book{ID: 10, Title: "Again", Author: "X", AcquiredOn: time.Now()}), ErrEntityExists)
	assert.ErrorIs(t, f.engine.Books.Acquire(f.ctx, f.tx, &Book{ID: 11, Title: "", Author: "X", AcquiredOn: time.Now()}), ErrInvalidArgument)
	assert.ErrorIs(t, f.engine.Books.Acquire(f.ctx, f.tx, &Book{ID: 11, Title: "T", Author: "X"}), ErrInvalidArgument)
	assert.ErrorIs(t, f.engine.Books.Acquire(f.ctx, f.tx, nil), ErrInvalidArgument)
}

func TestDisposeBook(t *testing.T) {
	f := newFixture(t)
	f.member(1, 2)
	f.member(2, 2)
	f.book(10)
	l := f.loan(1, 10)

	assert.ErrorIs(t, f.engine.Books.Dispose(f.ctx, f.tx, 10), ErrExistingLoan)

	r := f.reserve(2, 10)
	_, err := f.engine.Loans.End(f.ctx, f.tx, l.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, f.engine.Books.Dispose(f.ctx, f.tx, 10), ErrExistingReservation)

	require.NoError(t, f.engine.Reservations.Cancel(f.ctx, f.tx, r.ID))
	require.NoError(t, f.engine.Books.Dispose(f.ctx, f.tx, 10))

	_, err = f.engine.Books.Get(f.ctx, f.tx, 10)
	assert.ErrorIs(t, err, ErrMissingEntity)
	assert.ErrorIs(t, f.engine.Books.Dispose(f.ctx, f.tx, 10), ErrMissingEntity)
}

func TestBooksByAuthor(t *testing.T) {
	f := newFixture(t)
	at := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, b := range []*Book{
		{ID: 1, Title: "The Left Hand of Darkness", Author: "Le Guin", AcquiredOn: at},
		{ID: 2, Title: "A Wizard of Earthsea", Author: "Le Guin", AcquiredOn: at},
		{ID: 3, Title: "Kindred", Author: "Butler", AcquiredOn: at},
	} {
		require.NoError(t, f.engine.Books.Acquire(f.ctx, f.tx, b))
	}

	books, err := f.engine.Books.ByAuthor(f.ctx, f.tx, "Le Guin")
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "A Wizard of Earthsea", books[0].Title)

	_, err = f.engine.Books.ByAuthor(f.ctx, f.tx, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
