package library

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testClock advances one minute on every reading so dates are strictly
// increasing and predictable.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Minute)
	return c.now
}

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{Server: ServerLocal, Schema: "test", DataDir: t.TempDir()}
}

func tempDB(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func beginTx(t *testing.T, db *Database) *Transaction {
	t.Helper()
	tx, err := db.Begin(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { tx.Close() })
	return tx
}

// fixture runs rule engine calls inside one open transaction.
type fixture struct {
	t      *testing.T
	ctx    context.Context
	db     *Database
	tx     *Transaction
	engine *RuleEngine
	repos  Repositories
	clock  *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := newTestClock()
	db := tempDB(t)
	repos := NewRepositories()
	return &fixture{
		t:      t,
		ctx:    context.Background(),
		db:     db,
		tx:     beginTx(t, db),
		engine: NewRuleEngine(repos, WithClock(clock.Now)),
		repos:  repos,
		clock:  clock,
	}
}

func (f *fixture) member(id int64, limit int) *Member {
	f.t.Helper()
	m := &Member{ID: id, Name: "Member", Phone: "555-0100", LoanLimit: limit}
	require.NoError(f.t, f.engine.Members.Register(f.ctx, f.tx, m))
	return m
}

func (f *fixture) book(id int64) *Book {
	f.t.Helper()
	b := &Book{ID: id, Title: "Title", Author: "Author", AcquiredOn: time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)}
	require.NoError(f.t, f.engine.Books.Acquire(f.ctx, f.tx, b))
	return b
}

func (f *fixture) loan(memberID, bookID int64) *Loan {
	f.t.Helper()
	l, err := f.engine.Loans.Start(f.ctx, f.tx, memberID, bookID)
	require.NoError(f.t, err)
	return l
}

func (f *fixture) reserve(memberID, bookID int64) *Reservation {
	f.t.Helper()
	r, err := f.engine.Reservations.Place(f.ctx, f.tx, memberID, bookID)
	require.NoError(f.t, err)
	return r
}

func (f *fixture) reloadMember(id int64) *Member {
	f.t.Helper()
	m, err := f.repos.Members.Read(f.ctx, f.tx, id)
	require.NoError(f.t, err)
	require.NotNil(f.t, m)
	return m
}

func (f *fixture) reloadBook(id int64) *Book {
	f.t.Helper()
	b, err := f.repos.Books.Read(f.ctx, f.tx, id)
	require.NoError(f.t, err)
	require.NotNil(f.t, b)
	return b
}

func (f *fixture) reloadLoan(id int64) *Loan {
	f.t.Helper()
	l, err := f.repos.Loans.Read(f.ctx, f.tx, id)
	require.NoError(f.t, err)
	require.NotNil(f.t, l)
	return l
}

// requireMemberInvariant checks 0 <= count <= limit.
func (f *fixture) requireMemberInvariant(id int64) {
	f.t.Helper()
	m := f.reloadMember(id)
	require.GreaterOrEqual(f.t, m.LoanCount, 0)
	require.LessOrEqual(f.t, m.LoanCount, m.LoanLimit)
}

// requireSingleActiveLoan checks a book has at most one open loan and that
// it agrees with the book's borrower.
func (f *fixture) requireSingleActiveLoan(bookID int64) {
	f.t.Helper()
	loans, err := f.repos.Loans.FindBy(f.ctx, f.tx, ColBookID, bookID, ColLoanDate)
	require.NoError(f.t, err)
	var open []Loan
	for _, l := range loans {
		if l.Active() {
			open = append(open, l)
		}
	}
	require.LessOrEqual(f.t, len(open), 1)
	b := f.reloadBook(bookID)
	if len(open) == 1 {
		require.True(f.t, b.LentTo(open[0].MemberID))
	} else {
		require.False(f.t, b.OnLoan())
	}
}
