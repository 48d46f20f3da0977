package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"library-loans/library"

	"github.com/spf13/cobra"
)

// operation is one "noun verb ARGS..." command. It runs inside a transaction
// that is committed when it returns nil.
type operation struct {
	verb  string
	args  []string
	short string
	run   func(ctx context.Context, lm *library.LibraryManager, tx *library.Transaction, args []string, out io.Writer) error
}

type noun struct {
	name  string
	short string
	ops   []operation
}

var nouns = []noun{
	{name: "member", short: "Register and look up members", ops: []operation{
		{"register", []string{"ID", "NAME", "PHONE", "LIMIT"}, "Register a member", registerMember},
		{"deregister", []string{"ID"}, "Remove a member without loans or reservations", deregisterMember},
		{"show", []string{"ID"}, "Show a member", showMember},
		{"loans", []string{"ID"}, "List a member's loans", memberLoans},
		{"reservations", []string{"ID"}, "List a member's reservations", memberReservations},
	}},
	{name: "book", short: "Acquire, dispose of and look up books", ops: []operation{
		{"acquire", []string{"ID", "TITLE", "AUTHOR", "DATE"}, "Add a book acquired on DATE (YYYY-MM-DD)", acquireBook},
		{"dispose", []string{"ID"}, "Remove a book that is neither lent nor reserved", disposeBook},
		{"show", []string{"ID"}, "Show a book and its current loan", showBook},
		{"by-author", []string{"AUTHOR"}, "List an author's books", booksByAuthor},
		{"queue", []string{"ID"}, "List the reservations on a book", bookQueue},
	}},
	{name: "loan", short: "Lend and return books", ops: []operation{
		{"start", []string{"MEMBER", "BOOK"}, "Lend a book to a member", startLoan},
		{"renew", []string{"LOAN"}, "Renew a loan", renewLoan},
		{"end", []string{"LOAN"}, "Return a book", endLoan},
	}},
	{name: "reservation", short: "Queue members for books on loan", ops: []operation{
		{"place", []string{"MEMBER", "BOOK"}, "Reserve a book on loan", placeReservation},
		{"fulfill", []string{"RESERVATION"}, "Lend a returned book to the first reservation", fulfillReservation},
		{"cancel", []string{"RESERVATION"}, "Cancel a reservation", cancelReservation},
	}},
}

func (a *app) nounCommand(n noun) *cobra.Command {
	cmd := &cobra.Command{Use: n.name, Short: n.short}
	for _, op := range n.ops {
		cmd.AddCommand(&cobra.Command{
			Use:   op.verb + " " + strings.Join(op.args, " "),
			Short: op.short,
			Args:  cobra.ExactArgs(len(op.args)),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.execute(cmd.Context(), op, args); err != nil {
					return a.fail(err)
				}
				return nil
			},
		})
	}
	return cmd
}

// execute runs op in its own transaction.
func (a *app) execute(ctx context.Context, op operation, args []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return a.mgr.InTransaction(ctx, func(tx *library.Transaction) error {
		return op.run(ctx, a.mgr, tx, args, a.out)
	})
}

// lookup finds the operation named by the first two fields of a command line.
func lookup(fields []string) (operation, error) {
	if len(fields) < 2 {
		return operation{}, fmt.Errorf("%w: expected NOUN VERB [ARGS...]", library.ErrInvalidArgument)
	}
	for _, n := range nouns {
		if n.name != fields[0] {
			continue
		}
		for _, op := range n.ops {
			if op.verb != fields[1] {
				continue
			}
			if got := len(fields) - 2; got != len(op.args) {
				return operation{}, fmt.Errorf("%w: usage: %s %s %s", library.ErrInvalidArgument, n.name, op.verb, strings.Join(op.args, " "))
			}
			return op, nil
		}
	}
	return operation{}, fmt.Errorf("%w: unknown command %q", library.ErrInvalidArgument, fields[0]+" "+fields[1])
}

func parseID(name, s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number, got %q", library.ErrInvalidArgument, name, s)
	}
	return id, nil
}

func parseIDs(names []string, args []string) ([]int64, error) {
	ids := make([]int64, len(names))
	for i, name := range names {
		id, err := parseID(name, args[i])
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

// ------------------ Members ------------------

func registerMember(ctx context.Context, lm *library.LibraryManager, tx *library.Transaction, args []string, out io.Writer) error {
	id, err := parseID("ID", args[0])
	if err != nil {
		return err
	}
	limit, err := strconv.Atoi(args[3])
	if err != nil {
		return fmt.Errorf("%w: LIMIT must be a number, got %q", library.ErrInvalidArgument, args[3])
	}
	m, err := lm.RegisterMember(ctx, tx, id, args[1], args[2], limit)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Registered member %d '%s' (loan limit %d)\n", m.ID, m.Name, m.LoanLimit)
	return nil
}

func deregisterMember(ctx context.Context, lm *library.LibraryManager, tx *library.Transaction, args []string, out io.Writer) error {
	id, err := parseID("ID", args[0])
	if err != nil {
		return err
	}
	if err := lm.DeregisterMember(ctx, tx, id); err != nil {
		return err
	}
	fmt.Fprintf(out, "Deregistered member %d\n", id)
	return nil
}

func showMember(ctx context.Context, lm *library.LibraryManager, tx *library.Transaction, args []string, out io.Writer) error {
	id, err := parseID("ID", args[0])
	if err != nil {
		return err
	}
	m, err := lm.GetMember(ctx, tx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%-5s %-30s %-20s %s\n", "ID", "Name", "Phone", "Loans")
	fmt.Fprintln(out, strings.Repeat("-", 65))
	fmt.Fprintf(out, "%-5d %-30s %-20s %d/%d\n", m.ID, m.Name, m.Phone, m.LoanCount, m.LoanLimit)
	return nil
}

func memberLoans(ctx context.Context, lm *library.LibraryManager, tx *library.Transaction, args []string, out io.Writer) error {
	id, err := parseID("ID", args[0])
	if err != nil {
		return err
	}
	loans, err := lm.MemberLoans(ctx, tx, id)
	if err != nil {
		return err
	}
	printLoans(out, loans)
	return nil
}

func memberReservations(ctx context.Context, lm *library.LibraryManager, tx *library.Transaction, args []string, out io.Writer) error {
	id, err := parseID("ID", args[0])
	if err != nil {
		return err
	}
	rs, err := lm.MemberReservations(ctx, tx, id)
	if err != nil {
		return err
	}
	printReservations(out, rs)
	return nil
}

// ------------------ Books ------------------

func acquireBook(ctx context.Context, lm *library.LibraryManager, tx *library.Transaction, args []string, out io.Writer) error {
	id, err := parseID("ID", args[0])
	if err != nil {
		return err
	}
	acquired, err := library.ParseDate(args[3])
	if err != nil {
		return err
	}
	b, err := lm.AcquireBook(ctx, tx, id, args[1], args[2], acquired)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Acquired book %d '%s' by %s\n", b.ID, b.Title, b.Author)
	return nil
}

func disposeBook(ctx context.Context, lm *library.LibraryManager, tx *library.Transaction, args []string, out io.Writer) error {
	id, err := parseID("ID", args[0])
	if err != nil {
		return err
	}
	if err := lm.DisposeBook(ctx, tx, id); err != nil {
		return err
	}
	fmt.Fprintf(out, "Disposed of book %d\n", id)
	return nil
}

func showBook(ctx context.Context, lm *library.LibraryManager, tx *library.Transaction, args []string, out io.Writer) error {
	id, err := parseID("ID", args[0])
	if err != nil {
		return err
	}
	b, err := lm.GetBook(ctx, tx, id)
	if err != nil {
		return err
	}
	printBooks(out, []library.Book{*b})

	l, err := lm.ActiveLoan(ctx, tx, id)
	if err != nil {
		return err
	}
	if l == nil {
		fmt.Fprintln(out, "Available for loan")
		return nil
	}
	fmt.Fprintf(out, "On loan %d to member %d since %s\n", l.ID, l.MemberID, library.FormatDate(l.LoanDate))
	return nil
}

func booksByAuthor(ctx context.Context, lm *library.LibraryManager, tx *library.Transaction, args []string, out io.Writer) error {
	books, err := lm.BooksByAuthor(ctx, tx, args[0])
	if err != nil {
		return err
	}
	if len(books) == 0 {
		fmt.Fprintf(out, "No books by '%s'.\n", args[0])
		return nil
	}
	printBooks(out, books)
	return nil
}

func bookQueue(ctx context.Context, lm *library.LibraryManager, tx *library.Transaction, args []string, out io.Writer) error {
	id, err := parseID("ID", args[0])
	if err != nil {
		return err
	}
	rs, err := lm.ReservationQueue(ctx, tx, id)
	if err != nil {
		return err
	}
	printReservations(out, rs)
	return nil
}

// ------------------ Circulation ------------------

func startLoan(ctx context.Context, lm *library.LibraryManager, tx *library.Transaction, args []string, out io.Writer) error {
	ids, err := parseIDs([]string{"MEMBER", "BOOK"}, args)
	if err != nil {
		return err
	}
	l, err := lm.StartLoan(ctx, tx, ids[0], ids[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Loan %d: book %d lent to member %d on %s\n", l.ID, l.BookID, l.MemberID, library.FormatDate(l.LoanDate))
	return nil
}

func renewLoan(ctx context.Context, lm *library.LibraryManager, tx *library.Transaction, args []string, out io.Writer) error {
	id, err := parseID("LOAN", args[0])
	if err != nil {
		return err
	}
	l, err := lm.RenewLoan(ctx, tx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Loan %d renewed on %s\n", l.ID, library.FormatDate(l.LoanDate))
	return nil
}

func endLoan(ctx context.Context, lm *library.LibraryManager, tx *library.Transaction, args []string, out io.Writer) error {
	id, err := parseID("LOAN", args[0])
	if err != nil {
		return err
	}
	l, err := lm.EndLoan(ctx, tx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Loan %d ended: book %d returned by member %d\n", l.ID, l.BookID, l.MemberID)

	queue, err := lm.ReservationQueue(ctx, tx, l.BookID)
	if err != nil {
		return err
	}
	if len(queue) > 0 {
		fmt.Fprintf(out, "Reservation %d of member %d is next in line\n", queue[0].ID, queue[0].MemberID)
	}
	return nil
}

// ------------------ Reservations ------------------

func placeReservation(ctx context.Context, lm *library.LibraryManager, tx *library.Transaction, args []string, out io.Writer) error {
	ids, err := parseIDs([]string{"MEMBER", "BOOK"}, args)
	if err != nil {
		return err
	}
	r, err := lm.PlaceReservation(ctx, tx, ids[0], ids[1])
	if err != nil {
		return err
	}
	queue, err := lm.ReservationQueue(ctx, tx, r.BookID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Reservation %d: member %d queued for book %d (position %d)\n", r.ID, r.MemberID, r.BookID, len(queue))
	return nil
}

func fulfillReservation(ctx context.Context, lm *library.LibraryManager, tx *library.Transaction, args []string, out io.Writer) error {
	id, err := parseID("RESERVATION", args[0])
	if err != nil {
		return err
	}
	l, err := lm.FulfillReservation(ctx, tx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Reservation %d fulfilled: loan %d of book %d to member %d\n", id, l.ID, l.BookID, l.MemberID)
	return nil
}

func cancelReservation(ctx context.Context, lm *library.LibraryManager, tx *library.Transaction, args []string, out io.Writer) error {
	id, err := parseID("RESERVATION", args[0])
	if err != nil {
		return err
	}
	if err := lm.CancelReservation(ctx, tx, id); err != nil {
		return err
	}
	fmt.Fprintf(out, "Reservation %d cancelled\n", id)
	return nil
}

// ------------------ Output ------------------

func printBooks(out io.Writer, books []library.Book) {
	fmt.Fprintf(out, "%-5s %-30s %-25s %-10s %s\n", "ID", "Title", "Author", "Acquired", "Borrower")
	fmt.Fprintln(out, strings.Repeat("-", 85))
	for i := range books {
		fmt.Fprintln(out, library.PrettyBook(&books[i]))
	}
}

func printLoans(out io.Writer, loans []library.Loan) {
	if len(loans) == 0 {
		fmt.Fprintln(out, "No loans.")
		return
	}
	fmt.Fprintf(out, "%-6s %-6s %-6s %-12s %s\n", "Loan", "Member", "Book", "Lent", "Returned")
	fmt.Fprintln(out, strings.Repeat("-", 50))
	for _, l := range loans {
		returned := "-"
		if l.ReturnDate != nil {
			returned = library.FormatDate(*l.ReturnDate)
		}
		fmt.Fprintf(out, "%-6d %-6d %-6d %-12s %s\n", l.ID, l.MemberID, l.BookID, library.FormatDate(l.LoanDate), returned)
	}
}

func printReservations(out io.Writer, rs []library.Reservation) {
	if len(rs) == 0 {
		fmt.Fprintln(out, "No reservations.")
		return
	}
	fmt.Fprintf(out, "%-10s %-12s %-6s %-6s %s\n", "Position", "Reservation", "Member", "Book", "Date")
	fmt.Fprintln(out, strings.Repeat("-", 55))
	for i, r := range rs {
		fmt.Fprintf(out, "%-10d %-12d %-6d %-6d %s\n", i+1, r.ID, r.MemberID, r.BookID, library.FormatDate(r.Date))
	}
}
