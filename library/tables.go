package library

import "github.com/doug-martin/goqu/v9"

// Column names usable as FindBy fields and sort properties.
const (
	ColMemberID        = "idMembre"
	ColMemberName      = "nom"
	ColPhone           = "telephone"
	ColLoanLimit       = "limitePret"
	ColLoanCount       = "nbPret"
	ColBookID          = "idLivre"
	ColTitle           = "titre"
	ColAuthor          = "auteur"
	ColAcquiredOn      = "dateAcquisition"
	ColLoanDate        = "datePret"
	ColLoanID          = "idPret"
	ColReturnDate      = "dateRetour"
	ColReservationID   = "idReservation"
	ColReservationDate = "dateReservation"
)

var memberTable = table[Member]{
	name:    "membre",
	key:     ColMemberID,
	columns: []string{ColMemberID, ColMemberName, ColPhone, ColLoanLimit, ColLoanCount},
	keyOf:   func(m *Member) int64 { return m.ID },
	setKey:  func(m *Member, id int64) { m.ID = id },
	record: func(m *Member) goqu.Record {
		return goqu.Record{
			ColMemberID:   m.ID,
			ColMemberName: m.Name,
			ColPhone:      m.Phone,
			ColLoanLimit:  m.LoanLimit,
			ColLoanCount:  m.LoanCount,
		}
	},
}

var bookTable = table[Book]{
	name:    "livre",
	key:     ColBookID,
	columns: []string{ColBookID, ColTitle, ColAuthor, ColAcquiredOn, ColMemberID, ColLoanDate},
	keyOf:   func(b *Book) int64 { return b.ID },
	setKey:  func(b *Book, id int64) { b.ID = id },
	record: func(b *Book) goqu.Record {
		return goqu.Record{
			ColBookID:     b.ID,
			ColTitle:      b.Title,
			ColAuthor:     b.Author,
			ColAcquiredOn: b.AcquiredOn,
			ColMemberID:   nullable(b.BorrowerID),
			ColLoanDate:   nullable(b.LoanDate),
		}
	},
}

var loanTable = table[Loan]{
	name:    "pret",
	key:     ColLoanID,
	columns: []string{ColLoanID, ColMemberID, ColBookID, ColLoanDate, ColReturnDate},
	keyOf:   func(l *Loan) int64 { return l.ID },
	setKey:  func(l *Loan, id int64) { l.ID = id },
	record: func(l *Loan) goqu.Record {
		return goqu.Record{
			ColLoanID:     l.ID,
			ColMemberID:   l.MemberID,
			ColBookID:     l.BookID,
			ColLoanDate:   l.LoanDate,
			ColReturnDate: nullable(l.ReturnDate),
		}
	},
}

var reservationTable = table[Reservation]{
	name:    "reservation",
	key:     ColReservationID,
	columns: []string{ColReservationID, ColMemberID, ColBookID, ColReservationDate},
	keyOf:   func(r *Reservation) int64 { return r.ID },
	setKey:  func(r *Reservation, id int64) { r.ID = id },
	record: func(r *Reservation) goqu.Record {
		return goqu.Record{
			ColReservationID:   r.ID,
			ColMemberID:        r.MemberID,
			ColBookID:          r.BookID,
			ColReservationDate: r.Date,
		}
	},
}

// Repositories bundles the storage mapping of every entity.
type Repositories struct {
	Members      Repository[Member]
	Books        Repository[Book]
	Loans        Repository[Loan]
	Reservations Repository[Reservation]
}

// NewRepositories returns SQL-backed repositories for all entities.
func NewRepositories() Repositories {
	return Repositories{
		Members:      newSQLRepository(memberTable),
		Books:        newSQLRepository(bookTable),
		Loans:        newSQLRepository(loanTable),
		Reservations: newSQLRepository(reservationTable),
	}
}
