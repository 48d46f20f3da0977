package library

import "errors"

// Storage and session errors.
var (
	ErrConnection          = errors.New("connection error")
	ErrTransaction         = errors.New("transaction error")
	ErrInvalidSession      = errors.New("invalid session")
	ErrInvalidCriterion    = errors.New("invalid criterion")
	ErrInvalidSortProperty = errors.New("invalid sort property")
)

// Validation errors.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrEntityExists    = errors.New("entity already exists")
)

// Not-found errors.
var (
	ErrMissingEntity      = errors.New("entity not found")
	ErrMissingLoan        = errors.New("no active loan")
	ErrMissingReservation = errors.New("reservation not found")
)

// Business-rule conflicts.
var (
	ErrExistingLoan        = errors.New("existing loan")
	ErrExistingReservation = errors.New("existing reservation")
	ErrLoanLimitExceeded   = errors.New("loan limit exceeded")
)

// StorageError reports a failure of the backing store while running Op.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return "storage: " + e.Op + ": " + e.Err.Error() }

func (e *StorageError) Unwrap() error { return e.Err }

// ServiceError is the single error kind returned by LibraryManager. The
// original cause stays reachable through errors.Is and errors.As.
type ServiceError struct {
	Op  string
	Err error
}

func (e *ServiceError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *ServiceError) Unwrap() error { return e.Err }

func wrapService(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ServiceError{Op: op, Err: err}
}
