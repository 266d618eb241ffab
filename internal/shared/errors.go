package shared

import "errors"

var (
	// ErrForbidden indicates that authorization failed.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict indicates a state-machine precondition was violated.
	ErrConflict = errors.New("conflict")
	// ErrNotActive indicates the election is outside its active window.
	ErrNotActive = errors.New("election not active")
	// ErrAlreadyVoted indicates the voter already cast a vote in the election.
	ErrAlreadyVoted = errors.New("already voted")
	// ErrInvalidCandidate indicates the candidate does not belong to the election.
	ErrInvalidCandidate = errors.New("invalid candidate")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrStoreFailure indicates the persistence layer failed.
	ErrStoreFailure = errors.New("store failure")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
)

// StoreError wraps a driver error so that it matches both ErrStoreFailure and the cause.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return e.Op + ": " + ErrStoreFailure.Error() + ": " + e.Err.Error()
}

// Unwrap exposes the sentinel and the underlying error.
func (e *StoreError) Unwrap() []error {
	return []error{ErrStoreFailure, e.Err}
}

// StoreFailure wraps err as a StoreError. Nil stays nil.
func StoreFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
