package store

import (
	"errors"
	"fmt"
)

// Sentinel errors adapters are required to surface. The engine dispatches on
// them with errors.Is, so adapter implementations should wrap rather than
// replace them.
var (
	// ErrDuplicateID is returned by SaveList/SaveItem when the id already
	// exists. It signals the caller to switch to the update path; it is
	// never retried blindly.
	ErrDuplicateID = errors.New("record id already exists")

	// ErrNotFound is returned by lookups and updates for unknown ids.
	ErrNotFound = errors.New("record not found")
)

// DuplicateID wraps ErrDuplicateID with the offending resource and id.
func DuplicateID(resource, id string) error {
	return fmt.Errorf("%s %q: %w", resource, id, ErrDuplicateID)
}

// NotFound wraps ErrNotFound with the missing resource and id.
func NotFound(resource, id string) error {
	return fmt.Errorf("%s %q: %w", resource, id, ErrNotFound)
}

// TransientError marks an adapter failure as retryable (network or
// timeout-class). Adapters wrap their transport errors in it so the engine
// can distinguish retry-worthy failures from terminal ones.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient store failure during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError for the named operation.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err is retry-worthy.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
