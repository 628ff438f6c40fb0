package authz

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownRole indicates the user's role is absent from the registry.
	ErrUnknownRole = errors.New("authz: unknown role")
	// ErrUnknownService indicates the service key is absent from the catalog.
	ErrUnknownService = errors.New("authz: unknown service")
	// ErrMissingReason rejects grant mutations without a justification.
	ErrMissingReason = errors.New("authz: reason required")
	// ErrInvalidLimit rejects non-positive history limits.
	ErrInvalidLimit = errors.New("authz: limit must be positive")
)

// PartialWriteError reports that exactly one half of a grant/audit write
// pair succeeded. It is never swallowed: a grant without its audit entry
// is a compliance gap the caller must reconcile.
type PartialWriteError struct {
	UserID       int64
	ServiceKey   string
	GrantWritten bool
	AuditWritten bool
	Cause        error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("authz: partial write for user %d service %s (grant=%t audit=%t): %v",
		e.UserID, e.ServiceKey, e.GrantWritten, e.AuditWritten, e.Cause)
}

func (e *PartialWriteError) Unwrap() error { return e.Cause }

// PersistenceError wraps a storage-layer failure untouched; the core
// never retries, retry policy belongs to the caller.
type PersistenceError struct {
	Op    string
	Cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("authz: persistence failure during %s: %v", e.Op, e.Cause)
}

func (e *PersistenceError) Unwrap() error { return e.Cause }

// WrapPersistence annotates err with the failing operation. Nil errors
// pass through.
func WrapPersistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Cause: err}
}
