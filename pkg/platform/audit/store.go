//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks Store

package audit

import (
	"context"
	"errors"
	"fmt"
)

// Store is a durable backend for audit entries. Append must not return until
// the entry is on stable storage; Load returns every entry in append order and
// an empty slice when nothing was written yet.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	Load(ctx context.Context) ([]Entry, error)
}

// ErrPersistence marks failures to write the audit trail. A caller that sees it
// must treat the surrounding operation as failed.
var ErrPersistence = errors.New("audit persistence failed")

// PersistenceError reports that an entry could not be made durable.
type PersistenceError struct {
	EntryID   string
	Operation string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: entry %s (%s): %v", ErrPersistence, e.EntryID, e.Operation, e.Err)
}

// Unwrap exposes both the ErrPersistence marker and the backend cause.
func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// IsPersistenceError reports whether err is or wraps a PersistenceError.
func IsPersistenceError(err error) bool {
	return errors.Is(err, ErrPersistence)
}
