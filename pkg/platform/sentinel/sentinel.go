package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so the registry and the audit trail can translate them into domain
// errors:
//   - ErrNotFound: entity does not exist in the store
//   - ErrConflict: an entity with the same key or entry ID already exists
//   - ErrUnavailable: backing resource could not be reached
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
