package audit

import (
	"time"

	id "opgate/pkg/domain"
	dErrors "opgate/pkg/domain-errors"
)

// Status is the outcome of one gated action invocation.
type Status string

const (
	// StatusSuccess means the permission check passed and the action completed.
	StatusSuccess Status = "SUCCESS"
	// StatusFailed means the permission check denied the action; the body never ran.
	StatusFailed Status = "FAILED"
	// StatusError means the action body ran and returned an error or panicked.
	StatusError Status = "ERROR"
)

var validStatuses = map[Status]bool{
	StatusSuccess: true,
	StatusFailed:  true,
	StatusError:   true,
}

// ParseStatus constructs a Status from external input (CLI filters, stored records).
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid audit status")
	}
	return st, nil
}

// IsValid reports whether s is one of the three outcome statuses.
func (s Status) IsValid() bool {
	return validStatuses[s]
}

func (s Status) String() string {
	return string(s)
}

// DetailsInsufficientPermissions is recorded on every denied invocation.
const DetailsInsufficientPermissions = "Insufficient permissions"

// Entry is the immutable record of one gated action's outcome. UnitID and
// Details are optional; their zero values are persisted as null.
type Entry struct {
	ID           id.EntryID
	OperatorCode id.OperatorCode
	OperatorRole string
	Operation    string
	UnitID       id.UnitID
	Timestamp    time.Time
	Status       Status
	Details      string
}

// Validate checks the fields every persisted entry must carry.
func (e Entry) Validate() error {
	if e.ID.IsNil() {
		return dErrors.New(dErrors.CodeInvariantViolation, "audit entry requires ID")
	}
	if e.OperatorCode.IsNil() {
		return dErrors.New(dErrors.CodeInvariantViolation, "audit entry requires operator code")
	}
	if e.Operation == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "audit entry requires operation")
	}
	if e.Timestamp.IsZero() {
		return dErrors.New(dErrors.CodeInvariantViolation, "audit entry requires timestamp")
	}
	if !e.Status.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "audit entry has invalid status")
	}
	return nil
}
