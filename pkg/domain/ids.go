package domain

import (
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "opgate/pkg/domain-errors"
)

// maxKeyLength bounds human-assigned identifiers such as unit IDs and operator codes.
const maxKeyLength = 128

// UnitID identifies an organizational unit that permissions can be scoped to.
// The zero value means "no unit": an unscoped request or audit entry.
type UnitID string

// OperatorCode identifies the actor recorded on audit entries.
type OperatorCode string

// EntryID is the globally unique identifier of an audit entry.
type EntryID uuid.UUID

// ParseUnitID validates a unit identifier from external input.
//
// Errors: returns CodeInvalidInput when the value is empty, too long or
// contains characters outside [A-Za-z0-9._:-].
func ParseUnitID(s string) (UnitID, error) {
	if err := validateKey("unit ID", s); err != nil {
		return "", err
	}
	return UnitID(s), nil
}

// ParseOperatorCode validates an operator code from external input.
func ParseOperatorCode(s string) (OperatorCode, error) {
	if err := validateKey("operator code", s); err != nil {
		return "", err
	}
	return OperatorCode(s), nil
}

// NewEntryID returns a fresh random entry ID.
func NewEntryID() EntryID {
	return EntryID(uuid.New())
}

// ParseEntryID parses a UUID string, rejecting the nil UUID.
func ParseEntryID(s string) (EntryID, error) {
	if s == "" {
		return EntryID{}, dErrors.New(dErrors.CodeInvalidInput, "entry ID cannot be empty")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return EntryID{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid entry ID")
	}
	if parsed == uuid.Nil {
		return EntryID{}, dErrors.New(dErrors.CodeInvalidInput, "entry ID cannot be nil")
	}
	return EntryID(parsed), nil
}

func (u UnitID) String() string { return string(u) }

// IsNil reports whether no unit is set.
func (u UnitID) IsNil() bool { return u == "" }

func (c OperatorCode) String() string { return string(c) }

func (c OperatorCode) IsNil() bool { return c == "" }

func (e EntryID) String() string { return uuid.UUID(e).String() }

func (e EntryID) IsNil() bool { return uuid.UUID(e) == uuid.Nil }

func validateKey(field, s string) error {
	if s == "" {
		return dErrors.New(dErrors.CodeInvalidInput, field+" cannot be empty")
	}
	if len(s) > maxKeyLength {
		return dErrors.New(dErrors.CodeInvalidInput, field+" is too long")
	}
	if !utf8.ValidString(s) {
		return dErrors.New(dErrors.CodeInvalidInput, field+" must be valid UTF-8")
	}
	for _, r := range s {
		if !isKeyRune(r) {
			return dErrors.New(dErrors.CodeInvalidInput, field+" contains invalid characters")
		}
	}
	return nil
}

func isKeyRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '_', r == '.', r == ':':
		return true
	}
	return false
}
