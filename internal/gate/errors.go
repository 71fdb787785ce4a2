package gate

import (
	"errors"
	"fmt"

	"opgate/internal/permission"
	id "opgate/pkg/domain"
	dErrors "opgate/pkg/domain-errors"
)

// PermissionDeniedError is returned when a profile lacks the operation in the
// requested scope. The action body did not run.
type PermissionDeniedError struct {
	Operation    permission.Operation
	UnitID       id.UnitID
	OperatorCode id.OperatorCode
}

func (e *PermissionDeniedError) Error() string {
	if e.UnitID.IsNil() {
		return fmt.Sprintf("permission denied: %s may not %s", e.OperatorCode, e.Operation)
	}
	return fmt.Sprintf("permission denied: %s may not %s in unit %s", e.OperatorCode, e.Operation, e.UnitID)
}

// DomainCode classifies denials as dErrors.CodeForbidden.
func (e *PermissionDeniedError) DomainCode() dErrors.Code {
	return dErrors.CodeForbidden
}

// IsPermissionDenied reports whether err is or wraps a PermissionDeniedError.
func IsPermissionDenied(err error) bool {
	var denied *PermissionDeniedError
	return errors.As(err, &denied)
}
