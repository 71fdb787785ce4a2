package permission

import (
	dErrors "opgate/pkg/domain-errors"
)

// Operation is a privileged capability that can be granted and checked.
// Invariant: the value must be one of the declared constants.
//
// Usage: construct via ParseOperation at trust boundaries; direct casting
// bypasses validation.
type Operation string

const (
	OperationCreateUser      Operation = "create_user"
	OperationDeleteUser      Operation = "delete_user"
	OperationEditUser        Operation = "edit_user"
	OperationViewReports     Operation = "view_reports"
	OperationGenerateReports Operation = "generate_reports"
	OperationManageUnit      Operation = "manage_unit"
)

// operations lists every Operation in declaration order.
var operations = []Operation{
	OperationCreateUser,
	OperationDeleteUser,
	OperationEditUser,
	OperationViewReports,
	OperationGenerateReports,
	OperationManageUnit,
}

var validOperations = func() map[Operation]bool {
	m := make(map[Operation]bool, len(operations))
	for _, op := range operations {
		m[op] = true
	}
	return m
}()

// ParseOperation constructs an Operation from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unknown.
func ParseOperation(s string) (Operation, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "operation cannot be empty")
	}
	op := Operation(s)
	if !op.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown operation "+s)
	}
	return op, nil
}

// Operations returns every known operation in declaration order.
func Operations() []Operation {
	return append([]Operation{}, operations...)
}

// IsValid checks if the operation is one of the declared values.
func (o Operation) IsValid() bool {
	return validOperations[o]
}

func (o Operation) String() string {
	return string(o)
}
