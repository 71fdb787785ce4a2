package gate

import (
	"context"

	"opgate/internal/permission"
	id "opgate/pkg/domain"
)

// Body is the privileged work an Action guards. It only runs after the
// permission check passed.
type Body[T any] func(ctx context.Context, profile *permission.Profile, unitID id.UnitID) (T, error)

// Action binds a Body to the Operation that authorizes it.
type Action[T any] struct {
	Operation permission.Operation
	Body      Body[T]

	// SuccessDetails renders the details recorded on success. When nil the
	// entry reads "<operation> completed successfully".
	SuccessDetails func(T) string
}

// NewAction builds an Action for op.
func NewAction[T any](op permission.Operation, body Body[T], successDetails func(T) string) Action[T] {
	return Action[T]{
		Operation:      op,
		Body:           body,
		SuccessDetails: successDetails,
	}
}

func (a Action[T]) details(result T) string {
	if a.SuccessDetails != nil {
		return a.SuccessDetails(result)
	}
	return a.Operation.String() + " completed successfully"
}
