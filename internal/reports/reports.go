// Package reports holds the report-generation action the demo runs through
// the gate.
package reports

import (
	"context"
	"fmt"
	"io"
	"time"

	"opgate/internal/gate"
	"opgate/internal/permission"
	id "opgate/pkg/domain"
)

// DetailsGenerated is recorded on every successful generation.
const DetailsGenerated = "Report generated successfully"

// Report describes one generated report.
type Report struct {
	UnitID      id.UnitID
	GeneratedBy id.OperatorCode
	GeneratedAt time.Time
}

// GenerateAction returns the generate_reports action. Progress is written to out.
func GenerateAction(out io.Writer, now func() time.Time) gate.Action[Report] {
	if now == nil {
		now = time.Now
	}
	return gate.NewAction(permission.OperationGenerateReports,
		func(ctx context.Context, profile *permission.Profile, unitID id.UnitID) (Report, error) {
			if err := ctx.Err(); err != nil {
				return Report{}, err
			}
			if _, err := fmt.Fprintf(out, "Generating report for unit %s\n", unitID); err != nil {
				return Report{}, fmt.Errorf("write report progress: %w", err)
			}
			return Report{
				UnitID:      unitID,
				GeneratedBy: profile.OperatorCode(),
				GeneratedAt: now().UTC(),
			}, nil
		},
		func(Report) string { return DetailsGenerated },
	)
}
