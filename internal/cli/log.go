package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"opgate/internal/permission"
	"opgate/internal/ui"
	id "opgate/pkg/domain"
	dErrors "opgate/pkg/domain-errors"
	audit "opgate/pkg/platform/audit"
)

const dateLayout = "2006-01-02"

type logOptions struct {
	operator  string
	unit      string
	operation string
	status    string
	since     string
	until     string
	limit     int
	reverse   bool
	json      bool
}

func newLogCmd(g *globalOptions) *cobra.Command {
	opts := &logOptions{}
	cmd := &cobra.Command{
		Use:   "log",
		Short: "View the audit trail",
		Long: `Displays the audit trail of gated operations.

Shows who ran which operation, in which unit, when, and with what outcome.
--since and --until accept a date (YYYY-MM-DD) or an RFC 3339 timestamp and
are inclusive; a date passed to --until covers the whole day.

Examples:
  opgatectl log                           # full trail
  opgatectl log -n 10                     # last 10 entries
  opgatectl log --operator ADM002         # one operator
  opgatectl log --unit UNIT1 --status FAILED
  opgatectl log --since 2024-01-01 --until 2024-01-31
  opgatectl log --json                    # JSON records`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLog(cmd.Context(), g, opts, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.operator, "operator", "", "filter by operator code")
	f.StringVar(&opts.unit, "unit", "", "filter by unit ID")
	f.StringVar(&opts.operation, "operation", "", "filter by operation")
	f.StringVar(&opts.status, "status", "", "filter by status: SUCCESS, FAILED, ERROR")
	f.StringVar(&opts.since, "since", "", "show entries at or after this time")
	f.StringVar(&opts.until, "until", "", "show entries at or before this time")
	f.IntVarP(&opts.limit, "number", "n", 0, "show only the last n matching entries")
	f.BoolVar(&opts.reverse, "reverse", false, "show most recent entries first")
	f.BoolVar(&opts.json, "json", false, "output as a JSON array of records")
	return cmd
}

func runLog(ctx context.Context, g *globalOptions, opts *logOptions, out io.Writer) error {
	filter, err := opts.filter()
	if err != nil {
		return err
	}

	a, err := g.openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	total := a.Trail.Len()
	entries := a.Trail.Query(filter)
	if opts.limit > 0 && len(entries) > opts.limit {
		entries = entries[len(entries)-opts.limit:]
	}
	if opts.reverse {
		slices.Reverse(entries)
	}

	if opts.json {
		records := make([]audit.Record, 0, len(entries))
		for _, e := range entries {
			records = append(records, audit.ToRecord(e))
		}
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal entries to JSON: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	if len(entries) == 0 {
		if total == 0 {
			fmt.Fprintln(out, "No audit entries found.")
		} else {
			fmt.Fprintln(out, "No audit entries found matching the filters.")
		}
		return nil
	}
	for _, e := range entries {
		writeEntryLine(out, e)
	}
	return nil
}

func (o *logOptions) filter() (audit.Filter, error) {
	var f audit.Filter
	if o.operator != "" {
		code, err := id.ParseOperatorCode(o.operator)
		if err != nil {
			return f, err
		}
		f.OperatorCode = code
	}
	if o.unit != "" {
		unit, err := id.ParseUnitID(o.unit)
		if err != nil {
			return f, err
		}
		f.UnitID = unit
	}
	if o.operation != "" {
		op, err := permission.ParseOperation(o.operation)
		if err != nil {
			return f, err
		}
		f.Operation = op.String()
	}
	if o.status != "" {
		status, err := audit.ParseStatus(o.status)
		if err != nil {
			return f, err
		}
		f.Status = status
	}
	var err error
	if f.Since, err = parseBound(o.since, false); err != nil {
		return f, err
	}
	if f.Until, err = parseBound(o.until, true); err != nil {
		return f, err
	}
	return f, nil
}

// parseBound reads a date or RFC 3339 timestamp. A bare date used as an upper
// bound extends to the end of that day.
func parseBound(s string, upper bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	day, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("invalid time %q, use YYYY-MM-DD or RFC 3339", s))
	}
	if upper {
		return day.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
	}
	return day, nil
}

func writeEntryLine(out io.Writer, e audit.Entry) {
	unit := "-"
	if !e.UnitID.IsNil() {
		unit = e.UnitID.String()
	}
	fmt.Fprintf(out, "%-26s  %-8s  %-16s  %-8s  %-7s  %s\n",
		e.Timestamp.Local().Format("2006-01-02 15:04:05.000000"),
		e.OperatorCode,
		e.Operation,
		unit,
		ui.Status(e.Status),
		e.Details,
	)
}
