package cli

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"opgate/internal/gate"
	"opgate/internal/registry"
	"opgate/internal/reports"
	"opgate/internal/ui"
	id "opgate/pkg/domain"
	audit "opgate/pkg/platform/audit"
)

//go:embed demo_policy.json
var demoPolicy []byte

type demoOptions struct {
	policy   string
	unit     string
	profiles []string
	recent   int
}

func newDemoCmd(g *globalOptions) *cobra.Command {
	opts := &demoOptions{}
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Generate reports as each profile and show the recent audit entries",
		Long: `Seeds units and profiles from a policy document, runs generate_reports for
each profile, then prints the most recent audit entries.

The built-in policy declares UNIT1 (Marketing) and UNIT2 (Sales). admin1 may
generate and view reports in UNIT1; admin2 may only view them, so its
attempt is denied and recorded as FAILED.

Examples:
  opgatectl demo
  opgatectl demo --backend memory
  opgatectl demo --policy policy.json --profile admin1 --unit UNIT2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd.Context(), g, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.policy, "policy", "", "policy JSON file (default: built-in demo policy)")
	cmd.Flags().StringVar(&opts.unit, "unit", "UNIT1", "unit to generate the report for")
	cmd.Flags().StringSliceVar(&opts.profiles, "profile", []string{"admin1", "admin2"}, "profiles to run as, in order")
	cmd.Flags().IntVarP(&opts.recent, "number", "n", 5, "recent entries to print")
	return cmd
}

func runDemo(ctx context.Context, g *globalOptions, opts *demoOptions, out io.Writer) error {
	reg := registry.New(registry.WithLogger(g.logger))
	if err := seedRegistry(reg, opts.policy); err != nil {
		return err
	}

	a, err := g.openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	action := reports.GenerateAction(out, nil)
	for _, name := range opts.profiles {
		profile, err := reg.Profile(name)
		if err != nil {
			return err
		}
		_, err = gate.Execute(ctx, a.Gate, action, profile, id.UnitID(opts.unit))
		switch {
		case err == nil:
		case gate.IsPermissionDenied(err) && !audit.IsPersistenceError(err):
			fmt.Fprintf(out, "%s %v\n", ui.Warning.Sprint("✗"), err)
		default:
			return err
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Recent Operations:")
	for _, e := range a.Trail.Recent(opts.recent) {
		writeEntryBlock(out, e)
	}
	return nil
}

func seedRegistry(reg *registry.Registry, path string) error {
	if path == "" {
		return reg.Seed(bytes.NewReader(demoPolicy))
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open policy: %w", err)
	}
	defer f.Close()
	return reg.Seed(f)
}

func writeEntryBlock(out io.Writer, e audit.Entry) {
	unit := "-"
	if !e.UnitID.IsNil() {
		unit = e.UnitID.String()
	}
	details := "-"
	if e.Details != "" {
		details = e.Details
	}
	fmt.Fprintf(out, "\nOperation: %s\nOperator: %s (%s)\nUnit: %s\nTime: %s\nStatus: %s\nDetails: %s\n",
		e.Operation,
		ui.Highlight.Sprint(e.OperatorCode.String()),
		e.OperatorRole,
		unit,
		e.Timestamp.Local().Format("2006-01-02 15:04:05.000000"),
		ui.Status(e.Status),
		details,
	)
}
