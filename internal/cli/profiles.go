package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"opgate/internal/permission"
	"opgate/internal/registry"
	"opgate/internal/ui"
)

func newProfilesCmd(g *globalOptions) *cobra.Command {
	var policy string
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List the units, profiles and grants a policy defines",
		Long: `Loads a policy document and prints every unit, profile and grant it
declares. Use it to check a policy before running operations with it.

Examples:
  opgatectl profiles
  opgatectl profiles --policy policy.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := registry.New(registry.WithLogger(g.logger))
			if err := seedRegistry(reg, policy); err != nil {
				return err
			}
			writeRegistry(cmd.OutOrStdout(), reg)
			return nil
		},
	}
	cmd.Flags().StringVar(&policy, "policy", "", "policy JSON file (default: built-in demo policy)")
	return cmd
}

func writeRegistry(out io.Writer, reg *registry.Registry) {
	fmt.Fprintln(out, "Units:")
	for _, u := range reg.Units() {
		fmt.Fprintf(out, "  %s  %s\n", ui.Highlight.Sprint(u.ID.String()), u.Name)
	}

	fmt.Fprintln(out, "Profiles:")
	for _, p := range reg.Profiles() {
		fmt.Fprintf(out, "  %s %s %s\n", p.Name(), ui.Highlight.Sprint(p.OperatorCode().String()), ui.Muted.Sprint(p.BaseRole()))
		if global := p.GlobalPermissions(); len(global) > 0 {
			fmt.Fprintf(out, "    global: %s\n", joinOperations(global))
		}
		for _, unit := range p.Units() {
			fmt.Fprintf(out, "    %s: %s\n", unit, joinOperations(p.UnitPermissions(unit)))
		}
	}
}

func joinOperations(ops []permission.Operation) string {
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = op.String()
	}
	return strings.Join(names, ", ")
}
