package cli

import (
	"github.com/spf13/cobra"

	"opgate/internal/platform/httpserver"
)

func newServeCmd(g *globalOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose metrics and health endpoints for the audit backend",
		Long: `Opens the configured audit backend and serves /metrics and /healthz
until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if cmd.Flags().Changed("addr") {
				g.cfg.Ops.Addr = addr
			}

			a, err := g.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			router := httpserver.NewOpsRouter(a.Registry, a.HealthChecks(), a.Logger)
			return httpserver.Run(ctx, httpserver.New(g.cfg.Ops.Addr, router), a.Logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default OPGATE_OPS_ADDR or :9090)")
	return cmd
}
