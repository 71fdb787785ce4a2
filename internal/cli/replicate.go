package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"opgate/internal/app"
	"opgate/internal/platform/config"
	"opgate/internal/platform/httpserver"
	kafkaconsumer "opgate/internal/platform/kafka/consumer"
	"opgate/internal/ui"
	dErrors "opgate/pkg/domain-errors"
	"opgate/pkg/platform/audit/consumer"
)

func newReplicateCmd(g *globalOptions) *cobra.Command {
	var opsAddr string
	cmd := &cobra.Command{
		Use:   "replicate",
		Short: "Copy mirrored audit entries from Kafka into the configured backend",
		Long: `Consumes the audit mirror topic (OPGATE_KAFKA_TOPIC) and appends every entry
to the configured backend. Entries already present are skipped, so the
command can be restarted or run against a replayed topic safely.

Examples:
  OPGATE_KAFKA_BROKERS=localhost:9092 OPGATE_AUDIT_BACKEND=postgres \
    OPGATE_DATABASE_URL=postgres://... opgatectl replicate
  opgatectl replicate --ops-addr :9091`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReplicate(cmd, g, opsAddr)
		},
	}
	cmd.Flags().StringVar(&opsAddr, "ops-addr", "", "also serve /metrics and /healthz on this address")
	return cmd
}

func runReplicate(cmd *cobra.Command, g *globalOptions, opsAddr string) error {
	kafkaCfg := g.cfg.Kafka
	if !kafkaCfg.Enabled() {
		return dErrors.New(dErrors.CodeInvalidInput, "replicate needs OPGATE_KAFKA_BROKERS")
	}

	// The target must not mirror back into the topic it reads.
	targetCfg := g.cfg
	targetCfg.Kafka = config.KafkaConfig{}

	ctx := cmd.Context()
	a, err := app.Open(ctx, targetCfg, g.logger)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	c, err := kafkaconsumer.New(kafkaCfg.Brokers, kafkaCfg.Group, kafkaCfg.Topic, a.Logger)
	if err != nil {
		return err
	}
	defer c.Close()

	handler := consumer.NewReplicateHandler(a.Trail, a.Logger)
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return c.Run(gctx, handler)
	})
	if opsAddr != "" {
		router := httpserver.NewOpsRouter(a.Registry, a.HealthChecks(), a.Logger)
		group.Go(func() error {
			return httpserver.Run(gctx, httpserver.New(opsAddr, router), a.Logger)
		})
	}

	err = group.Wait()
	fmt.Fprintf(cmd.OutOrStdout(), "%s replicated %d entries %s\n",
		ui.Success.Sprint("✓"), handler.Replicated(), ui.Muted.Sprintf("%d skipped", handler.Skipped()))
	return err
}
