// Package cli implements the opgatectl command tree.
package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"opgate/internal/app"
	"opgate/internal/platform/config"
	"opgate/internal/platform/logger"
)

// globalOptions are the persistent flags shared by every command. Set flags
// override the OPGATE_* environment.
type globalOptions struct {
	backend  string
	file     string
	format   string
	logLevel string
	logJSON  bool

	cfg    config.Config
	logger *slog.Logger
}

// NewRootCmd builds the opgatectl command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "opgatectl",
		Short: "Run permission-gated operations and inspect their audit trail",
		Long: `opgatectl runs operations through the permission gate and reads the
audit trail every gated operation writes.

The audit backend is chosen with OPGATE_AUDIT_BACKEND (memory, file,
postgres, redis) or --backend. Set OPGATE_KAFKA_BROKERS to mirror every
recorded entry to a Kafka topic.`,
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.backend, "backend", "", "audit backend: memory, file, postgres, redis")
	flags.StringVar(&opts.file, "file", "", "audit file path for the file backend")
	flags.StringVar(&opts.format, "format", "", "audit file format: array or lines")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.BoolVar(&opts.logJSON, "log-json", false, "write logs as JSON")

	root.AddCommand(
		newDemoCmd(opts),
		newLogCmd(opts),
		newProfilesCmd(opts),
		newServeCmd(opts),
		newReplicateCmd(opts),
	)
	return root
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func (o *globalOptions) load(cmd *cobra.Command) error {
	cfg, err := config.FromEnv()
	if err != nil && !o.overridesConfig(cmd) {
		return err
	}
	if cmd.Flags().Changed("backend") {
		cfg.Audit.Backend = o.backend
	}
	if cmd.Flags().Changed("file") {
		cfg.Audit.File = o.file
	}
	if cmd.Flags().Changed("format") {
		cfg.Audit.Format = o.format
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if o.logJSON {
		cfg.Log.Format = "json"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	o.cfg = cfg
	o.logger = logger.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(o.logger)
	return nil
}

// overridesConfig reports whether flags may repair an invalid environment.
func (o *globalOptions) overridesConfig(cmd *cobra.Command) bool {
	f := cmd.Flags()
	return f.Changed("backend") || f.Changed("file") || f.Changed("format") || f.Changed("log-level") || o.logJSON
}

// openApp opens the configured backend for one command run.
func (o *globalOptions) openApp(ctx context.Context) (*app.App, error) {
	return app.Open(ctx, o.cfg, o.logger)
}
