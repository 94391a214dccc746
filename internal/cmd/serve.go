package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tigerroll/waves/internal/app"
)

func newServeCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the ops endpoints",
		Long: `Run the scheduler loop that advances every pending job, together with the
/metrics and /healthz endpoints on observability.metrics_address.

Pending schema migrations are applied first unless
infrastructure.auto_migrate is false.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			return app.Serve(cmd.Context(), cfg)
		},
	}
}
