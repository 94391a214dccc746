package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tigerroll/waves/internal/app"
	"github.com/tigerroll/waves/pkg/waves/adapter/database"
	"github.com/tigerroll/waves/pkg/waves/adapter/migration"
	"github.com/tigerroll/waves/pkg/waves/core/config"
)

func newMigrateCommand(g *globals) *cobra.Command {
	c := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or revert the metadata schema migrations",
		Long: `Apply every pending migration of the metadata database, or revert the
last N with --down, then print the schema version.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			down, _ := cmd.Flags().GetInt("down")
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if cfg.Waves.Infrastructure.Repository != config.RepositorySQL {
				return fmt.Errorf("migrate needs infrastructure.repository '%s', got '%s'", config.RepositorySQL, cfg.Waves.Infrastructure.Repository)
			}
			cfg.Waves.Infrastructure.AutoMigrate = false

			var resolver database.DBConnectionResolver
			return app.Execute(cmd.Context(), cfg, func(ctx context.Context) error {
				conn, err := resolver.ResolveDBConnection(ctx, cfg.Waves.Infrastructure.DatabaseRef)
				if err != nil {
					return err
				}
				m := migration.NewMigrator(conn)
				if down > 0 {
					err = m.Down(ctx, down)
				} else {
					err = m.Up(ctx)
				}
				if err != nil {
					return err
				}
				version, dirty, err := m.Version(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
				return nil
			}, &resolver)
		},
	}
	c.Flags().Int("down", 0, "Revert this many migrations instead of applying")
	return c
}
