package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tigerroll/waves/internal/app"
	"github.com/tigerroll/waves/pkg/waves/infrastructure/export"
)

func newExportHistoryCommand(g *globals) *cobra.Command {
	c := &cobra.Command{
		Use:   "export-history",
		Short: "Archive the history of finished jobs as Parquet",
		Long: `Write one Parquet file holding the history of every finished job to the
storage named by export.storage_ref, under
<prefix>/dt=YYYY-MM-DD/. Nothing is written when no job has finished.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			f := cmd.Flags()
			e := &cfg.Waves.Export
			if f.Changed("storage") {
				e.StorageRef, _ = f.GetString("storage")
			}
			if f.Changed("bucket") {
				e.Bucket, _ = f.GetString("bucket")
			}
			if f.Changed("prefix") {
				e.Prefix, _ = f.GetString("prefix")
			}
			if f.Changed("compression") {
				e.Compression, _ = f.GetString("compression")
			}
			if f.Changed("limit") {
				e.Limit, _ = f.GetInt("limit")
			}

			var exporter *export.HistoryExporter
			return app.Execute(cmd.Context(), cfg, func(ctx context.Context) error {
				res, err := exporter.Export(ctx)
				if err != nil {
					return err
				}
				if res.Object == "" {
					fmt.Fprintln(cmd.OutOrStdout(), "no finished job to export")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d jobs\t%d rows\t%d bytes\n", res.Object, res.Jobs, res.Rows, res.Bytes)
				return nil
			}, &exporter)
		},
	}
	f := c.Flags()
	f.String("storage", "", "Storage entry to write to (overrides export.storage_ref)")
	f.String("bucket", "", "Bucket (overrides export.bucket)")
	f.String("prefix", "", "Object prefix (overrides export.prefix)")
	f.String("compression", "", "UNCOMPRESSED, SNAPPY, GZIP or ZSTD (overrides export.compression)")
	f.Int("limit", 0, "Maximum number of exported jobs (overrides export.limit)")
	return c
}
