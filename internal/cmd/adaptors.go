package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tigerroll/waves/internal/app"
	"github.com/tigerroll/waves/pkg/waves/adaptor/loader"
)

func newAdaptorsCommand(g *globals) *cobra.Command {
	c := &cobra.Command{
		Use:   "adaptors",
		Short: "List the enabled adaptor kinds",
		Long: `List the adaptor kinds enabled by adaptors.enabled with their label and
parameter schema version. --dump prints the default configuration of each
kind, masking secret parameters.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dump, _ := cmd.Flags().GetBool("dump")
			cfg, err := g.load()
			if err != nil {
				return err
			}
			var l *loader.Loader
			return app.Execute(cmd.Context(), cfg, func(context.Context) error {
				w := cmd.OutOrStdout()
				if dump {
					for _, a := range l.Adaptors() {
						fmt.Fprintf(w, "# %s\n%s\n\n", a.Kind(), a.DumpConfig())
					}
					return nil
				}
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "KIND\tVERSION\tLABEL")
				for _, k := range l.Kinds() {
					f, _ := l.Registry().Factory(k)
					fmt.Fprintf(tw, "%s\t%d\t%s\n", k, f.Version, f.Label)
				}
				return tw.Flush()
			}, &l)
		},
	}
	c.Flags().Bool("dump", false, "Print the default configuration of every kind")
	return c
}
