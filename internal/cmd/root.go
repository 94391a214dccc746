// Package cmd implements the wavesd command line.
package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tigerroll/waves/pkg/waves/core/config"
)

// EnvPrefix prefixes the environment variables backing the global flags,
// e.g. WAVES_CONFIG or WAVES_ENV_FILE.
const EnvPrefix = "WAVES"

// globals carries what every subcommand needs to build its configuration.
type globals struct {
	embedded config.EmbeddedConfig
	v        *viper.Viper
}

// NewRootCommand builds the command tree. embedded is the configuration
// used when --config is not given.
func NewRootCommand(embedded config.EmbeddedConfig) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "wavesd",
		Short: "Run and operate WAVES jobs",
		Long: `wavesd drives computational jobs through their lifecycle on local shells,
remote hosts over SSH, batch clusters and remote job APIs.

'serve' runs the scheduler daemon; the other commands act on the job
repository directly and exit.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "Path to the YAML configuration (defaults to the embedded one)")
	pf.String("env-file", ".env", "Optional .env file loaded before the configuration")
	pf.String("log-level", "", "Override waves.system.logging.level")
	_ = v.BindPFlags(pf)

	g := &globals{embedded: embedded, v: v}
	root.AddCommand(
		newServeCommand(g),
		newSubmitCommand(g),
		newAdvanceCommand(g),
		newRerunCommand(g),
		newStatusCommand(g),
		newAdaptorsCommand(g),
		newMigrateCommand(g),
		newExportHistoryCommand(g),
	)
	return root
}

// Execute runs the command line with ctx.
func Execute(ctx context.Context, embedded config.EmbeddedConfig) error {
	return NewRootCommand(embedded).ExecuteContext(ctx)
}

// load reads the configuration selected by the global flags.
func (g *globals) load() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	envFile := g.v.GetString("env-file")
	if path := g.v.GetString("config"); path != "" {
		cfg, err = config.LoadFile(envFile, path)
	} else {
		cfg, err = config.LoadConfig(envFile, g.embedded)
	}
	if err != nil {
		return nil, err
	}
	if level := g.v.GetString("log-level"); level != "" {
		cfg.Waves.System.Logging.Level = strings.ToUpper(level)
	}
	return cfg, nil
}
