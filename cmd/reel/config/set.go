package configcmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/reelpick/reel/pkg/cliui"
	"github.com/reelpick/reel/pkg/config"
)

const setLongDesc string = `Set a configuration value.

Sets the given key to the provided value in the config.toml file
stored in the .reel/ directory. Keys use dotted notation matching
the TOML section structure.

Valid keys:
  storage.sqlite_path, data.movies, data.ratings, api.listen,
  vector_store.provider, vector_store.target, vector_store.host, vector_store.port,
  embedding.provider, embedding.target, embedding.model,
  recommend.top_k, recommend.include_self, rebuild.workers

Examples:
  reel config set vector_store.provider qdrant
  reel config set vector_store.host localhost
  reel config set recommend.top_k 5`

const setShortDesc string = "Set a configuration value"

func newSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: setShortDesc,
		Long:  setLongDesc,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runSet(args[0], args[1], configDir)
		},
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
	}

	return cmd
}

func runSet(key, value, configDir string) error {
	if !config.IsValidConfigKey(key) {
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
			key, strings.Join(config.ValidConfigKeys(), ", "))
	}

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfger.SetConfigValue(key, value); err != nil {
		return err
	}

	fmt.Printf("\n  %s %s %s %s\n\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(key),
		cliui.DimStyle.Render("="),
		cliui.ValueStyle.Render(value),
	)

	return nil
}
