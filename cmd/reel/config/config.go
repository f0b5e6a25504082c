// Package configcmder provides the config command for managing persistent
// reel configuration stored in the .reel/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent reel configuration.

Configuration is stored as config.toml in the .reel/ directory and provides
default values for command flags. CLI flags always take precedence over
config file values.

Keys use dotted notation matching the TOML section structure:
  storage.sqlite_path, data.movies, data.ratings, api.listen,
  vector_store.provider, vector_store.target, vector_store.host, vector_store.port,
  embedding.provider, embedding.target, embedding.model,
  recommend.top_k, recommend.include_self, rebuild.workers

Use subcommands to get, set, or list configuration values:
  reel config set <key> <value>    Set a configuration value
  reel config get <key>            Get a configuration value
  reel config list                 List all configuration values

Examples:
  reel config set embedding.model all-minilm
  reel config set recommend.top_k 5
  reel config get vector_store.provider
  reel config list`

const configShortDesc string = "Manage persistent reel configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
