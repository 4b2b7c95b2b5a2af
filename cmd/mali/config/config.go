// Package configcmder provides the config command for managing persistent
// mali configuration stored in the .mali/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent mali configuration.

Configuration is stored as config.toml in the .mali/ directory and provides
default values for command flags. CLI flags and MALI_* environment variables
take precedence over config file values.

Keys use dotted notation matching the TOML section structure, for example:
  storage.driver, storage.sqlite_path, api.listen, api.mcp,
  memory.backend, memory.k, embedding.provider, embedding.model,
  generation.ladder, generation.anthropic.api_key, persona.default,
  audio.synthesize_url, events.brokers, intent.triggers_path

Use subcommands to get, set, or list configuration values:
  mali config set <key> <value>    Set a configuration value
  mali config get <key>            Get a configuration value
  mali config list                 List all configuration values

Examples:
  mali config set generation.ladder anthropic,local,ollama
  mali config set memory.backend qdrant
  mali config get embedding.model
  mali config list`

const configShortDesc string = "Manage persistent mali configuration"

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
