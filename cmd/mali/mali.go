// Package malicmder is the root of the mali command tree.
package malicmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/nontawat9304/mali-chat/cmd/mali/chat"
	configcmder "github.com/nontawat9304/mali-chat/cmd/mali/config"
	initcmder "github.com/nontawat9304/mali-chat/cmd/mali/init"
	memorycmder "github.com/nontawat9304/mali-chat/cmd/mali/memory"
	personacmder "github.com/nontawat9304/mali-chat/cmd/mali/persona"
	servecmder "github.com/nontawat9304/mali-chat/cmd/mali/serve"
	versioncmder "github.com/nontawat9304/mali-chat/cmd/version"
)

const maliLongDesc string = `Mali is a retrieval-augmented chat assistant with scoped memory.

Run and talk to it using:
  mali init          Create a local .mali/ directory
  mali serve         Run the API server
  mali chat          Chat in the terminal
  mali memory        Train, forget and inspect memories
  mali persona       Read or replace the persona
  mali config        Manage config.toml`

const maliShortDesc string = "Mali - retrieval-augmented chat assistant"

func NewMaliCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "mali",
		Short:         maliShortDesc,
		Long:          maliLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .mali/ directory")

	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(memorycmder.NewMemoryCmd())
	cmd.AddCommand(personacmder.NewPersonaCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
