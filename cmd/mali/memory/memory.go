// Package memorycmder provides the memory command: train and forget sources,
// rebuild segments, query memories and list the training log.
package memorycmder

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/nontawat9304/mali-chat/cmd/mali/bootstrap"
	"github.com/nontawat9304/mali-chat/pkg/config"
	"github.com/nontawat9304/mali-chat/pkg/logger"
	"github.com/nontawat9304/mali-chat/pkg/memory"
)

const memoryLongDesc string = `Manage the assistant's scoped memory.

Memories live in segments: "global", readable by everyone, and one
"user_<id>" segment per identity. Commands run as a privileged local operator:
without --identity they act on the global segment, with --identity on that
user's private segment (or global with --global).

Examples:
  mali memory train notes.txt
  mali memory teach "Opening hours" "The shop opens at 9am."
  mali memory query "when does the shop open"
  mali memory forget notes.txt
  mali memory rebuild
  mali memory list`

const memoryShortDesc string = "Manage the assistant's scoped memory"

type scopeFlags struct {
	identity string
	global   bool
}

func (f *scopeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.identity, "identity", "i", "", "Act for this user identity")
	cmd.Flags().BoolVarP(&f.global, "global", "g", false, "Target the global segment even with --identity")
}

func (f *scopeFlags) caller() memory.Caller {
	return memory.Caller{
		Identity:      memory.Identity(f.identity),
		Privileged:    true,
		RequestGlobal: f.global,
	}
}

func NewMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: memoryShortDesc,
		Long:  memoryLongDesc,
	}

	cmd.AddCommand(newTrainCmd())
	cmd.AddCommand(newTeachCmd())
	cmd.AddCommand(newForgetCmd())
	cmd.AddCommand(newRebuildCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

// openStack builds the memory side of the assistant for one command.
func openStack(cmd *cobra.Command) (*bootstrap.Stack, error) {
	cfg, dir, err := bootstrap.LoadConfig(cmd, config.ServeFlags)
	if err != nil {
		return nil, err
	}
	debug, _ := cmd.Flags().GetBool("debug")
	log := logger.New(
		logger.WithPretty(true),
		logger.WithDebug(debug),
		logger.WithWriter(os.Stderr),
	)
	return bootstrap.NewMemoryOnly(commandContext(cmd), cfg, dir, log)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
