package memorycmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nontawat9304/mali-chat/pkg/cliui"
)

func newForgetCmd() *cobra.Command {
	var scope scopeFlags

	cmd := &cobra.Command{
		Use:   "forget <filename>",
		Short: "Delete a retained source and rebuild its segment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, err := openStack(cmd)
			if err != nil {
				return err
			}
			defer stack.Close()

			caller := scope.caller()
			if err := stack.Orchestrator.Forget(commandContext(cmd), args[0], caller); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  %s Forgot %s from %s\n",
				cliui.SuccessMark,
				cliui.ValueStyle.Render(args[0]),
				cliui.KeyStyle.Render(caller.WriteScope().Segment()),
			)
			return nil
		},
	}
	scope.register(cmd)

	return cmd
}

func newRebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Re-index every segment from its retained sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stack, err := openStack(cmd)
			if err != nil {
				return err
			}
			defer stack.Close()

			return cliui.Step(cmd.OutOrStdout(), "Rebuilding memory segments", func() error {
				return stack.RebuildAll(commandContext(cmd))
			})
		},
	}
}
