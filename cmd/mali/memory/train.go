package memorycmder

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nontawat9304/mali-chat/pkg/cliui"
	"github.com/nontawat9304/mali-chat/pkg/pipeline"
)

func newTrainCmd() *cobra.Command {
	var scope scopeFlags

	cmd := &cobra.Command{
		Use:   "train <file>...",
		Short: "Index text files as retained sources",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, err := openStack(cmd)
			if err != nil {
				return err
			}
			defer stack.Close()

			ctx := commandContext(cmd)
			w := cmd.OutOrStdout()
			for _, path := range args {
				err := cliui.Step(w, "Training "+filepath.Base(path), func() error {
					raw, err := os.ReadFile(path)
					if err != nil {
						return err
					}
					entry, err := stack.Orchestrator.Train(ctx, pipeline.TrainRequest{
						Filename: filepath.Base(path),
						Text:     string(raw),
						Caller:   scope.caller(),
					})
					if err != nil {
						return err
					}
					fmt.Fprintf(w, "  %s %s\n", cliui.DimStyle.Render(entry.Scope+"/"), cliui.ValueStyle.Render(entry.Filename))
					return nil
				})
				if err != nil {
					return fmt.Errorf("training %s: %w", path, err)
				}
			}
			return nil
		},
	}
	scope.register(cmd)

	return cmd
}

func newTeachCmd() *cobra.Command {
	var scope scopeFlags

	cmd := &cobra.Command{
		Use:   "teach <title> <text>",
		Short: "Index a pasted text under a title",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, err := openStack(cmd)
			if err != nil {
				return err
			}
			defer stack.Close()

			entry, err := stack.Orchestrator.Train(commandContext(cmd), pipeline.TrainRequest{
				Title:  args[0],
				Text:   args[1],
				Caller: scope.caller(),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  %s Stored %s in %s\n",
				cliui.SuccessMark,
				cliui.ValueStyle.Render(entry.Filename),
				cliui.KeyStyle.Render(entry.Scope),
			)
			return nil
		},
	}
	scope.register(cmd)

	return cmd
}
