package memorycmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nontawat9304/mali-chat/pkg/cliui"
	"github.com/nontawat9304/mali-chat/pkg/docstore"
	"github.com/nontawat9304/mali-chat/pkg/memory"
	"github.com/nontawat9304/mali-chat/pkg/utils"
)

func newQueryCmd() *cobra.Command {
	var (
		scope scopeFlags
		k     int
	)

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Show the memories a message would retrieve",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, err := openStack(cmd)
			if err != nil {
				return err
			}
			defer stack.Close()

			if k <= 0 {
				k = stack.Config.Memory.K
			}
			results := stack.Memory.Query(commandContext(cmd), args[0], k, scope.caller())
			return printMarkdown(cmd, RenderResults(args[0], results))
		},
	}
	scope.register(cmd)
	cmd.Flags().IntVarP(&k, "top-k", "k", 0, "Memories per segment (default: memory.k)")

	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the training log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stack, err := openStack(cmd)
			if err != nil {
				return err
			}
			defer stack.Close()

			entries, err := stack.Sources.History()
			if err != nil {
				return err
			}
			return printMarkdown(cmd, RenderHistory(entries))
		},
	}
}

func printMarkdown(cmd *cobra.Command, md string) error {
	rendered, err := cliui.RenderMarkdown(md)
	if err != nil {
		rendered = md
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), rendered)
	return err
}

// RenderResults formats query results as a markdown table.
func RenderResults(query string, results []memory.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Memories for %q\n\n", query)
	if len(results) == 0 {
		b.WriteString("_No memories found._\n")
		return b.String()
	}

	b.WriteString("| # | Segment | Source | Date | Text |\n|---|---|---|---|---|\n")
	for i, r := range results {
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n",
			i+1, r.Scope.Segment(), cell(r.Source), r.Date, cell(r.Text))
	}
	return b.String()
}

// RenderHistory formats the training log as a markdown table, newest first.
func RenderHistory(entries []docstore.HistoryEntry) string {
	var b strings.Builder
	b.WriteString("## Training log\n\n")
	if len(entries) == 0 {
		b.WriteString("_Nothing trained yet._\n")
		return b.String()
	}

	b.WriteString("| Time | Segment | File | Title | Status |\n|---|---|---|---|---|\n")
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			e.Timestamp, e.Scope, cell(e.Filename), cell(e.OriginalTitle), e.Status)
	}
	return b.String()
}

// cell keeps a value on one table row.
func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "|", `\|`)
	return utils.Truncate(s, 80)
}
