// Package personacmder provides the persona command for reading and
// replacing the assistant's persona text.
package personacmder

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nontawat9304/mali-chat/cmd/mali/bootstrap"
	"github.com/nontawat9304/mali-chat/pkg/cliui"
	"github.com/nontawat9304/mali-chat/pkg/config"
	"github.com/nontawat9304/mali-chat/pkg/dotdir"
	"github.com/nontawat9304/mali-chat/pkg/persona"
)

const personaLongDesc string = `Read or replace the persona text.

The persona is prepended to every prompt. It is read from persona.txt in the
.mali/ directory on every turn, so a running server picks up changes on the
next message.

Examples:
  mali persona get
  mali persona set "Mali-chan, a cheerful Thai assistant"
  mali persona set --file persona.txt`

const personaShortDesc string = "Read or replace the persona text"

func NewPersonaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "persona",
		Short: personaShortDesc,
		Long:  personaLongDesc,
	}

	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newSetCmd())

	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Print the persona text",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, cfg, err := openStore(cmd)
			if err != nil {
				return err
			}
			return runGet(cmd.OutOrStdout(), store, cfg.Persona.Default)
		},
	}
}

func newSetCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "set [text]",
		Short: "Replace the persona text",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := personaText(args, file)
			if err != nil {
				return err
			}
			store, _, err := openStore(cmd)
			if err != nil {
				return err
			}
			if err := store.Save(text); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  %s Persona saved to %s\n",
				cliui.SuccessMark, cliui.DimStyle.Render(store.Path()))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the persona text from a file")

	return cmd
}

func openStore(cmd *cobra.Command) (*persona.Store, *config.Config, error) {
	cfg, dir, err := bootstrap.LoadConfig(cmd, config.FlagSet{})
	if err != nil {
		return nil, nil, err
	}
	return persona.NewStore(dotdir.Resolve(dir, cfg.Persona.Path)), cfg, nil
}

func personaText(args []string, file string) (string, error) {
	var text string
	switch {
	case file != "" && len(args) > 0:
		return "", fmt.Errorf("pass the persona as an argument or with --file, not both")
	case file != "":
		raw, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading persona file: %w", err)
		}
		text = string(raw)
	case len(args) == 1:
		text = args[0]
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("persona text is empty")
	}
	return text, nil
}

func runGet(w io.Writer, store *persona.Store, fallback string) error {
	text, err := store.Load()
	if err != nil {
		return err
	}
	if text == "" {
		fmt.Fprintf(w, "%s\n%s\n", fallback, cliui.DimStyle.Render("(default, no persona file yet)"))
		return nil
	}
	fmt.Fprintln(w, text)
	return nil
}
