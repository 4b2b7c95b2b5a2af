// Package chatcmder provides the chat command: an interactive terminal
// conversation with the assistant, in process or against a running server.
package chatcmder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nontawat9304/mali-chat/cmd/mali/bootstrap"
	"github.com/nontawat9304/mali-chat/pkg/cliui"
	"github.com/nontawat9304/mali-chat/pkg/config"
	"github.com/nontawat9304/mali-chat/pkg/dotdir"
	"github.com/nontawat9304/mali-chat/pkg/logger"
	"github.com/nontawat9304/mali-chat/pkg/memory"
	"github.com/nontawat9304/mali-chat/pkg/pipeline"
)

// Turn is one exchange as the REPL sees it.
type Turn struct {
	Text   string
	Source string
}

// Sender answers one message for the current session.
type Sender interface {
	Send(ctx context.Context, message string, session *dotdir.SessionState) (Turn, error)
}

type chatCommander struct {
	apiTarget  string
	remote     bool
	identity   string
	privileged bool
	persona    string
	endpoint   string
	reset      bool
	debug      bool
}

const chatLongDesc string = `Start an interactive chat with the assistant.

By default the assistant runs inside this process using the configured
storage, memory and provider ladder. With --remote the messages go to a
running "mali serve" at --api instead.

The identity, persona and remote generation endpoint are remembered in
session.json in the .mali/ directory. Inside the chat:
  /identity <id>     talk as another user ("/identity" alone for anonymous)
  /persona <text>    override the persona ("/persona" alone to clear)
  /remote <url>      try this endpoint before the ladder ("/remote" to clear)
  /whoami            show the session
  /exit              quit (Ctrl+D works too)

Examples:
  mali chat
  mali chat --identity nont
  mali chat --reset
  mali chat --remote --api http://localhost:8000`

const chatShortDesc string = "Chat with the assistant"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run(cmd)
		},
	}

	config.AddStringFlag(cmd, config.ClientFlags, config.FlagAPITarget, &cmder.apiTarget)
	cmd.Flags().BoolVar(&cmder.remote, "remote", false, "Talk to a running server at --api instead of running in process")
	cmd.Flags().StringVarP(&cmder.identity, "identity", "i", "", "User identity to chat as")
	cmd.Flags().BoolVar(&cmder.privileged, "admin", false, "Chat as a privileged caller")
	cmd.Flags().StringVar(&cmder.persona, "persona", "", "Persona override for this session")
	cmd.Flags().StringVar(&cmder.endpoint, "remote-llm", "", "Generation endpoint tried before the provider ladder")
	cmd.Flags().BoolVar(&cmder.reset, "reset", false, "Forget the remembered session before starting")

	return cmd
}

func (c *chatCommander) run(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	configDir, _ := cmd.Flags().GetString("config-dir")

	ddm := dotdir.NewManager()
	if c.reset {
		if err := ddm.ClearSession(configDir); err != nil {
			return err
		}
	}
	session, err := ddm.LoadSession(configDir)
	if err != nil {
		return err
	}
	if session == nil {
		session = &dotdir.SessionState{}
	}
	c.applyFlags(cmd, session)

	cfg, dir, err := bootstrap.LoadConfig(cmd, config.ClientFlags)
	if err != nil {
		return err
	}

	var sender Sender
	if c.remote {
		sender = NewHTTPSender(cfg.Client.APITarget)
	} else {
		// Provider logs would interleave with the conversation.
		log := logger.Nop()
		if c.debug {
			log = logger.New(logger.WithPretty(true), logger.WithDebug(true), logger.WithWriter(os.Stderr))
		}
		stack, err := bootstrap.New(ctx, cfg, dir, log)
		if err != nil {
			return err
		}
		defer stack.Close()
		sender = &localSender{orch: stack.Orchestrator}
	}

	save := func(s *dotdir.SessionState) error {
		return ddm.SaveSession(s, configDir)
	}
	if err := save(session); err != nil {
		return err
	}
	return Converse(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), sender, session, save)
}

// applyFlags lets explicit flags replace the remembered session.
func (c *chatCommander) applyFlags(cmd *cobra.Command, s *dotdir.SessionState) {
	if cmd.Flags().Changed("identity") {
		s.Identity = c.identity
	}
	if cmd.Flags().Changed("admin") {
		s.Privileged = c.privileged
	}
	if cmd.Flags().Changed("persona") {
		s.Persona = c.persona
	}
	if cmd.Flags().Changed("remote-llm") {
		s.RemoteEndpoint = c.endpoint
	}
	// Nobody hears audio in a terminal.
	s.MuteAudio = true
}

// Converse runs the read-answer loop until EOF or /exit. save is called
// whenever a slash command changes the session.
func Converse(ctx context.Context, in io.Reader, out io.Writer, sender Sender, session *dotdir.SessionState, save func(*dotdir.SessionState) error) error {
	fmt.Fprintf(out, "\n  %s %s\n", cliui.KeyStyle.Render("Talking as:"), describe(session))
	fmt.Fprintf(out, "  %s\n\n", cliui.DimStyle.Render("Type a message and press Enter. /exit or Ctrl+D to quit."))

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Fprint(out, cliui.UserStyle.Render("you> "))
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			quit, err := command(out, input, session, save)
			if err != nil {
				fmt.Fprintf(out, "  %s %v\n", cliui.FailMark, err)
			}
			if quit {
				break
			}
			continue
		}

		turn, err := sender.Send(ctx, input, session)
		if err != nil {
			fmt.Fprintf(out, "  %s %v\n", cliui.FailMark, err)
			continue
		}
		fmt.Fprintf(out, "%s%s\n", cliui.BotStyle.Render("mali> "), turn.Text)
		if turn.Source != "" {
			fmt.Fprintf(out, "  %s\n", cliui.DimStyle.Render("via "+turn.Source))
		}
		fmt.Fprintln(out)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	fmt.Fprintln(out)
	return nil
}

// command handles one slash command and reports whether to quit.
func command(out io.Writer, input string, s *dotdir.SessionState, save func(*dotdir.SessionState) error) (bool, error) {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/exit", "/quit":
		return true, nil
	case "/whoami":
		fmt.Fprintf(out, "  %s\n", describe(s))
		return false, nil
	case "/identity":
		s.Identity = arg
	case "/persona":
		s.Persona = arg
	case "/remote":
		s.RemoteEndpoint = arg
	default:
		return false, fmt.Errorf("unknown command %s", name)
	}

	fmt.Fprintf(out, "  %s %s\n", cliui.SuccessMark, describe(s))
	return false, save(s)
}

func describe(s *dotdir.SessionState) string {
	who := "anonymous"
	if s.Identity != "" {
		who = s.Identity
	}
	if s.Privileged {
		who += " (admin)"
	}
	parts := []string{cliui.ValueStyle.Render(who)}
	if s.Persona != "" {
		parts = append(parts, cliui.DimStyle.Render("persona: "+s.Persona))
	}
	if s.RemoteEndpoint != "" {
		parts = append(parts, cliui.DimStyle.Render("remote: "+s.RemoteEndpoint))
	}
	return strings.Join(parts, "  ")
}

// localSender runs turns through an in-process orchestrator.
type localSender struct {
	orch *pipeline.Orchestrator
}

func (l *localSender) Send(ctx context.Context, message string, s *dotdir.SessionState) (Turn, error) {
	reply, err := l.orch.Handle(ctx, pipeline.Request{
		Utterance: message,
		Caller: memory.Caller{
			Identity:   memory.Identity(s.Identity),
			Privileged: s.Privileged,
		},
		Persona:        s.Persona,
		MuteAudio:      s.MuteAudio,
		RemoteEndpoint: s.RemoteEndpoint,
	})
	if err != nil {
		return Turn{}, err
	}
	return Turn{Text: reply.Text, Source: reply.Source}, nil
}
