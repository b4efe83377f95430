// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/jeranaias/bizartvisor-cli/internal/conversation"
	"github.com/jeranaias/bizartvisor-cli/internal/model"
	"github.com/jeranaias/bizartvisor-cli/internal/ui/styles"
)

type askFlags struct {
	chatFlags
	raw bool
}

func newAskCmd(a *app) *cobra.Command {
	var flags askFlags

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask one question and print the reply",
		Long: `Send one exchange and print the reply.

The question is taken from the arguments, or from stdin when no arguments
are given and stdin is not a terminal. On a terminal the finished reply is
rendered as markdown; otherwise it is streamed as plain text.`,
		Example: `  bizartvisor ask "What moved the markets today?" --news
  git diff | bizartvisor ask
  bizartvisor ask --session 0190b6c2-... "And after that?"`,
		GroupID: "chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAsk(cmd, flags, args)
		},
	}
	addChatFlags(cmd, &flags.chatFlags)
	cmd.Flags().BoolVar(&flags.raw, "raw", false, "Stream plain text even on a terminal")
	return cmd
}

func (a *app) runAsk(cmd *cobra.Command, flags askFlags, args []string) error {
	question, err := readQuestion(args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	log, err := a.logger(errOut)
	if err != nil {
		return err
	}
	defer log.Close()

	pretty := !flags.raw && a.cfg.UI.RenderMarkdown && isTerminal(out)

	var hooks conversation.Hooks
	var printed string
	progress := pretty && IsStderrTTY()
	if progress {
		hooks.OnState = func(_, to conversation.State) {
			if to == conversation.StateAwaitingStream || to == conversation.StateStreaming {
				fmt.Fprintf(errOut, "\r%s", MutedStyle.Render(strings.ToLower(to.String())+"..."))
			}
		}
	}
	if !pretty {
		hooks.OnSnapshot = func(msg model.Message) {
			if strings.HasPrefix(msg.Text, printed) {
				fmt.Fprint(out, msg.Text[len(printed):])
			} else {
				fmt.Fprint(out, "\n"+msg.Text)
			}
			printed = msg.Text
		}
	}

	client := a.client(log)
	svc := a.service(client, log, flags.settings(cmd, a.cfg.Chat), hooks)
	if flags.session != "" {
		svc.Thread().SetSessionID(flags.session)
	}

	res, err := svc.Submit(ctx, question)
	if progress {
		fmt.Fprint(errOut, "\r\033[K")
	}
	if res != nil {
		if pretty {
			writeMarkdown(out, res.Reply, a.cfg.UI.Theme, a.cfg.UI.WordWrap)
		} else if printed != "" {
			fmt.Fprintln(out)
		}
		if res.Canceled {
			fmt.Fprintln(errOut, WarningStyle.Render("[stopped]"))
		}
		if res.SessionChanged {
			fmt.Fprintln(errOut, MutedStyle.Render("session "+res.SessionID))
		}
	}
	return err
}

// readQuestion joins args, or reads stdin when args are empty and stdin
// is piped.
func readQuestion(args []string, in io.Reader) (string, error) {
	if len(args) > 0 {
		q := strings.TrimSpace(strings.Join(args, " "))
		if q == "" {
			return "", &UsageError{Message: "question is empty"}
		}
		return q, nil
	}
	if isTerminal(in) {
		return "", &UsageError{Message: "no question given (pass it as an argument or pipe it on stdin)"}
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	q := strings.TrimSpace(string(data))
	if q == "" {
		return "", &UsageError{Message: "question is empty"}
	}
	return q, nil
}

// writeMarkdown renders text with glamour, falling back to plain text.
func writeMarkdown(w io.Writer, text, theme string, wrap int) {
	if wrap <= 0 {
		wrap = GetTerminalWidth()
	}
	style := styles.NewTheme(theme, w).GlamourStyle()
	r, err := glamour.NewTermRenderer(glamour.WithStandardStyle(style), glamour.WithWordWrap(wrap))
	if err != nil {
		fmt.Fprintln(w, text)
		return
	}
	rendered, err := r.Render(text)
	if err != nil {
		fmt.Fprintln(w, text)
		return
	}
	fmt.Fprint(w, rendered)
}
