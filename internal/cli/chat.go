// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jeranaias/bizartvisor-cli/internal/config"
	"github.com/jeranaias/bizartvisor-cli/internal/ui/chat"
	"github.com/jeranaias/bizartvisor-cli/internal/ui/styles"
)

func newChatCmd(a *app) *cobra.Command {
	var flags chatFlags

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the full-screen chat (default)",
		Long: `Open the full-screen chat.

Replies stream into the view as they arrive. Press F1 for keys and type
/help for commands. Logs go to ~/.bizartvisor/bizartvisor.log unless
log.file is set. Edits to the config file apply without a restart.`,
		Example: `  bizartvisor chat
  bizartvisor chat --model "Claude 3 opus" --rag
  bizartvisor chat --session 0190b6c2-...`,
		GroupID: "chat",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runChat(cmd, flags)
		},
	}
	addChatFlags(cmd, &flags)
	return cmd
}

func (a *app) runChat(cmd *cobra.Command, flags chatFlags) error {
	if !IsTTY() || !IsStdoutTTY() {
		return &UsageError{Message: "chat needs a terminal (use 'bizartvisor ask' or 'bizartvisor repl' instead)"}
	}
	ctx := cmd.Context()

	log := a.fileLogger()
	defer log.Close()

	client := a.client(log)
	bridge := chat.NewBridge(0)
	defer bridge.Close()

	svc := a.service(client, log, flags.settings(cmd, a.cfg.Chat), bridge.Hooks())
	if flags.session != "" {
		if err := svc.SwitchThread(ctx, flags.session); err != nil {
			return err
		}
	}

	m := chat.New(chat.Options{
		Service:     svc,
		Bridge:      bridge,
		Models:      client,
		Theme:       styles.NewTheme(a.cfg.UI.Theme, os.Stdout),
		UI:          a.cfg.UI,
		Placeholder: a.cfg.Chat.Placeholder,
		Logger:      log.Component("chat"),
	})

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))

	w, err := config.Watch(a.cfgPath, config.DefaultWatchDebounce,
		func(cfg *config.Config) {
			a.applyFlags(cfg)
			p.Send(chat.ConfigReloadedMsg{Config: cfg})
		},
		func(err error) {
			log.WithError(err).Warn("config reload failed")
		},
	)
	if err != nil {
		log.WithError(err).Debug("config watch unavailable")
	} else {
		defer w.Close()
	}

	log.WithField("backend", a.cfg.Backend.URL).Info("chat started")
	_, err = p.Run()
	return err
}
