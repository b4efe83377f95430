// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeranaias/bizartvisor-cli/internal/backend"
	"github.com/jeranaias/bizartvisor-cli/internal/ui/styles"
)

func newHistoryCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"threads"},
		Short:   "List stored threads, newest first",
		GroupID: "chat",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := a.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer log.Close()

			ids, err := a.client(log).ListHistory(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if ids == nil {
					ids = []string{}
				}
				return writeJSON(out, ids)
			}
			if len(ids) == 0 {
				fmt.Fprintln(out, styles.RenderInfo("No stored threads."))
				return nil
			}
			for i, id := range ids {
				fmt.Fprintf(out, "%3d  %s\n", i+1, id)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	cmd.AddCommand(newHistoryShowCmd(a))
	return cmd
}

func newHistoryShowCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print the messages of a stored thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := a.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer log.Close()

			t, err := a.client(log).ChangeThread(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				conv := backend.WireConversation{SessionID: t.SessionID, Messages: []backend.WireMessage{}}
				for _, m := range t.Messages {
					conv.Messages = append(conv.Messages, backend.WireMessageFrom(m))
				}
				return writeJSON(out, conv)
			}

			fmt.Fprintln(out, TitleStyle.Render("Thread "+t.SessionID))
			fmt.Fprintln(out)
			if len(t.Messages) == 0 {
				fmt.Fprintln(out, MutedStyle.Render("(empty)"))
				return nil
			}
			writeThread(out, t)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}
