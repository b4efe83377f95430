// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/bizartvisor-cli/internal/model"
)

func newModelsCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "models",
		Short:   "List the models the backend accepts",
		Long:    "List the models the backend accepts. The configured model is marked with *.",
		GroupID: "backend",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := a.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer log.Close()

			names, err := a.client(log).ListModels(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, model.ModelsFromNames(names))
			}
			current := a.cfg.Chat.ModelName
			for _, name := range names {
				marker := "  "
				if strings.EqualFold(name, current) {
					marker = "* "
				}
				fmt.Fprintf(out, "%s%-24s %s\n", marker, name, MutedStyle.Render(model.ProviderFor(name)))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}
