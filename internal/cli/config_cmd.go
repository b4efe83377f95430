// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jeranaias/bizartvisor-cli/internal/config"
	"github.com/jeranaias/bizartvisor-cli/internal/ui/styles"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show and edit the configuration file",
		Long: `Show and edit ~/.bizartvisor/config.toml (or the file named by --config).

'show' prints the effective configuration including environment overrides.
'get' and 'set' use dot notation, e.g. chat.model_name. 'set' edits only the
file and never writes environment overrides back.`,
		GroupID: "setup",
		// Subcommands below decide how much of the config they need.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.resolvePath()
		},
	}
	cmd.AddCommand(
		newConfigShowCmd(a),
		newConfigInitCmd(a),
		newConfigPathCmd(a),
		newConfigGetCmd(a),
		newConfigSetCmd(a),
		newConfigKeysCmd(),
	)
	return cmd
}

func newConfigShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd, args); err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), a.cfg.String())
			return nil
		},
	}
}

func newConfigInitCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(a.cfgPath); err == nil && !force {
				return &UsageError{Message: fmt.Sprintf("%s already exists (use --force to overwrite)", a.cfgPath)}
			}
			if err := writeConfig(config.Default(), a.cfgPath); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), styles.RenderSuccess("Wrote "+a.cfgPath))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func newConfigPathCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), a.cfgPath)
			return nil
		},
	}
}

func newConfigGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print one effective setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd, nil); err != nil {
				return err
			}
			v, err := a.cfg.Get(args[0])
			if err != nil {
				return &UsageError{Message: err.Error()}
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

func newConfigSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting in the config file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if _, err := os.Stat(a.cfgPath); err == nil {
				if err := config.LoadTOML(cfg, a.cfgPath); err != nil {
					return &ConfigError{Path: a.cfgPath, Err: err}
				}
			} else if !errors.Is(err, os.ErrNotExist) {
				return &ConfigError{Path: a.cfgPath, Err: err}
			}

			if err := cfg.Set(args[0], args[1]); err != nil {
				return &UsageError{Message: err.Error()}
			}
			if err := cfg.Validate(); err != nil {
				return &ConfigError{Err: err}
			}
			if err := writeConfig(cfg, a.cfgPath); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), styles.RenderSuccess(fmt.Sprintf("%s = %s", args[0], args[1])))
			return nil
		},
	}
}

func newConfigKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List every settable key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, k := range config.Keys() {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
}

func writeConfig(cfg *config.Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return &ConfigError{Path: path, Err: err}
	}
	if err := config.Save(cfg, path); err != nil {
		return &ConfigError{Path: path, Err: err}
	}
	return nil
}
