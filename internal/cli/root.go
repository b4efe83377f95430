// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/jeranaias/bizartvisor-cli/internal/backend"
	"github.com/jeranaias/bizartvisor-cli/internal/config"
	"github.com/jeranaias/bizartvisor-cli/internal/conversation"
	"github.com/jeranaias/bizartvisor-cli/internal/logging"
	"github.com/jeranaias/bizartvisor-cli/internal/thread"
)

// =============================================================================
// APPLICATION STATE
// =============================================================================

type rootFlags struct {
	configPath string
	backendURL string
	logLevel   string
}

// app is shared by every command of one invocation.
type app struct {
	flags   rootFlags
	cfgPath string
	cfg     *config.Config
}

// chatFlags override the [chat] section for one run.
type chatFlags struct {
	model   string
	session string
	rag     bool
	news    bool
}

func addChatFlags(cmd *cobra.Command, f *chatFlags) {
	cmd.Flags().StringVarP(&f.model, "model", "m", "", "Model name sent with each exchange")
	cmd.Flags().StringVar(&f.session, "session", "", "Continue a stored thread by session id")
	cmd.Flags().BoolVar(&f.rag, "rag", false, "Consult the knowledge base")
	cmd.Flags().BoolVar(&f.news, "news", false, "Enable the news search tool")
}

// settings applies f to the configured chat settings.
func (f chatFlags) settings(cmd *cobra.Command, c config.ChatConfig) conversation.Settings {
	s := conversation.SettingsFromConfig(c)
	if f.model != "" {
		s.ModelName = f.model
	}
	if cmd.Flags().Changed("rag") {
		s.UseRAG = f.rag
	}
	if cmd.Flags().Changed("news") {
		s.UseNewsTool = f.news
	}
	return s
}

// =============================================================================
// ROOT COMMAND
// =============================================================================

// Execute runs the command tree with os.Args.
func Execute(ctx context.Context, version string) error {
	return NewRootCmd(version).ExecuteContext(ctx)
}

// NewRootCmd builds the command tree.
func NewRootCmd(version string) *cobra.Command {
	a := &app{}

	var chat chatFlags
	root := &cobra.Command{
		Use:   "bizartvisor",
		Short: "Chat with a bizartvisor backend from the terminal",
		Long: `bizartvisor streams answers from a conversation backend into your terminal.

Run without a command to open the full-screen chat. Threads live on the
backend; 'bizartvisor history' lists them and '--session' continues one.`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.load,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat(cmd, chat)
		},
	}
	addChatFlags(root, &chat)

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configPath, "config", "", "Config file (default ~/.bizartvisor/config.toml)")
	pf.StringVar(&a.flags.backendURL, "backend", "", "Backend base URL (overrides backend.url)")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")

	root.AddGroup(
		&cobra.Group{ID: "chat", Title: "Conversation:"},
		&cobra.Group{ID: "backend", Title: "Backend:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)
	root.AddCommand(
		newChatCmd(a),
		newReplCmd(a),
		newAskCmd(a),
		newHistoryCmd(a),
		newModelsCmd(a),
		newServeCmd(a),
		newConfigCmd(a),
	)
	return root
}

// resolvePath fills a.cfgPath from --config or the default location.
func (a *app) resolvePath() error {
	if a.flags.configPath != "" {
		a.cfgPath = a.flags.configPath
		return nil
	}
	p, err := config.ConfigPath()
	if err != nil {
		return &ConfigError{Err: err}
	}
	a.cfgPath = p
	return nil
}

// load reads the configuration and applies the persistent flags.
func (a *app) load(cmd *cobra.Command, _ []string) error {
	if err := a.resolvePath(); err != nil {
		return err
	}
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return &ConfigError{Path: a.cfgPath, Err: err}
	}
	a.applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return &ConfigError{Err: err}
	}
	a.cfg = cfg
	return nil
}

func (a *app) applyFlags(cfg *config.Config) {
	if a.flags.backendURL != "" {
		cfg.Backend.URL = a.flags.backendURL
	}
	if a.flags.logLevel != "" {
		cfg.Log.Level = a.flags.logLevel
	}
}

// =============================================================================
// WIRING
// =============================================================================

// logger builds a logger writing to w, or to the configured file when set.
func (a *app) logger(w io.Writer) (*logging.Logger, error) {
	log, err := logging.New(a.cfg.Log, w)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	return log, nil
}

// fileLogger builds a logger that never writes to the terminal.
func (a *app) fileLogger() *logging.Logger {
	cfg := a.cfg.Log
	if cfg.File == "" {
		p, err := config.LogPath()
		if err != nil {
			return logging.Discard()
		}
		cfg.File = p
	}
	log, err := logging.New(cfg, io.Discard)
	if err != nil {
		return logging.Discard()
	}
	return log
}

func (a *app) client(log *logging.Logger) *backend.Client {
	return backend.NewClientWithConfig(&backend.ClientConfig{
		BaseURL:        a.cfg.Backend.URL,
		Timeout:        a.cfg.Backend.Timeout(),
		ConnectTimeout: a.cfg.Backend.ConnectTimeout(),
		UserAgent:      a.cfg.Backend.UserAgent,
		Logger:         log.Component("backend"),
	})
}

func (a *app) service(client *backend.Client, log *logging.Logger, settings conversation.Settings, hooks conversation.Hooks) *conversation.Service {
	return conversation.NewService(client, thread.NewController(), conversation.Options{
		Placeholder: a.cfg.Chat.Placeholder,
		Settings:    settings,
		History:     client,
		Logger:      log.Component("conversation"),
		Hooks:       hooks,
	})
}
