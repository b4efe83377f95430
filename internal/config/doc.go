// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for bizartvisor.
//
// Configuration is TOML with sensible defaults, environment variable
// overrides, validation and an optional file watcher for live reload.
//
// # Key Types
//
//   - Config: main configuration structure
//   - ChatConfig: model name and tool toggles sent with each exchange
//   - ServerConfig: development backend settings
//   - Watcher: reloads the file when it changes
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (BIZARTVISOR_*)
//   - ~/.bizartvisor/config.toml (or the --config path)
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client := backend.NewClientWithConfig(&backend.ClientConfig{BaseURL: cfg.Backend.URL})
package config
