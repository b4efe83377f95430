// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the bizartvisor
terminal clients.

# Colors (colors.go)

All colors are Lip Gloss AdaptiveColor values so they follow the terminal
background:

  - Cyan - user messages and prompts
  - Purple - bot messages and selections
  - Emerald, Amber, Rose, Blue - success, warning, error, info

# Theme (theme.go)

A Theme binds the palette to one output through its own lipgloss Renderer.
The theme name comes from the [ui] theme setting:

	dark   - force a dark background
	light  - force a light background
	auto   - ask the terminal
	notty  - no colors or attributes, for pipes and dumb terminals

Example:

	theme := styles.NewTheme(cfg.UI.Theme, os.Stdout)
	fmt.Println(theme.BotLabel.Render(model.OriginBot.DisplayName()))
*/
package styles
