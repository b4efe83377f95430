// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the interactive chat view for bizartvisor.
//
// The Model renders the active thread of a conversation.Service. Exchanges
// run in a tea.Cmd goroutine; the Service hooks feed a Bridge whose events
// come back into Update as messages, so the viewport redraws once per
// fragment while the reply grows in place.
//
// Layout, top to bottom:
//
//	header      model, tool flags, session id
//	viewport    thread messages (completed bot replies rendered as markdown)
//	panel       help, status or command output (optional)
//	input       textarea, Enter submits, ctrl+j inserts a newline
//	status bar  exchange state and last reply stats
//
// Slash commands are parsed with internal/commands and share their
// behaviour with the line REPL.
package chat
