// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands provides the slash command system shared by the chat
// TUI and the line REPL.
//
// A Registry maps command names and aliases to Commands. Each Command
// carries an Action; the client decides how to carry it out, so the same
// table drives both front ends:
//
//	/help, /?          show commands
//	/new               start a new thread
//	/history           list stored threads
//	/switch <id>       load a stored thread
//	/model [name]      show or set the model
//	/models            list models
//	/rag [on|off]      toggle retrieval
//	/news [on|off]     toggle the news tool
//	/copy              copy the last reply
//	/status            show session and settings
//	/quit, /exit       leave
package commands
