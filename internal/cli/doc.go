// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the bizartvisor command tree.
//
// Commands:
//
//	bizartvisor [chat]            full-screen chat (default)
//	bizartvisor repl              line-mode chat with history
//	bizartvisor ask <question>    one exchange, reply on stdout
//	bizartvisor history [show]    stored threads, newest first
//	bizartvisor models            models offered by the backend
//	bizartvisor serve             development backend
//	bizartvisor config ...        show, init, path, get, set, keys
//
// Persistent flags --config, --backend and --log-level apply to every
// command. Output that scripts may consume goes to stdout; progress and
// logs go to stderr.
package cli
