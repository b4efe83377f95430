// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/jeranaias/bizartvisor-cli/internal/config"
	"github.com/jeranaias/bizartvisor-cli/internal/conversation"
	"github.com/jeranaias/bizartvisor-cli/internal/model"
	"github.com/jeranaias/bizartvisor-cli/internal/session"
)

// =============================================================================
// EXCHANGE MESSAGES
// =============================================================================

// stateMsg reports an exchange state transition.
type stateMsg struct {
	From conversation.State
	To   conversation.State
}

// snapshotMsg reports the reply text after one fragment.
type snapshotMsg struct {
	Message model.Message
}

// sessionMsg reports that the thread adopted a new session id.
type sessionMsg struct {
	Event session.ChangeEvent
}

// exchangeDoneMsg carries the outcome of Service.Submit.
type exchangeDoneMsg struct {
	Result *conversation.Result
	Err    error
}

// bridgeClosedMsg is delivered once the bridge is closed.
type bridgeClosedMsg struct{}

// =============================================================================
// THREAD AND SETTINGS MESSAGES
// =============================================================================

// historyMsg carries stored session ids, newest first.
type historyMsg struct {
	IDs []string
	Err error
}

// threadLoadedMsg reports the result of a thread switch.
type threadLoadedMsg struct {
	ID  string
	Err error
}

// modelsMsg carries the model names offered by the backend.
type modelsMsg struct {
	Names []string
	Err   error
	// Open shows the picker once the list arrives
	Open bool
}

// clipboardMsg reports the result of copying a reply.
type clipboardMsg struct {
	Chars int
	Err   error
}

// ConfigReloadedMsg delivers a configuration re-read from disk.
type ConfigReloadedMsg struct {
	Config *config.Config
}
