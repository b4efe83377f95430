// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/bizartvisor-cli/internal/conversation"
	"github.com/jeranaias/bizartvisor-cli/internal/model"
	"github.com/jeranaias/bizartvisor-cli/internal/session"
)

// DefaultBridgeBuffer is the event buffer used by NewBridge when size <= 0.
const DefaultBridgeBuffer = 128

// Bridge carries conversation hook calls into the Bubble Tea loop.
//
// Hooks run on the exchange goroutine. State and session events are always
// delivered; snapshot events are dropped when the buffer is full because
// the view re-reads the whole thread on every redraw.
type Bridge struct {
	events chan tea.Msg
	done   chan struct{}
	once   sync.Once
}

// NewBridge creates a bridge with a buffer of size events.
func NewBridge(size int) *Bridge {
	if size <= 0 {
		size = DefaultBridgeBuffer
	}
	return &Bridge{
		events: make(chan tea.Msg, size),
		done:   make(chan struct{}),
	}
}

// Hooks returns conversation hooks that publish into the bridge.
func (b *Bridge) Hooks() conversation.Hooks {
	return conversation.Hooks{
		OnState: func(from, to conversation.State) {
			b.send(stateMsg{From: from, To: to})
		},
		OnSnapshot: func(msg model.Message) {
			select {
			case b.events <- snapshotMsg{Message: msg}:
			case <-b.done:
			default:
			}
		},
		OnSession: func(ev session.ChangeEvent) {
			b.send(sessionMsg{Event: ev})
		},
	}
}

func (b *Bridge) send(msg tea.Msg) {
	select {
	case b.events <- msg:
	case <-b.done:
	}
}

// Wait returns a command that delivers the next bridge event.
func (b *Bridge) Wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.events:
			return msg
		case <-b.done:
			return bridgeClosedMsg{}
		}
	}
}

// Close stops delivery. Pending hook calls return immediately.
func (b *Bridge) Close() {
	b.once.Do(func() { close(b.done) })
}
