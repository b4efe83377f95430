// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for threads and messages.
package model

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// PlaceholderText is shown in the bot slot until the first fragment arrives.
const PlaceholderText = "Loading response..."

// =============================================================================
// ORIGIN TYPE
// =============================================================================

// Origin identifies who produced a message.
type Origin string

const (
	OriginUser Origin = "user"
	OriginBot  Origin = "bot"
)

// String returns the string representation of the origin.
func (o Origin) String() string {
	return string(o)
}

// DisplayName returns a human-readable name for the origin.
func (o Origin) DisplayName() string {
	switch o {
	case OriginUser:
		return "You"
	case OriginBot:
		return "Bizartvisor"
	default:
		return string(o)
	}
}

// OriginFromWire maps the backend's message type onto an Origin.
// The backend labels user turns "human"; every other type is a bot turn.
func OriginFromWire(kind string) Origin {
	if strings.EqualFold(kind, "human") || strings.EqualFold(kind, "user") {
		return OriginUser
	}
	return OriginBot
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single entry in a thread.
// Messages are values: a streamed reply is replaced, never mutated.
type Message struct {
	Text   string `json:"message"`
	Origin Origin `json:"sender"`
}

// UserMessage creates a message typed by the user.
func UserMessage(text string) Message {
	return Message{Text: text, Origin: OriginUser}
}

// BotMessage creates a message produced by the backend.
func BotMessage(text string) Message {
	return Message{Text: text, Origin: OriginBot}
}

// IsUser reports whether the message was typed by the user.
func (m Message) IsUser() bool {
	return m.Origin == OriginUser
}

// IsBot reports whether the message came from the backend.
func (m Message) IsBot() bool {
	return m.Origin == OriginBot
}

// Preview returns the first line of the text, truncated to maxWidth cells.
func (m Message) Preview(maxWidth int) string {
	text := m.Text
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	text = strings.TrimSpace(text)
	if maxWidth <= 0 {
		return text
	}
	return runewidth.Truncate(text, maxWidth, "...")
}
