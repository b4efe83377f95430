// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/jeranaias/bizartvisor-cli/internal/backend"
)

// Prompt is everything a Responder sees for one exchange.
type Prompt struct {
	Input       string
	SessionID   string
	ModelName   string
	UseRAG      bool
	UseNewsTool bool

	// History holds the stored conversation before this exchange
	History []backend.WireMessage
}

// Responder produces the full reply text for a prompt.
type Responder interface {
	Respond(ctx context.Context, p Prompt) (string, error)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, p Prompt) (string, error)

// Respond calls f(ctx, p).
func (f ResponderFunc) Respond(ctx context.Context, p Prompt) (string, error) {
	return f(ctx, p)
}

// EchoResponder answers deterministically by echoing the input.
type EchoResponder struct{}

// Respond implements Responder.
func (EchoResponder) Respond(_ context.Context, p Prompt) (string, error) {
	var b strings.Builder

	model := p.ModelName
	if model == "" {
		model = "default model"
	}
	turn := len(p.History)/2 + 1
	fmt.Fprintf(&b, "**%s** (turn %d)\n\nYou said: %s", model, turn, strings.TrimSpace(p.Input))

	var notes []string
	if p.UseRAG {
		notes = append(notes, "knowledge base consulted")
	}
	if p.UseNewsTool {
		notes = append(notes, "news search enabled")
	}
	if len(notes) > 0 {
		fmt.Fprintf(&b, "\n\n_%s_", strings.Join(notes, ", "))
	}
	return b.String(), nil
}
