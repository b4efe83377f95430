// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"github.com/jeranaias/bizartvisor-cli/internal/model"
	"github.com/jeranaias/bizartvisor-cli/internal/stream"
)

// SessionHeader carries the session id assigned by the backend.
const SessionHeader = "X-Session-ID"

// Endpoint paths.
const (
	PathStream        = "/stream_response"
	PathHistory       = "/get_conversation_history"
	PathChangeThread  = "/change_message_thread"
	PathModelNames    = "/get_llm_names"
	wireTypeHuman     = "human"
	wireTypeAssistant = "ai"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// StreamRequest is the JSON body of POST /stream_response.
// Optional fields are omitted when unset.
type StreamRequest struct {
	Input       string `json:"input"`
	SessionID   string `json:"session_id"`
	ModelName   string `json:"model_name,omitempty"`
	UseRAG      *bool  `json:"useRAG,omitempty"`
	UseNewsTool *bool  `json:"useNewsTool,omitempty"`
}

// Bool returns a pointer to b, for the optional request flags.
func Bool(b bool) *bool {
	return &b
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// StreamHandle is one open response. It lives until Fragments ends.
type StreamHandle struct {
	// HeaderSessionID is the X-Session-ID value, "" when absent or blank.
	HeaderSessionID string

	// Fragments yields the decoded reply text.
	Fragments *stream.Fragments

	// StatusCode is the HTTP status of the response.
	StatusCode int
}

// HasSessionID reports whether the backend announced a session id.
func (h *StreamHandle) HasSessionID() bool {
	return h.HeaderSessionID != ""
}

// Close abandons the stream and releases the connection.
func (h *StreamHandle) Close() error {
	return h.Fragments.Close()
}

// WireMessage is one entry of a stored conversation.
type WireMessage struct {
	Content string `json:"content"`
	Type    string `json:"type"`
}

// WireConversation is the body of GET /change_message_thread.
type WireConversation struct {
	SessionID string        `json:"session_id"`
	Messages  []WireMessage `json:"messages"`
}

// Thread converts the wire form into a model.Thread.
func (c WireConversation) Thread() model.Thread {
	t := model.Thread{SessionID: c.SessionID, Messages: make([]model.Message, 0, len(c.Messages))}
	for _, m := range c.Messages {
		t.Messages = append(t.Messages, model.Message{Text: m.Content, Origin: model.OriginFromWire(m.Type)})
	}
	return t
}

// WireMessageFrom converts a model.Message into its stored form.
func WireMessageFrom(m model.Message) WireMessage {
	kind := wireTypeAssistant
	if m.IsUser() {
		kind = wireTypeHuman
	}
	return WireMessage{Content: m.Text, Type: kind}
}

// ErrorBody is the JSON error shape returned with 4xx responses.
type ErrorBody struct {
	Error string `json:"error"`
}
