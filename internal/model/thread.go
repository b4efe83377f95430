// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for threads and messages.
package model

// NewSessionID is the session id of a thread the backend has not seen yet.
const NewSessionID = "new_session_id"

// =============================================================================
// THREAD TYPE
// =============================================================================

// Thread is the ordered sequence of messages bound to one backend session.
type Thread struct {
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
}

// NewThread returns an empty thread that has no backend session yet.
func NewThread() Thread {
	return Thread{SessionID: NewSessionID, Messages: []Message{}}
}

// IsNew reports whether the backend has not assigned a session id yet.
func (t Thread) IsNew() bool {
	return t.SessionID == "" || t.SessionID == NewSessionID
}

// Len returns the number of messages.
func (t Thread) Len() int {
	return len(t.Messages)
}

// Clone returns a deep copy of the thread.
func (t Thread) Clone() Thread {
	msgs := make([]Message, len(t.Messages))
	copy(msgs, t.Messages)
	return Thread{SessionID: t.SessionID, Messages: msgs}
}

// Title returns a short title taken from the first user message.
func (t Thread) Title(maxWidth int) string {
	for _, m := range t.Messages {
		if m.IsUser() {
			return m.Preview(maxWidth)
		}
	}
	if t.IsNew() {
		return "New Chat"
	}
	return t.SessionID
}
