// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package thread owns the active message thread.
//
// The Controller is the only writer of the thread. Streaming code sees it
// through the narrow Writer interface (Append and ReplaceLast), so it can
// never reorder or drop messages. Reads return copies.
package thread

import (
	"fmt"
	"sync"

	"github.com/jeranaias/bizartvisor-cli/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

// EmptyThreadError is returned by ReplaceLast when there is nothing to replace.
// Callers always append a placeholder first, so seeing it is a bug.
type EmptyThreadError struct {
	SessionID string
}

func (e *EmptyThreadError) Error() string {
	return fmt.Sprintf("replace last message: thread %q is empty", e.SessionID)
}

// =============================================================================
// INTERFACES
// =============================================================================

// Writer is the mutation surface handed to the streaming pipeline.
type Writer interface {
	Append(msg model.Message)
	ReplaceLast(msg model.Message) error
}

// SessionStore holds the session id of the active thread.
type SessionStore interface {
	SessionID() string
	SetSessionID(id string)
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller owns one active thread.
// It is safe for concurrent use; mutations are serialised.
type Controller struct {
	mu       sync.RWMutex
	thread   model.Thread
	onChange func(model.Thread)
}

// NewController creates a controller holding the default empty thread.
func NewController() *Controller {
	return &Controller{thread: model.NewThread()}
}

// OnChange registers fn to be called with a copy of the thread after every
// mutation. fn runs without the lock held.
func (c *Controller) OnChange(fn func(model.Thread)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Append adds msg as the new last element.
func (c *Controller) Append(msg model.Message) {
	c.mu.Lock()
	c.thread.Messages = append(c.thread.Messages, msg)
	c.mu.Unlock()
	c.notify()
}

// ReplaceLast overwrites the last element with msg.
// The thread length never changes.
func (c *Controller) ReplaceLast(msg model.Message) error {
	c.mu.Lock()
	n := len(c.thread.Messages)
	if n == 0 {
		id := c.thread.SessionID
		c.mu.Unlock()
		return &EmptyThreadError{SessionID: id}
	}
	c.thread.Messages[n-1] = msg
	c.mu.Unlock()
	c.notify()
	return nil
}

// SessionID returns the session id of the active thread.
func (c *Controller) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.thread.SessionID
}

// SetSessionID changes the session id of the active thread.
func (c *Controller) SetSessionID(id string) {
	c.mu.Lock()
	c.thread.SessionID = id
	c.mu.Unlock()
	c.notify()
}

// Load replaces the active thread wholesale, e.g. after a history switch.
func (c *Controller) Load(t model.Thread) {
	if t.SessionID == "" {
		t.SessionID = model.NewSessionID
	}
	t = t.Clone()
	c.mu.Lock()
	c.thread = t
	c.mu.Unlock()
	c.notify()
}

// Reset makes the active thread a new, empty one.
func (c *Controller) Reset() {
	c.Load(model.NewThread())
}

// Snapshot returns a copy of the active thread.
func (c *Controller) Snapshot() model.Thread {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.thread.Clone()
}

// Len returns the number of messages in the active thread.
func (c *Controller) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.thread.Messages)
}

// Last returns the last message, if any.
func (c *Controller) Last() (model.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.thread.Messages) == 0 {
		return model.Message{}, false
	}
	return c.thread.Messages[len(c.thread.Messages)-1], true
}

// LastBotText returns the text of the most recent bot message.
func (c *Controller) LastBotText() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := len(c.thread.Messages) - 1; i >= 0; i-- {
		if c.thread.Messages[i].IsBot() {
			return c.thread.Messages[i].Text, true
		}
	}
	return "", false
}

func (c *Controller) notify() {
	c.mu.RLock()
	fn := c.onChange
	var snap model.Thread
	if fn != nil {
		snap = c.thread.Clone()
	}
	c.mu.RUnlock()
	if fn != nil {
		fn(snap)
	}
}

var (
	_ Writer       = (*Controller)(nil)
	_ SessionStore = (*Controller)(nil)
)
