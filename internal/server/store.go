// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"slices"
	"sync"

	"github.com/jeranaias/bizartvisor-cli/internal/backend"
)

// Store keeps conversations in memory, keyed by session id.
type Store struct {
	mu       sync.RWMutex
	sessions map[string][]backend.WireMessage
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{sessions: make(map[string][]backend.WireMessage)}
}

// Append adds messages to the conversation id, creating it if needed.
func (s *Store) Append(id string, msgs ...backend.WireMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = append(s.sessions[id], msgs...)
}

// Messages returns a copy of the conversation id. Unknown ids yield an
// empty, non-nil slice.
func (s *Store) Messages(id string) []backend.WireMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]backend.WireMessage, len(s.sessions[id]))
	copy(out, s.sessions[id])
	return out
}

// IDs returns every stored session id in ascending order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Len returns the number of stored conversations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
