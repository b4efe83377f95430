// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"strings"
	"sync"

	"github.com/jeranaias/bizartvisor-cli/internal/thread"
)

// ChangeEvent describes a published session id change.
type ChangeEvent struct {
	Old string
	New string
}

// Listener is notified after a change has been applied to the store.
type Listener func(ChangeEvent)

// =============================================================================
// RECONCILER
// =============================================================================

// Reconciler handles the session id of a single exchange.
// Create one per exchange; Publish takes effect at most once.
type Reconciler struct {
	mu        sync.Mutex
	store     thread.SessionStore
	listeners []Listener
	header    string
	observed  bool
	published bool
}

// NewReconciler creates a reconciler that applies changes to store.
func NewReconciler(store thread.SessionStore, listeners ...Listener) *Reconciler {
	return &Reconciler{store: store, listeners: listeners}
}

// Observe records the header session id once the transport has resolved.
// Blank values mean the header was absent. Only the first call counts.
func (r *Reconciler) Observe(headerSessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.observed {
		return
	}
	r.observed = true
	r.header = strings.TrimSpace(headerSessionID)
}

// Pending returns the id Publish would apply, if any.
func (r *Reconciler) Pending() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.published || r.header == "" {
		return "", false
	}
	if r.header == r.store.SessionID() {
		return "", false
	}
	return r.header, true
}

// Publish applies the observed id to the store when it is non-empty and
// differs from the current one, then notifies listeners. It reports whether
// a change was published. Later calls are no-ops.
func (r *Reconciler) Publish() (ChangeEvent, bool) {
	r.mu.Lock()
	if r.published {
		r.mu.Unlock()
		return ChangeEvent{}, false
	}
	r.published = true

	current := r.store.SessionID()
	if r.header == "" || r.header == current {
		r.mu.Unlock()
		return ChangeEvent{}, false
	}

	ev := ChangeEvent{Old: current, New: r.header}
	r.store.SetSessionID(ev.New)
	listeners := r.listeners
	r.mu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
	return ev, true
}

// Published reports whether Publish has run.
func (r *Reconciler) Published() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.published
}
