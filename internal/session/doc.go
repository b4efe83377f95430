// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session reconciles the backend-assigned session id with the
// active thread.
//
// The backend announces the session id of an exchange in a response header
// that arrives before the body. The Reconciler records it when the stream
// opens and applies it only after the stream has ended, so every fragment
// of the reply lands under the id the exchange started with.
//
// # Usage
//
//	rec := session.NewReconciler(controller)
//	rec.Observe(handle.HeaderSessionID)
//	// ... consume the stream ...
//	if ev, ok := rec.Publish(); ok {
//	    log.Printf("session %s -> %s", ev.Old, ev.New)
//	}
package session
