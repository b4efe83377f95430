// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides the HTTP client for the conversation backend.
//
// The central call is Stream, which posts one user input and returns a
// StreamHandle carrying the session id announced in the X-Session-ID header
// and a lazy fragment sequence over the chunked text body. A failed status
// or a missing body is reported as a *TransportError before any fragment
// is read. No call is ever retried.
//
// The remaining calls serve the history and settings collaborators:
// ListHistory, ChangeThread and ListModels.
//
// # Usage
//
//	client := backend.NewClientWithConfig(&backend.ClientConfig{BaseURL: url})
//	h, err := client.Stream(ctx, backend.StreamRequest{Input: "Hello", SessionID: model.NewSessionID})
//	if err != nil {
//	    return err
//	}
//	for text, err := range h.Fragments.All(ctx) {
//	    ...
//	}
package backend
