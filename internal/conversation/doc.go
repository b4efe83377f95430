// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation runs one user exchange against the backend.
//
// Submit drives a single exchange through its states:
//
//	IDLE -> AWAITING_STREAM -> STREAMING -> SESSION_SYNC -> IDLE
//
// It appends the user message and a placeholder bot message, opens the
// stream, replaces the placeholder with a growing snapshot after every
// fragment, and once the stream has ended applies the session id the
// backend announced. Only one exchange runs per Service; a second Submit
// while one is streaming fails with ErrStreamInFlight.
//
// Failure handling:
//
//   - Request-time failures (non-2xx, no body, unreachable) leave the user
//     message and the untouched placeholder in the thread and return a
//     *backend.TransportError.
//   - A body that breaks mid-read keeps the partial reply, still applies
//     the announced session id, and returns the *backend.TransportError.
//   - Cancelling ctx is not an error: the partial reply is kept (an empty
//     one replaces the placeholder), the session id is applied and
//     Result.Canceled is set.
package conversation
