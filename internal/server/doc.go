// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides an in-memory development backend that speaks the
// same wire protocol as the production conversation service.
//
// Endpoints:
//   - GET  /                          - Greeting
//   - POST /stream_response           - Stream a reply as text/plain chunks
//   - GET  /get_conversation_history  - List stored session ids
//   - GET  /change_message_thread?id= - Fetch one stored conversation
//   - GET  /get_llm_names             - List model names
//   - GET  /stats                     - Usage statistics
//
// Every stream response carries the session id in the X-Session-ID header.
// A request with session_id "new_session_id" gets a fresh time-ordered
// UUID, so sorting ids descending lists the newest session first.
//
// Replies are cut into fixed-size byte chunks, each flushed separately and
// separated by a configurable delay. Chunk boundaries ignore UTF-8
// character boundaries so clients see split multi-byte sequences.
package server
