// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for threads and messages.
//
// This package defines the domain types shared by the transport, the
// streaming pipeline and the user interfaces.
//
// # Key Types
//
//   - Message: one entry of a thread, with text and origin (user or bot)
//   - Thread: a session id plus the ordered messages bound to it
//   - ModelInfo: a backend model that can be selected for generation
//
// # Usage
//
// Start from the default thread and add messages:
//
//	t := model.NewThread()
//	t.Messages = append(t.Messages, model.UserMessage("Hello"))
//
// A thread whose SessionID is NewSessionID has not been registered with the
// backend yet; the backend assigns an id on the first exchange.
package model
