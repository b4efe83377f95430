// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream turns a chunked response body into a growing reply.
//
// The pipeline has two stages:
//
//   - Fragments pulls one body read per Next call and decodes it with an
//     incremental UTF-8 Decoder, so a character split across reads is
//     emitted whole with the later fragment.
//   - Aggregator folds fragments into an append-only accumulator and hands
//     a snapshot of the whole reply to its Sink after every fragment.
//
// Fragments is finite and cannot be restarted; reading the reply again
// needs a new request.
//
// # Usage
//
//	frags := stream.NewFragments(resp.Body)
//	agg := stream.NewAggregator(controller)
//	if err := agg.Consume(ctx, frags); err != nil {
//	    return err
//	}
//	final, err := agg.Finish()
package stream
