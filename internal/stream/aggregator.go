// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/jeranaias/bizartvisor-cli/internal/model"
)

// Sink receives reply snapshots. thread.Controller satisfies it.
type Sink interface {
	ReplaceLast(msg model.Message) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(msg model.Message) error

// ReplaceLast calls f(msg).
func (f SinkFunc) ReplaceLast(msg model.Message) error {
	return f(msg)
}

// =============================================================================
// STATS
// =============================================================================

// Stats describes one aggregated reply.
type Stats struct {
	Fragments       int
	Bytes           int
	FirstFragment   time.Duration // time from start to first fragment
	TotalTime       time.Duration
	FragmentsPerSec float64
}

// =============================================================================
// AGGREGATOR
// =============================================================================

// Aggregator folds fragments into one reply.
// The accumulator only ever grows by appending, and every fragment
// produces exactly one snapshot, delivered in arrival order.
type Aggregator struct {
	sink      Sink
	full      strings.Builder
	fragments int
	startTime time.Time
	firstAt   time.Time
	endTime   time.Time
	finished  bool
}

// NewAggregator creates an aggregator that writes snapshots to sink.
func NewAggregator(sink Sink) *Aggregator {
	return &Aggregator{
		sink:      sink,
		startTime: time.Now(),
	}
}

// Add appends fragment and emits the resulting snapshot.
func (a *Aggregator) Add(fragment string) (model.Message, error) {
	if a.fragments == 0 {
		a.firstAt = time.Now()
	}
	a.fragments++
	a.full.WriteString(fragment)

	snap := model.BotMessage(a.full.String())
	if err := a.sink.ReplaceLast(snap); err != nil {
		return snap, err
	}
	return snap, nil
}

// Consume pulls fragments until the sequence ends, adding each one.
// Normal completion returns nil. A failure leaves the snapshots already
// emitted in place and is returned unchanged.
func (a *Aggregator) Consume(ctx context.Context, frags *Fragments) error {
	for {
		text, err := frags.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := a.Add(text); err != nil {
			frags.Close()
			return err
		}
	}
}

// Finish marks the reply complete and returns it. A reply with no
// fragments replaces the placeholder with an empty message so the final
// text is always the concatenation of all fragments.
func (a *Aggregator) Finish() (model.Message, error) {
	final := model.BotMessage(a.full.String())
	if a.finished {
		return final, nil
	}
	a.finished = true
	a.endTime = time.Now()
	if a.fragments == 0 {
		if err := a.sink.ReplaceLast(final); err != nil {
			return final, err
		}
	}
	return final, nil
}

// Text returns the reply accumulated so far.
func (a *Aggregator) Text() string {
	return a.full.String()
}

// Fragments returns the number of fragments added.
func (a *Aggregator) Fragments() int {
	return a.fragments
}

// Stats returns timing and size statistics.
func (a *Aggregator) Stats() Stats {
	end := a.endTime
	if end.IsZero() {
		end = time.Now()
	}
	s := Stats{
		Fragments: a.fragments,
		Bytes:     a.full.Len(),
		TotalTime: end.Sub(a.startTime),
	}
	if !a.firstAt.IsZero() {
		s.FirstFragment = a.firstAt.Sub(a.startTime)
	}
	if s.TotalTime > 0 {
		s.FragmentsPerSec = float64(a.fragments) / s.TotalTime.Seconds()
	}
	return s
}
