// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"io"
	"iter"
)

const readBufSize = 4096

// ErrClosed is returned by Next after Close abandoned the sequence.
var ErrClosed = errors.New("fragment stream closed")

// ReadErrorFunc converts a body read failure into the error Next reports.
type ReadErrorFunc func(err error, partial int64) error

// Option configures Fragments.
type Option func(*Fragments)

// WithReadError installs fn to wrap body read failures, including an
// expired context deadline. Context cancellation is never passed to fn.
func WithReadError(fn ReadErrorFunc) Option {
	return func(f *Fragments) { f.wrapRead = fn }
}

// WithBufferSize sets the size of a single body read.
func WithBufferSize(n int) Option {
	return func(f *Fragments) {
		if n > 0 {
			f.buf = make([]byte, n)
		}
	}
}

// =============================================================================
// FRAGMENTS
// =============================================================================

// Fragments is a lazy, finite, non-restartable sequence of decoded text.
// Each Next performs at most the reads needed to produce one non-empty
// fragment. Once Next returns an error it returns the same error forever;
// io.EOF marks normal completion.
//
// Fragments is not safe for concurrent use.
type Fragments struct {
	r        io.Reader
	dec      *Decoder
	buf      []byte
	wrapRead ReadErrorFunc

	err      error // terminal error, returned by every later Next
	deferred error // terminal error to report after the last fragment
	count    int
	bytes    int64
}

// NewFragments reads fragments from r. If r is an io.Closer it is closed
// when the sequence ends.
func NewFragments(r io.Reader, opts ...Option) *Fragments {
	f := &Fragments{
		r:   r,
		dec: NewDecoder(),
		buf: make([]byte, readBufSize),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Next returns the next fragment. It blocks on the underlying reader.
func (f *Fragments) Next(ctx context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.deferred != nil {
		f.finish(f.deferred)
		return "", f.err
	}

	for {
		if err := ctx.Err(); err != nil {
			f.finish(f.contextErr(err))
			return "", f.err
		}

		n, rerr := f.r.Read(f.buf)
		f.bytes += int64(n)

		var text string
		if n > 0 {
			var derr error
			text, derr = f.dec.Decode(f.buf[:n], false)
			if derr != nil {
				return f.emit(text, derr)
			}
		}

		if rerr == io.EOF {
			tail, derr := f.dec.Flush()
			text += tail
			if derr != nil {
				return f.emit(text, derr)
			}
			return f.emit(text, io.EOF)
		}
		if rerr != nil {
			if cerr := ctx.Err(); cerr != nil {
				return f.emit(text, f.contextErr(cerr))
			}
			if f.wrapRead != nil {
				rerr = f.wrapRead(rerr, f.bytes)
			}
			return f.emit(text, rerr)
		}

		if text != "" {
			f.count++
			return text, nil
		}
	}
}

// emit returns text now and reports terminal on the following call.
func (f *Fragments) emit(text string, terminal error) (string, error) {
	if text == "" {
		f.finish(terminal)
		return "", terminal
	}
	f.count++
	f.deferred = terminal
	return text, nil
}

func (f *Fragments) finish(err error) {
	f.err = err
	f.deferred = nil
	if c, ok := f.r.(io.Closer); ok {
		c.Close()
	}
}

// contextErr leaves cancellation as is and wraps any other context error
// like a read failure.
func (f *Fragments) contextErr(err error) error {
	if errors.Is(err, context.Canceled) || f.wrapRead == nil {
		return err
	}
	return f.wrapRead(err, f.bytes)
}

// All returns an iterator over the remaining fragments. Iteration stops at
// the end of the sequence; a failure is yielded once as ("", err).
func (f *Fragments) All(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			text, err := f.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}

// Close abandons the sequence and releases the body. It is safe to call
// more than once and after the sequence ended.
func (f *Fragments) Close() error {
	if f.err == nil {
		f.finish(ErrClosed)
	}
	return nil
}

// Done reports whether the sequence has ended, successfully or not.
func (f *Fragments) Done() bool {
	return f.err != nil
}

// Err returns the terminal error, or nil while the sequence is live or
// after it completed normally.
func (f *Fragments) Err() error {
	if f.err == nil || errors.Is(f.err, io.EOF) {
		return nil
	}
	return f.err
}

// Count returns the number of fragments delivered so far.
func (f *Fragments) Count() int {
	return f.count
}

// Bytes returns the number of body bytes read so far.
func (f *Fragments) Bytes() int64 {
	return f.bytes
}
