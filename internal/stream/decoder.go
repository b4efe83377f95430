// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const decodeBufSize = 4096

// =============================================================================
// ERRORS
// =============================================================================

// DecodeError reports a decoder failure that could not be repaired with a
// replacement character.
type DecodeError struct {
	Offset int64 // bytes of input consumed before the failure
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode stream at byte %d: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is or wraps a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// =============================================================================
// DECODER
// =============================================================================

// Decoder converts UTF-8 bytes arriving in arbitrary chunks into text.
// Incomplete sequences at the end of a chunk are held back until the next
// chunk; invalid bytes become U+FFFD.
type Decoder struct {
	t       transform.Transformer
	pending []byte
	buf     []byte
	offset  int64
}

// NewDecoder creates a decoder with empty state.
func NewDecoder() *Decoder {
	return &Decoder{
		t:   unicode.UTF8.NewDecoder(),
		buf: make([]byte, decodeBufSize),
	}
}

// Decode decodes chunk, prefixed by any bytes held back from the previous
// call. With atEOF set, held-back bytes are flushed as U+FFFD.
func (d *Decoder) Decode(chunk []byte, atEOF bool) (string, error) {
	src := chunk
	if len(d.pending) > 0 {
		src = append(d.pending, chunk...)
		d.pending = nil
	}

	var out strings.Builder
	for {
		nDst, nSrc, err := d.t.Transform(d.buf, src, atEOF)
		out.Write(d.buf[:nDst])
		src = src[nSrc:]
		d.offset += int64(nSrc)

		switch {
		case err == nil:
			return out.String(), nil
		case errors.Is(err, transform.ErrShortSrc) && !atEOF:
			d.pending = append([]byte(nil), src...)
			return out.String(), nil
		case errors.Is(err, transform.ErrShortDst) && (nDst > 0 || nSrc > 0):
			continue
		default:
			return out.String(), &DecodeError{Offset: d.offset, Err: err}
		}
	}
}

// Flush decodes whatever is held back as if the input had ended.
func (d *Decoder) Flush() (string, error) {
	return d.Decode(nil, true)
}

// Pending returns the number of bytes held back for the next chunk.
func (d *Decoder) Pending() int {
	return len(d.pending)
}

// Reset clears all state.
func (d *Decoder) Reset() {
	d.t.Reset()
	d.pending = nil
	d.offset = 0
}
