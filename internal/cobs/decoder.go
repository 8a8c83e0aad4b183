// Copyright 2022-2025 Applied Ocean Sciences
//
// Permission to use, copy, modify, and/or distribute this software for any purpose with or
// without fee is hereby granted, provided that the above copyright notice and this
// permission notice appear in all copies.
//
// THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO
// THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT
// SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR
// ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION
// OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE
// USE OR PERFORMANCE OF THIS SOFTWARE.

// Package cobs implements a streaming decoder for Consistent Overhead Byte
// Stuffing framed datagrams, terminated by a zero byte on the wire.
package cobs

import (
	"errors"
	"fmt"
	"io"
)

// Logger is the minimal interface the decoder needs to report a
// resynchronization event. *slog.Logger and this package's own
// internal/logging facade both satisfy it.
type Logger interface {
	Warn(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Warn(string, ...any) {}

// Decoder de-stuffs zero-terminated COBS frames read from an underlying
// byte stream. It is stateful only in the sense that a single frame may
// span many small reads of the source; it holds no buffered payload data
// between calls to Decode.
type Decoder struct {
	r   io.Reader
	log Logger

	one [1]byte // scratch for single-byte code reads
}

// NewDecoder wraps r. If log is nil, resynchronization warnings are
// discarded.
func NewDecoder(r io.Reader, log Logger) *Decoder {
	if log == nil {
		log = nopLogger{}
	}
	return &Decoder{r: r, log: log}
}

// errOverlongFrame is not returned to callers of Decode — an overlong frame
// is handled internally by resynchronizing at the next zero byte and
// retrying — but is used internally to drive that control flow.
var errOverlongFrame = errors.New("cobs: frame exceeds maximum size")

// Decode reads one COBS frame from the underlying stream into out, and
// returns the number of de-stuffed payload bytes written. A short
// (zero-length) frame is a valid, silently-dropped result: callers should
// treat n == 0, err == nil as "no packet this call, try again". Decode
// returns err == io.EOF (or another read error) exactly when the underlying
// stream is exhausted or fails; a frame that never finds its terminator is
// not an error, it is dropped internally with a logged warning and framing
// resumes at the next zero byte.
func (d *Decoder) Decode(out []byte) (int, error) {
	for {
		n, err := d.decodeOnce(out)
		if errors.Is(err, errOverlongFrame) {
			d.log.Warn("cobs: missing end byte, discarding frame and resynchronizing")
			if err := d.drainToZero(); err != nil {
				return 0, err
			}
			continue
		}
		return n, err
	}
}

// decodeOnce implements one attempt at reading a single frame, per spec.md
// §4.B: read a code byte; 0 terminates the frame; otherwise bulk-read
// code-1 literal bytes, and unless code == 0xFF (the 254-byte-run special
// case) append a de-stuffed literal zero.
func (d *Decoder) decodeOnce(out []byte) (int, error) {
	dst := 0
	for {
		if _, err := io.ReadFull(d.r, d.one[:]); err != nil {
			return 0, err
		}
		code := d.one[0]

		if code == 0 {
			if dst == 0 {
				return 0, nil
			}
			return dst - 1, nil
		}

		run := int(code) - 1
		if dst+run > len(out) {
			return 0, errOverlongFrame
		}
		if run > 0 {
			if _, err := io.ReadFull(d.r, out[dst:dst+run]); err != nil {
				return 0, err
			}
			dst += run
		}

		if code != 0xFF {
			if dst >= len(out) {
				// out is full: the appended zero only fits if it is the
				// frame's trailing zero, which is never returned anyway.
				if _, err := io.ReadFull(d.r, d.one[:]); err != nil {
					return 0, err
				}
				if d.one[0] == 0 {
					return dst, nil
				}
				return 0, errOverlongFrame
			}
			out[dst] = 0
			dst++
		}
	}
}

// drainToZero discards bytes from the stream until (and including) the next
// zero byte, resynchronizing frame boundaries after an overlong run.
func (d *Decoder) drainToZero() error {
	for {
		if _, err := io.ReadFull(d.r, d.one[:]); err != nil {
			return err
		}
		if d.one[0] == 0 {
			return nil
		}
	}
}

// Encode returns the COBS encoding of src, which may contain zero bytes: the
// encoding replaces every one of them, so the only zero in the output is the
// frame-terminating zero byte it is suffixed with. It exists primarily to support
// round-trip tests of Decoder against arbitrary payloads; the production
// ingest path only ever decodes.
func Encode(src []byte) ([]byte, error) {
	out := make([]byte, 0, len(src)+len(src)/254+2)
	codeIdx := 0
	out = append(out, 0) // placeholder for first code byte
	run := 0

	flush := func(code byte) {
		out[codeIdx] = code
	}

	for _, b := range src {
		if b == 0 {
			flush(byte(run + 1))
			codeIdx = len(out)
			out = append(out, 0)
			run = 0
			continue
		}
		out = append(out, b)
		run++
		if run == 254 {
			flush(0xFF)
			codeIdx = len(out)
			out = append(out, 0)
			run = 0
		}
	}
	flush(byte(run + 1))
	out = append(out, 0)

	if len(out) > len(src)+len(src)/254+2 {
		return nil, fmt.Errorf("cobs: encode buffer estimate too small")
	}
	return out, nil
}
