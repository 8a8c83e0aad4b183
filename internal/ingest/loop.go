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

// Package ingest drives the acquire-decode-timestamp-publish-log cycle: for
// each COBS frame read from a source, it timestamps it, publishes it to a
// ring buffer writer, optionally appends it to a chunk file, and runs a
// cheap printable-text diagnostic, all in one pass per packet.
package ingest

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/appliedoceansciences/cobs-to-shm/internal/chunkwriter"
	"github.com/appliedoceansciences/cobs-to-shm/internal/cobs"
	"github.com/appliedoceansciences/cobs-to-shm/internal/logheader"
	"github.com/appliedoceansciences/cobs-to-shm/internal/logging"
	"github.com/appliedoceansciences/cobs-to-shm/internal/ringshm"
)

// slowOutputThreshold is the per-packet latency budget above which the loop
// warns that writing this packet out took unexpectedly long.
const slowOutputThreshold = 100 * time.Millisecond

// deadlineSetter is implemented by *os.File when it wraps a non-blocking fd
// registered with the runtime poller, as internal/serialport.Open returns.
// Run uses it to interrupt a Decode blocked on the underlying Read once ctx
// is canceled, rather than waiting for the next byte or an I/O error.
type deadlineSetter interface {
	SetReadDeadline(t time.Time) error
}

// Loop owns one serial source, one ring buffer writer, and (optionally) one
// chunk file writer. It is not safe for concurrent use: packets are
// processed one at a time, in arrival order, matching the single-threaded
// acquire/decode/send/write cycle it was modeled on.
type Loop struct {
	decoder  *cobs.Decoder
	writer   *ringshm.Writer
	chunks   *chunkwriter.Writer
	log      logging.Logger
	deadline deadlineSetter // nil if the source doesn't support read deadlines

	now func() uint64 // unix microseconds; overridable in tests

	lastPacketTime uint64
}

// Option configures a Loop at construction time.
type Option func(*Loop)

// WithChunkWriter enables appending every packet to chunked output files in
// addition to publishing it to shared memory. Without this option, logging
// to disk is disabled entirely, matching the reference tool's behavior when
// no logging directory is given on the command line.
func WithChunkWriter(w *chunkwriter.Writer) Option {
	return func(l *Loop) { l.chunks = w }
}

// WithLogger overrides the default discard logger.
func WithLogger(log logging.Logger) Option {
	return func(l *Loop) { l.log = log }
}

// WithClock overrides the loop's source of the current unix time in
// microseconds; tests use this to drive deterministic bucket rollovers and
// backwards-time-jump warnings.
func WithClock(now func() uint64) Option {
	return func(l *Loop) { l.now = now }
}

// New builds a Loop that decodes COBS frames from r and publishes them via
// w. w.MaxPacketSize() must be greater than logheader.Size, since every slot
// holds the eight-byte logging header plus the packet itself.
func New(r io.Reader, w *ringshm.Writer, opts ...Option) *Loop {
	l := &Loop{
		writer: w,
		log:    logging.Discard,
		now:    unixMicrosNow,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.decoder = cobs.NewDecoder(r, l.log)
	l.deadline, _ = r.(deadlineSetter)
	return l
}

func unixMicrosNow() uint64 {
	return uint64(time.Now().UnixMicro())
}

// Run processes packets until ctx is canceled or the source is exhausted,
// returning nil on context cancellation (a clean shutdown) and the
// underlying error otherwise. io.EOF from the source is treated as a clean
// shutdown too, matching the reference tool's handling of a closed serial
// device.
//
// step's Decode call blocks inside a single Read on the underlying source
// while waiting for the next byte, which can outlast an idle sensor for
// arbitrarily long. If the source supports read deadlines, Run arms a
// watcher that expires one the moment ctx is canceled, unblocking that Read
// immediately instead of leaving the process hung until data resumes or the
// device errors out.
func (l *Loop) Run(ctx context.Context) error {
	if l.deadline != nil {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-ctx.Done():
				_ = l.deadline.SetReadDeadline(time.Unix(0, 1))
			case <-stop:
			}
		}()
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		if err := l.step(); err != nil {
			if err == io.EOF {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// step performs one full acquire/decode/publish/log cycle, processing at
// most one packet. A zero-length frame (two consecutive frame terminators)
// is not an error: step returns nil having done nothing, and the caller
// tries again. A frame dropped by resynchronization never reaches step;
// Decode skips it and returns the next frame.
func (l *Loop) step() error {
	slot := l.writer.Acquire()
	if len(slot) <= logheader.Size {
		return fmt.Errorf("ingest: ring buffer slot too small to hold a logging header")
	}
	packetBuf := slot[logheader.Size:]

	n, err := l.decoder.Decode(packetBuf)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	packetTime := l.now()

	if l.lastPacketTime > packetTime {
		l.log.Warn("time jumped backwards",
			"by_micros", l.lastPacketTime-packetTime, "new_time_micros", packetTime)
	}
	l.lastPacketTime = packetTime

	header := logheader.Encode(n, packetTime)
	binary.LittleEndian.PutUint64(slot[:logheader.Size], header)

	padded := logheader.RoundUp8(n)
	for i := n; i < padded; i++ {
		packetBuf[i] = 0
	}

	if err := l.writer.Send(uint64(logheader.Size + n)); err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	if l.chunks != nil {
		record := slot[:logheader.Size+padded]
		if err := l.chunks.WritePacket(record, packetTime); err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
	}

	l.diagnose(packetBuf[:n])

	if elapsed := l.now() - packetTime; elapsed >= uint64(slowOutputThreshold.Microseconds()) {
		l.log.Warn("output took long", "millis", elapsed/1000)
	}

	return nil
}

// diagnose logs a packet's prefix as text when every byte up to the first
// CR or LF (or to the end of the packet, if it has neither) is printable
// ASCII; this is a cheap
// best-effort heuristic for spotting a misconfigured or mis-baud-rated
// source on the console, not a protocol feature.
func (l *Loop) diagnose(packet []byte) {
	end := 0
	for end < len(packet) {
		b := packet[end]
		if b == '\r' || b == '\n' {
			break
		}
		if b < 0x20 || b > 0x7E {
			return
		}
		end++
	}
	if end > 0 {
		l.log.Info("text packet", "text", string(packet[:end]))
	}
}

// Close releases the loop's chunk writer, if any; the ring buffer writer's
// lifetime is owned by the caller, not the loop.
func (l *Loop) Close() error {
	if l.chunks != nil {
		return l.chunks.Close()
	}
	return nil
}
