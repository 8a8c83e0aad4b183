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

// Package chunkwriter appends header-prefixed packet records to a sequence
// of bucketed output files, rolling over to a new file at the first packet
// whose receipt time falls in a new ten-second bucket — never mid-packet,
// and never on a timer that could split a record across two files.
package chunkwriter

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/appliedoceansciences/cobs-to-shm/internal/logheader"
)

// BucketMicros is the rollover granularity: ten seconds, matching the
// reference implementation's chunking period.
const BucketMicros = 10_000_000

// Writer appends records to a rolling sequence of files beneath a directory.
// It is not safe for concurrent use; the ingest loop that owns it is its
// only writer.
type Writer struct {
	dir       string
	completed chan string

	fh          *os.File
	path        string
	bucketStart uint64
}

// New creates a Writer rooted at dir. Completed returns the channel on which
// the path of each file is sent once rollover or Close closes it; the
// channel is closed when the Writer is closed, after its final completion
// (if any) has been sent.
func New(dir string) *Writer {
	return &Writer{dir: dir, completed: make(chan string, 16)}
}

// Completed yields the path of each chunk file as it is finalized, in the
// order files are completed. A consumer such as a background compressor or
// the catalog/digest pipeline should drain this channel continuously;
// Writer does not buffer completions beyond the channel's own capacity.
func (w *Writer) Completed() <-chan string {
	return w.completed
}

// WritePacket appends one logging-header-prefixed record to the current
// chunk file, rolling over first if timeMicros falls in a later ten-second
// bucket than the file currently open. record must begin with the eight
// byte logheader.Encode value for this packet, the same bytes published to
// the ring buffer slot, so the on-disk and shared-memory views of a given
// packet agree byte for byte.
func (w *Writer) WritePacket(record []byte, timeMicros uint64) error {
	bucket := timeMicros - timeMicros%BucketMicros

	if w.fh != nil && bucket > w.bucketStart {
		if err := w.closeCurrent(); err != nil {
			return err
		}
	}

	if w.fh == nil {
		if err := w.openNew(timeMicros, bucket); err != nil {
			return err
		}
	}

	padded := logheader.RoundUp8(len(record))
	if padded == len(record) {
		_, err := w.fh.Write(record)
		return err
	}

	buf := make([]byte, padded)
	copy(buf, record)
	_, err := w.fh.Write(buf)
	return err
}

// openNew opens a new chunk file named from timeMicros rounded down to the
// second, in ISO-8601 basic format, matching the reference implementation's
// strftime("%Y%m%dT%H%M%SZ") naming.
func (w *Writer) openNew(timeMicros, bucket uint64) error {
	ts := time.UnixMicro(int64(timeMicros)).UTC()
	name := ts.Format("20060102T150405Z") + ".bin"
	path := filepath.Join(w.dir, name)

	fh, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("chunkwriter: create %s: %w", path, err)
	}

	w.fh = fh
	w.path = path
	w.bucketStart = bucket
	return nil
}

// closeCurrent closes the open file and emits its path on Completed.
func (w *Writer) closeCurrent() error {
	err := w.fh.Close()
	w.completed <- w.path
	w.fh = nil
	w.path = ""
	return err
}

// Close finalizes any open chunk file and closes the Completed channel. It
// is safe to call Close with no file currently open.
func (w *Writer) Close() error {
	var err error
	if w.fh != nil {
		err = w.closeCurrent()
	}
	close(w.completed)
	return err
}
