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

package ringshm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/appliedoceansciences/cobs-to-shm/internal/liveness"
)

// ErrLapped is returned by Recv when the writer has overwritten the slot a
// reader was about to consume. Per spec.md §7 the in-progress payload must
// be discarded; the caller may resynchronize by setting the reader cursor to
// the writer's current cursor, which Resync does.
var ErrLapped = errors.New("ringshm: reader lapped by writer")

// Reader is a per-process handle onto a mapped segment plus an independent
// cursor. Readers never mutate any shared state; a slow or crashed reader
// can never block the writer or any other reader.
type Reader struct {
	file *os.File
	mem  []byte
	name string

	capacity    uint64
	maxSlotSize uint64

	writerPID    int
	readerCursor uint64
}

// Open connects to the named segment. It returns ErrNotFound, not an error,
// if the segment does not exist or its recorded writer is not alive — both
// are meant to be handled the same way by the caller (spec.md §4.A, §7). A
// freshly opened reader's cursor starts at the writer's current cursor, so
// it observes only packets published after Open returns.
func Open(name string) (*Reader, error) {
	if !atomicUint64IsLockFree {
		return nil, fmt.Errorf("ringshm: platform lacks lock-free 64-bit atomics, refusing to open %q", name)
	}

	path, err := segmentPath(name)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ringshm: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ringshm: stat %s: %w", path, err)
	}
	if info.Size() < headerSize {
		f.Close()
		return nil, fmt.Errorf("ringshm: %s is too small to be a valid segment", path)
	}

	mem, err := mmapShared(f, int(info.Size()), false)
	if err != nil {
		f.Close()
		return nil, err
	}

	hdr := headerOf(mem)

	// atomic load, must be the first field read, before any other header field
	pid := atomic.LoadUint64(&hdr.writerPID)
	if pid == 0 {
		munmap(mem)
		f.Close()
		return nil, ErrNotFound
	}

	alive, err := liveness.IsAlive(int(pid))
	if err != nil {
		munmap(mem)
		f.Close()
		return nil, fmt.Errorf("ringshm: %w", err)
	}
	if !alive {
		munmap(mem)
		f.Close()
		return nil, ErrNotFound
	}

	capacity := hdr.capacity
	maxSlotSize := hdr.maxSlotSize
	if !isPowerOfTwo(capacity) || maxSlotSize%16 != 0 {
		munmap(mem)
		f.Close()
		return nil, fmt.Errorf("ringshm: %s has an invalid header", path)
	}

	return &Reader{
		file:         f,
		mem:          mem,
		name:         name,
		capacity:     capacity,
		maxSlotSize:  maxSlotSize,
		writerPID:    int(pid),
		readerCursor: atomic.LoadUint64(&hdr.writerCursor),
	}, nil
}

// empty reports whether the reader has caught up to the writer, the
// condition under which Recv returns (nil, false, nil) and the caller
// decides how long to sleep before polling again.
func (r *Reader) empty() bool {
	hdr := headerOf(r.mem)
	return atomic.LoadUint64(&hdr.writerCursor) == r.readerCursor
}

// Recv returns the next published payload, or (nil, false, nil) if the
// reader is caught up with the writer (spec.md's "Empty" outcome — not an
// error; the caller should sleep and poll again). It returns ErrLapped if
// the writer has advanced far enough to have possibly overwritten the slot
// this call was about to read; the caller should call Resync and continue.
//
// The returned slice aliases the mapped segment directly (zero-copy): the
// writer may overwrite it at any time, so callers check HasKeptUp after
// using it, and must copy it out to retain it.
func (r *Reader) Recv() ([]byte, bool, error) {
	hdr := headerOf(r.mem)
	data := dataOf(r.mem)

	writerCursor := atomic.LoadUint64(&hdr.writerCursor)
	if writerCursor == r.readerCursor {
		return nil, false, nil
	}

	slotOff := r.readerCursor % r.capacity
	size := binary.LittleEndian.Uint64(data[slotOff : slotOff+slotPrefixSize])

	// Re-load the cursor after reading the untrusted size field: if the
	// writer has lapped us since our first load, the size we just read may
	// itself be garbage, so validate against a fresh cursor before trusting
	// it for anything, including the slice bounds below.
	writerCursorAfter := atomic.LoadUint64(&hdr.writerCursor)
	lag := writerCursorAfter - r.readerCursor
	if lag+r.maxSlotSize > r.capacity+slotPrefixSize {
		return nil, false, ErrLapped
	}

	advance := roundUp16(slotPrefixSize + size)
	payload := data[slotOff+slotPrefixSize : slotOff+slotPrefixSize+size]
	r.readerCursor += advance

	return payload, true, nil
}

// HasKeptUp must be called after the caller has finished using the payload
// most recently returned by Recv, and before forwarding any result derived
// from it downstream. A false result means the writer may have overwritten
// that payload while the caller was working with it, and any derived result
// must be discarded rather than published further.
func (r *Reader) HasKeptUp() bool {
	hdr := headerOf(r.mem)
	writerCursor := atomic.LoadUint64(&hdr.writerCursor)
	lag := writerCursor - r.readerCursor
	return lag+r.maxSlotSize <= r.capacity
}

// Resync fast-forwards the reader's cursor to the writer's current cursor,
// the recommended recovery after ErrLapped or a false HasKeptUp: the reader
// resumes receiving only packets published from this point on.
func (r *Reader) Resync() {
	hdr := headerOf(r.mem)
	r.readerCursor = atomic.LoadUint64(&hdr.writerCursor)
}

// EOF reports whether the writer is gone: pid zeroed (clean shutdown) or the
// process no longer exists (crash). EPERM is treated as "still alive", not
// EOF; other liveness errors are surfaced.
func (r *Reader) EOF() (bool, error) {
	hdr := headerOf(r.mem)
	pid := atomic.LoadUint64(&hdr.writerPID)
	if pid == 0 {
		return true, nil
	}
	alive, err := liveness.IsAlive(int(pid))
	if err != nil {
		return false, err
	}
	return !alive, nil
}

// Close unmaps the segment and releases the reader's file handle.
func (r *Reader) Close() error {
	err := munmap(r.mem)
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	return err
}
