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
	"fmt"
	"os"
	"sync/atomic"
)

// Writer is the sole mutator of a ring buffer segment's cursor and pid
// fields. A Writer must not be shared across goroutines without external
// synchronization: Acquire/Send follow a single-threaded acquire-then-send
// protocol matching the ingest loop's cooperative structure (spec.md §5).
type Writer struct {
	file *os.File
	mem  []byte
	name string

	capacity    uint64
	maxSlotSize uint64

	acquired bool // true between Acquire and the matching Send
}

// InitWriter creates (or recreates) the named segment, sized for a ring
// region of capacity bytes and packets up to maxPacketSize bytes. capacity
// must be a nonzero power of two; maxPacketSize must be a multiple of 16.
//
// Order of operations is load-bearing per spec.md §4.A: any previous segment
// of the same name is unlinked, the new one is created, truncated, mapped,
// zeroed, and every field but writerPID is written — writerPID is stored
// last, with release ordering, since a nonzero pid is what tells a
// concurrently-opening reader the segment is ready.
func InitWriter(name string, capacity, maxPacketSize uint64) (*Writer, error) {
	if !atomicUint64IsLockFree {
		return nil, fmt.Errorf("ringshm: platform lacks lock-free 64-bit atomics, refusing to init %q", name)
	}
	if !isPowerOfTwo(capacity) {
		return nil, fmt.Errorf("ringshm: capacity %d must be a nonzero power of two", capacity)
	}
	if maxPacketSize%16 != 0 {
		return nil, fmt.Errorf("ringshm: max packet size %d must be a multiple of 16", maxPacketSize)
	}

	path, err := segmentPath(name)
	if err != nil {
		return nil, err
	}

	// unlink any stale segment with the same name before creating a fresh one
	_ = os.Remove(path)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("ringshm: create %s: %w", path, err)
	}
	cleanup := func() {
		f.Close()
		os.Remove(path)
	}

	size := totalSize(capacity, maxPacketSize)
	if err := f.Truncate(int64(size)); err != nil {
		cleanup()
		return nil, fmt.Errorf("ringshm: truncate %s: %w", path, err)
	}

	mem, err := mmapShared(f, int(size), true)
	if err != nil {
		cleanup()
		return nil, err
	}

	hdr := headerOf(mem)
	// zero the header explicitly; the ring region is left as Truncate on
	// the freshly created file produced it, which is zero-filled on Linux.
	for i := range mem[:headerSize] {
		mem[i] = 0
	}

	maxSlotSize := maxSlotSizeFor(maxPacketSize)
	hdr.capacity = capacity
	hdr.maxSlotSize = maxSlotSize
	atomic.StoreUint64(&hdr.writerCursor, 0)

	// atomic store with release ordering, must be last thing written during init
	atomic.StoreUint64(&hdr.writerPID, uint64(os.Getpid()))

	return &Writer{
		file:        f,
		mem:         mem,
		name:        name,
		capacity:    capacity,
		maxSlotSize: maxSlotSize,
	}, nil
}

// MaxPacketSize returns the largest payload this writer's segment accepts.
func (w *Writer) MaxPacketSize() uint64 {
	return w.maxSlotSize - slotPrefixSize
}

// Acquire returns a writable view of length MaxPacketSize() at the current
// slot: the region a caller fills before calling Send. It does not modify
// any atomic state and may be called repeatedly with no intervening Send —
// the last call before Send wins, matching spec.md's "last call wins"
// contract, useful for an ingest loop that re-tries Acquire after failing to
// fully populate the buffer.
func (w *Writer) Acquire() []byte {
	hdr := headerOf(w.mem)
	cursor := atomic.LoadUint64(&hdr.writerCursor)
	slotOff := cursor % w.capacity
	data := dataOf(w.mem)
	w.acquired = true
	return data[slotOff+slotPrefixSize : slotOff+w.maxSlotSize]
}

// Send publishes the payloadSize bytes written into the region returned by
// the most recent Acquire. It writes the slot's size field, then atomically
// advances the writer cursor with release ordering, after which readers may
// observe the slot. payloadSize plus the size-field prefix must not exceed
// the segment's max slot size.
func (w *Writer) Send(payloadSize uint64) error {
	if payloadSize+slotPrefixSize > w.maxSlotSize {
		return fmt.Errorf("ringshm: payload size %d exceeds max slot capacity", payloadSize)
	}

	hdr := headerOf(w.mem)
	cursor := atomic.LoadUint64(&hdr.writerCursor)
	slotOff := cursor % w.capacity
	data := dataOf(w.mem)

	binary.LittleEndian.PutUint64(data[slotOff:slotOff+slotPrefixSize], payloadSize)

	advance := roundUp16(slotPrefixSize + payloadSize)
	atomic.StoreUint64(&hdr.writerCursor, cursor+advance)

	w.acquired = false
	return nil
}

// Close indicates to readers that the writer is going away: it stores
// writer pid = 0 and unmaps the segment. There is no guarantee that
// in-flight readers observe the zeroed pid before or after their last
// successful Recv of a published packet; readers must tolerate either
// ordering (spec.md §4.A).
func (w *Writer) Close() error {
	hdr := headerOf(w.mem)
	atomic.StoreUint64(&hdr.writerPID, 0)
	err := munmap(w.mem)
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	return err
}
