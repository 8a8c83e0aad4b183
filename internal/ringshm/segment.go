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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unsafe"
)

// slotPrefixSize is the size of the size field prepended to every slot.
const slotPrefixSize = 8 // uint64

// headerSize is the size of the segment header, padded out to a cache-line
// boundary. It must itself be a multiple of 16 so that the data region
// starting immediately after it preserves 16-byte slot alignment.
const headerSize = 64

// header is the fixed-size segment header, mapped directly over the first
// headerSize bytes of the segment. writerCursor and writerPID must be
// accessed through sync/atomic; capacity and maxSlotSize are plain fields,
// written once during init before writerPID is published. The layout and
// field order are load-bearing (writerPID must be the last field written
// during init, and the first field read on open).
type header struct {
	capacity     uint64 // power-of-two byte length of the ring region; immutable after init
	maxSlotSize  uint64 // upper bound on any one slot including its prefix; immutable; multiple of 16
	writerCursor uint64 // atomic; monotonically increasing count of bytes published
	writerPID    uint64 // atomic; 0 means uninitialized or cleanly shut down
	_            [headerSize - 4*8]byte
}

func init() {
	if unsafe.Sizeof(header{}) != headerSize {
		panic("ringshm: header size drifted from headerSize constant")
	}
}

// ErrNotFound is returned by Open when the named segment does not exist, or
// exists but its writer is not (or no longer) alive. This is not an error
// condition per se — spec.md §7 treats it as a distinct, expected outcome.
var ErrNotFound = errors.New("ringshm: segment not found or writer not alive")

// roundUp16 rounds n up to the next multiple of 16.
func roundUp16(n uint64) uint64 {
	return (n + 15) &^ 15
}

// isPowerOfTwo reports whether n is a nonzero power of two.
func isPowerOfTwo(n uint64) bool {
	return n != 0 && n&(n-1) == 0
}

// maxSlotSizeFor returns the slot size that safely accommodates a payload of
// up to maxPacketSize bytes, including its size-field prefix and padding to
// the next 16-byte boundary.
func maxSlotSizeFor(maxPacketSize uint64) uint64 {
	return roundUp16(maxPacketSize + slotPrefixSize)
}

// segmentPath resolves a POSIX shared-memory name (leading "/") to a
// filesystem path, the way glibc's shm_open backs named segments with files
// under /dev/shm. Falls back to the system temp directory if /dev/shm is not
// a usable directory on this host.
func segmentPath(name string) (string, error) {
	if len(name) == 0 || name[0] != '/' {
		return "", fmt.Errorf("ringshm: segment name %q must begin with \"/\"", name)
	}
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		return filepath.Join("/dev/shm", name[1:]), nil
	}
	return filepath.Join(os.TempDir(), "ringshm"+filepath.Clean("/"+name[1:])), nil
}

// totalSize returns the length of the mapped region for a segment with the
// given ring capacity and max packet size: the header, plus the ring region,
// oversized by one maximum slot so every slot is contiguous in memory and no
// slot ever straddles the wraparound point.
func totalSize(capacity, maxPacketSize uint64) uint64 {
	return headerSize + capacity + maxSlotSizeFor(maxPacketSize)
}

func headerOf(mem []byte) *header {
	return (*header)(unsafe.Pointer(&mem[0]))
}

func dataOf(mem []byte) []byte {
	return mem[headerSize:]
}
