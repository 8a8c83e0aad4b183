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

// Package logheader encodes and decodes the eight-byte header prepended to
// every packet published to the ring buffer and written to a chunk file:
// the low 16 bits carry the payload size, the high 48 bits carry the unix
// time of receipt in 16-microsecond units.
package logheader

// Size is the width in bytes of the encoded header.
const Size = 8

// TimeUnit is the resolution of the packed timestamp: one tick is 16
// microseconds, giving a 48-bit field about 142 years of range.
const TimeUnit = 16 // microseconds per tick

// MaxPayloadSize is the largest payload size the 16-bit size field can hold.
const MaxPayloadSize = 1<<16 - 1

// Encode packs a payload size and a receipt time (in unix microseconds)
// into the wire/disk representation of the logging header.
func Encode(payloadSize int, unixMicros uint64) uint64 {
	return (unixMicros/TimeUnit)<<16 | uint64(uint16(payloadSize))
}

// Decode unpacks a header value into a payload size and a timestamp in unix
// microseconds, rounded down to the nearest 16-microsecond tick — the
// inverse of Encode is only exact up to that resolution
// (header_decode(header_encode(size, t)) == (size, t - (t mod 16))).
func Decode(header uint64) (payloadSize int, unixMicros uint64) {
	payloadSize = int(header & 0xFFFF)
	unixMicros = (header >> 16) * TimeUnit
	return payloadSize, unixMicros
}

// IsPadding reports whether an all-zero 8-byte read from a chunk file is
// padding to be skipped rather than a valid header: a genuine header always
// has a nonzero high-48-bit timestamp field once the writer has been
// running since the epoch, so an all-zero word can only be padding.
func IsPadding(header uint64) bool {
	return header == 0
}

// RoundUp8 rounds n up to the next multiple of 8, the alignment every
// packet's padding on disk brings the next header back to.
func RoundUp8(n int) int {
	return (n + 7) &^ 7
}
