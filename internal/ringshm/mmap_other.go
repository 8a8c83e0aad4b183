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

//go:build !linux

package ringshm

import (
	"errors"
	"os"
)

// This system is a Linux single-board-computer pipeline (spec.md §1); other
// platforms compile but cannot map segments.
var errUnsupportedPlatform = errors.New("ringshm: shared memory segments are only supported on linux")

func mmapShared(f *os.File, size int, writable bool) ([]byte, error) {
	return nil, errUnsupportedPlatform
}

func munmap(mem []byte) error {
	return errUnsupportedPlatform
}
