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

//go:build unix

// Package liveness answers "is the process that owns this pid still alive?"
// without heartbeats, using the classic signal-0 existence check: sending
// signal 0 performs all of kill(2)'s permission and existence checks without
// actually delivering a signal.
package liveness

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// IsAlive reports whether pid refers to a live process. A pid the caller
// cannot signal (EPERM, e.g. owned by another user) is treated as alive,
// since the point of the check is "has this process exited", not "can I
// signal it". Any other error from the underlying syscall is surfaced so
// the caller can decide how to react.
func IsAlive(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	err := unix.Kill(pid, 0)
	switch {
	case err == nil:
		return true, nil
	case err == unix.ESRCH:
		return false, nil
	case err == unix.EPERM:
		return true, nil
	default:
		return false, fmt.Errorf("liveness: kill(%d, 0): %w", pid, err)
	}
}
