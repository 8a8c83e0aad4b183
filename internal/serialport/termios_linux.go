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

//go:build linux

package serialport

import "golang.org/x/sys/unix"

// TCGETS/TCSETS are the ioctl requests backing tcgetattr(3)/tcsetattr(3,
// TCSANOW) on Linux.
const (
	ioctlGetTermios = unix.TCGETS
	ioctlSetTermios = unix.TCSETS
)

// setSpeed is the Go equivalent of cfsetspeed(3): it sets both the baud bits
// packed into c_cflag (for drivers that only look there) and the separate
// c_ispeed/c_ospeed fields Linux's termios struct carries.
func setSpeed(ts *unix.Termios, speed uint32) error {
	ts.Cflag &^= unix.CBAUD
	ts.Cflag |= speed
	ts.Ispeed = speed
	ts.Ospeed = speed
	return nil
}
