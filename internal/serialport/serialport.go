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

// Package serialport opens and configures the raw serial device the ingest
// loop reads COBS frames from.
package serialport

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// supportedBauds mirrors parse_baud_rate in the original C reference: only
// these standard rates are accepted on the command line.
var supportedBauds = map[uint64]uint32{
	2400:   unix.B2400,
	4800:   unix.B4800,
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
	460800: unix.B460800,
	921600: unix.B921600,
}

// ParseBaud maps a numeric baud rate to its termios speed constant, or an
// error if the rate is not one of the rates listed in supportedBauds.
func ParseBaud(desired uint64) (uint32, error) {
	b, ok := supportedBauds[desired]
	if !ok {
		return 0, fmt.Errorf("serialport: baud rate %d not supported", desired)
	}
	return b, nil
}

// SplitPathAndBaud splits the "<device>[,<baud>]" CLI syntax into a device
// path and an optional baud rate. ok is false when no comma-separated baud
// was present, in which case the device's current baud rate is left alone.
func SplitPathAndBaud(arg string) (path string, baud uint64, ok bool, err error) {
	comma := strings.IndexByte(arg, ',')
	if comma < 0 {
		return arg, 0, false, nil
	}
	path = arg[:comma]
	baud, err = strconv.ParseUint(arg[comma+1:], 10, 64)
	if err != nil {
		return "", 0, false, fmt.Errorf("serialport: invalid baud rate %q: %w", arg[comma+1:], err)
	}
	return path, baud, true, nil
}

// Open opens a raw-mode serial device for reading. pathAndMaybeBaud follows
// the "<device>[,<baud>]" syntax; when no baud is given the port's existing
// baud rate is left as-is, while the raw-mode settings are always applied.
// The fd is opened non-blocking (needed anyway
// so open(2) itself does not block waiting for carrier detect on some
// devices) and is handed to os.NewFile while still non-blocking, so the
// runtime registers it with its poller: Read on the returned file still
// blocks the calling goroutine until data arrives, but SetReadDeadline and
// Close both interrupt an in-progress Read, letting a caller wire the file
// to context cancellation instead of hanging until the next byte or an I/O
// error.
func Open(pathAndMaybeBaud string) (*os.File, error) {
	path, baudRate, hasBaud, err := SplitPathAndBaud(pathAndMaybeBaud)
	if err != nil {
		return nil, err
	}

	var speed uint32
	if hasBaud {
		speed, err = ParseBaud(baudRate)
		if err != nil {
			return nil, err
		}
	}

	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("serialport: open %s: %w", path, err)
	}

	if err := configureRaw(fd, speed, hasBaud); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("serialport: %s: %w", path, err)
	}

	return os.NewFile(uintptr(fd), path), nil
}

// configureRaw applies cfmakeraw-equivalent termios settings plus the
// control-line and VMIN/VTIME behavior the ingest loop depends on: HUPCL so
// DTR drops when this process exits, CLOCAL to ignore modem control lines,
// and VMIN=1/VTIME=1 so a read returns as soon as at least one byte has
// arrived, bounding how late a packet's timestamp can be relative to receipt.
func configureRaw(fd int, baud uint32, setBaud bool) error {
	ts, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		return fmt.Errorf("tcgetattr: %w", err)
	}

	cfmakeraw(ts)
	ts.Cflag |= unix.HUPCL | unix.CLOCAL

	if setBaud {
		if err := setSpeed(ts, baud); err != nil {
			return err
		}
	}

	ts.Cc[unix.VMIN] = 1
	ts.Cc[unix.VTIME] = 1

	if err := unix.IoctlSetTermios(fd, ioctlSetTermios, ts); err != nil {
		return fmt.Errorf("tcsetattr: %w", err)
	}

	if err := unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIOFLUSH); err != nil {
		return fmt.Errorf("tcflush: %w", err)
	}

	return nil
}

// cfmakeraw reproduces glibc's cfmakeraw(3): disable input/output processing
// and canonical/echo line discipline so every byte read reflects exactly one
// byte received on the wire.
func cfmakeraw(ts *unix.Termios) {
	ts.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	ts.Oflag &^= unix.OPOST
	ts.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	ts.Cflag &^= unix.CSIZE | unix.PARENB
	ts.Cflag |= unix.CS8
}
