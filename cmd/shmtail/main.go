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

// Command shmtail is a diagnostic reader for the ring buffer populated by
// ingest: it can dump raw payloads, print periodic health statistics,
// demux payloads into per-tag files, or emit one JSON record per packet.
package main

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/sugawarayuuta/sonnet"

	"github.com/appliedoceansciences/cobs-to-shm/internal/logheader"
	"github.com/appliedoceansciences/cobs-to-shm/internal/ringshm"
)

const defaultSegmentName = "/cobs_to_shm"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "shmtail:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		segmentName string
		jsonMode    bool
		statsMode   bool
		demuxDir    string
	)

	cmd := &cobra.Command{
		Use:   "shmtail",
		Short: "Attach to the ingest ring buffer as a realtime reader",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case statsMode:
				return runStats(segmentName)
			case demuxDir != "":
				return runDemux(segmentName, demuxDir)
			case jsonMode:
				return runJSON(segmentName)
			default:
				return runRaw(segmentName)
			}
		},
	}

	cmd.Flags().StringVar(&segmentName, "segment", defaultSegmentName, "shared memory segment name")
	cmd.Flags().BoolVar(&jsonMode, "json", false, "print one JSON record per packet instead of raw payload bytes")
	cmd.Flags().BoolVar(&statsMode, "stats", false, "print periodic reader health statistics instead of payloads")
	cmd.Flags().StringVar(&demuxDir, "demux-dir", "", "demux payloads into per-first-byte-tag files under this directory")

	return cmd
}

// openReader retries Open in a short poll loop, since the writer may start
// after this reader does; it gives up after a few seconds with ErrNotFound.
func openReader(name string) (*ringshm.Reader, error) {
	deadline := time.Now().Add(5 * time.Second)
	for {
		r, err := ringshm.Open(name)
		if err == nil {
			return r, nil
		}
		if err != ringshm.ErrNotFound || time.Now().After(deadline) {
			return nil, err
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// runRaw strips the logging header from every packet and writes the
// payload straight to stdout, the Go analogue of shm2udp.py's loop body
// minus the socket.
func runRaw(segmentName string) error {
	r, err := openReader(segmentName)
	if err != nil {
		return err
	}
	defer r.Close()

	var discarded uint64
	for {
		payload, ok, lapped, err := pollPacket(r)
		if err != nil {
			return err
		}
		if lapped {
			discarded++
			fmt.Fprintf(os.Stderr, "shmtail: discarded a lapped payload (%d so far)\n", discarded)
		}
		if !ok {
			continue
		}
		size, _ := logheader.Decode(headerOf(payload))
		if _, err := os.Stdout.Write(payload[logheader.Size : logheader.Size+uint64(size)]); err != nil {
			return err
		}
	}
}

type jsonRecord struct {
	UnixMicros uint64 `json:"unix_micros"`
	Size       int    `json:"size"`
	HexPreview string `json:"hex_preview"`
}

const hexPreviewBytes = 16

// runJSON prints one JSON object per packet using the corpus's fast JSON
// codec, for a human watching the stream or another tool piping it in.
func runJSON(segmentName string) error {
	r, err := openReader(segmentName)
	if err != nil {
		return err
	}
	defer r.Close()

	enc := sonnet.NewEncoder(os.Stdout)

	var discarded uint64
	for {
		payload, ok, lapped, err := pollPacket(r)
		if err != nil {
			return err
		}
		if lapped {
			discarded++
			fmt.Fprintf(os.Stderr, "shmtail: discarded a lapped payload (%d so far)\n", discarded)
		}
		if !ok {
			continue
		}
		size, unixMicros := logheader.Decode(headerOf(payload))
		body := payload[logheader.Size : logheader.Size+uint64(size)]

		previewLen := len(body)
		if previewLen > hexPreviewBytes {
			previewLen = hexPreviewBytes
		}

		if err := enc.Encode(jsonRecord{
			UnixMicros: unixMicros,
			Size:       size,
			HexPreview: hex.EncodeToString(body[:previewLen]),
		}); err != nil {
			return err
		}
	}
}

// runStats prints packets/sec, bytes/sec, keep-up state, writer EOF state
// and the cumulative count of discarded payloads once a second, the Go
// counterpart to packet_health.py's status line. Reader lag is not printed.
func runStats(segmentName string) error {
	r, err := openReader(segmentName)
	if err != nil {
		return err
	}
	defer r.Close()

	var packets, bytesSeen, lappedTotal uint64
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	done := make(chan error, 1)
	go func() {
		for {
			payload, ok, lapped, err := pollPacket(r)
			if err != nil {
				done <- err
				return
			}
			if lapped {
				lappedTotal++
			}
			if !ok {
				continue
			}
			size, _ := logheader.Decode(headerOf(payload))
			packets++
			bytesSeen += uint64(size)
		}
	}()

	for {
		select {
		case err := <-done:
			return err
		case <-ticker.C:
			eof, err := r.EOF()
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "packets/sec=%d bytes/sec=%d has_kept_up=%t writer_eof=%t lapped_discards=%d\n",
				packets, bytesSeen, r.HasKeptUp(), eof, lappedTotal)
			packets, bytesSeen = 0, 0
		}
	}
}

// runDemux writes each packet's payload to a file under dir named by the
// payload's leading byte, a minimal stand-in for shm2pcm.py/shm2wavs.py's
// per-channel demultiplexing.
func runDemux(segmentName, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("shmtail: %w", err)
	}

	r, err := openReader(segmentName)
	if err != nil {
		return err
	}
	defer r.Close()

	files := map[byte]*os.File{}
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()

	var discarded uint64
	for {
		payload, ok, lapped, err := pollPacket(r)
		if err != nil {
			return err
		}
		if lapped {
			discarded++
			fmt.Fprintf(os.Stderr, "shmtail: discarded a lapped payload (%d so far)\n", discarded)
		}
		if !ok {
			continue
		}
		size, _ := logheader.Decode(headerOf(payload))
		body := payload[logheader.Size : logheader.Size+uint64(size)]
		if len(body) == 0 {
			continue
		}

		tag := body[0]
		f, ok := files[tag]
		if !ok {
			path := filepath.Join(dir, fmt.Sprintf("tag_%02x.bin", tag))
			f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
			if err != nil {
				return fmt.Errorf("shmtail: %w", err)
			}
			files[tag] = f
		}
		if _, err := f.Write(body); err != nil {
			return fmt.Errorf("shmtail: %w", err)
		}
	}
}

// pollPacket calls Recv once, sleeping briefly and retrying on the "empty"
// outcome, and resyncing and retrying on ErrLapped. After a successful Recv
// it copies the payload out of the segment and only then checks HasKeptUp,
// per that method's contract: a false result means the writer may have
// overwritten the slot while it was being copied, so the copy is discarded
// rather than decoded or forwarded any further. The returned payload is
// that private copy. lapped reports whether this call discarded a payload
// for either reason, so callers can count or log it.
func pollPacket(r *ringshm.Reader) (payload []byte, ok bool, lapped bool, err error) {
	payload, ok, err = r.Recv()
	switch {
	case err == ringshm.ErrLapped:
		r.Resync()
		return nil, false, true, nil
	case err != nil:
		return nil, false, false, err
	case !ok:
		time.Sleep(time.Millisecond)
		return nil, false, false, nil
	}

	payload = append([]byte(nil), payload...)
	if !r.HasKeptUp() {
		r.Resync()
		return nil, false, true, nil
	}

	return payload, true, false, nil
}

func headerOf(payload []byte) uint64 {
	return binary.LittleEndian.Uint64(payload[:logheader.Size])
}
