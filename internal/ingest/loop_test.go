package ingest

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/appliedoceansciences/cobs-to-shm/internal/chunkwriter"
	"github.com/appliedoceansciences/cobs-to-shm/internal/cobs"
	"github.com/appliedoceansciences/cobs-to-shm/internal/logheader"
	"github.com/appliedoceansciences/cobs-to-shm/internal/ringshm"
)

func newTestWriter(t *testing.T) (*ringshm.Writer, string) {
	t.Helper()
	name := fmt.Sprintf("/ingest_test_%d_%s", os.Getpid(), t.Name())
	w, err := ringshm.InitWriter(name, 65536, 128)
	if err != nil {
		t.Fatalf("InitWriter: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w, name
}

func encodeFrames(t *testing.T, packets [][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, p := range packets {
		enc, err := cobs.Encode(p)
		if err != nil {
			t.Fatal(err)
		}
		buf.Write(enc)
	}
	return buf.Bytes()
}

func TestLoopPublishesDecodedPacketsWithHeader(t *testing.T) {
	packets := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	src := bytes.NewReader(encodeFrames(t, packets))

	w, name := newTestWriter(t)

	clockTime := uint64(1_700_000_000_000_000)
	loop := New(src, w, WithClock(func() uint64 {
		clockTime += 1000
		return clockTime
	}))

	reader, err := ringshm.Open(name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reader.Close()

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, want := range packets {
		got, ok, err := reader.Recv()
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if !ok {
			t.Fatalf("expected packet %q, got none", want)
		}
		size, _ := logheader.Decode(binary.LittleEndian.Uint64(got[:logheader.Size]))
		payload := got[logheader.Size : logheader.Size+uint64(size)]
		if !bytes.Equal(payload, want) {
			t.Errorf("got %q, want %q", payload, want)
		}
	}
}

func TestLoopWritesChunkFile(t *testing.T) {
	packets := [][]byte{[]byte("alpha"), []byte("beta")}
	src := bytes.NewReader(encodeFrames(t, packets))

	w, _ := newTestWriter(t)
	dir := t.TempDir()
	chunks := chunkwriter.New(dir)

	loop := New(src, w, WithChunkWriter(chunks))
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := loop.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var completed []string
	for path := range chunks.Completed() {
		completed = append(completed, path)
	}
	if len(completed) != 1 {
		t.Fatalf("got %d completed chunk files, want 1", len(completed))
	}

	data, err := os.ReadFile(completed[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Error("chunk file is empty")
	}
}

func TestLoopStopsCleanlyOnEOF(t *testing.T) {
	src := bytes.NewReader(nil)
	w, _ := newTestWriter(t)
	loop := New(src, w)

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run on empty source: %v", err)
	}
}

func TestLoopStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := bytes.NewReader(nil)
	w, _ := newTestWriter(t)
	loop := New(src, w)

	if err := loop.Run(ctx); err != nil {
		t.Fatalf("Run with pre-canceled context: %v", err)
	}
}

func TestLoopStopsPromptlyWhenBlockedOnAnIdleSource(t *testing.T) {
	// os.Pipe returns files backed by a non-blocking fd registered with the
	// runtime poller, the same property internal/serialport.Open's returned
	// file has, so this exercises Run's deadline-based cancellation of a
	// Read that would otherwise block forever since nothing is ever written
	// to the pipe.
	r, wPipe, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer wPipe.Close()
	defer r.Close()

	w, _ := newTestWriter(t)
	loop := New(r, w)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation while blocked on a read")
	}
}
