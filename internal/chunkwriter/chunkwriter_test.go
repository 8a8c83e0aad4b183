package chunkwriter

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/appliedoceansciences/cobs-to-shm/internal/logheader"
)

func record(t *testing.T, payload []byte, timeMicros uint64) []byte {
	t.Helper()
	header := logheader.Encode(len(payload), timeMicros)
	rec := make([]byte, logheader.Size+len(payload))
	binary.LittleEndian.PutUint64(rec, header)
	copy(rec[logheader.Size:], payload)
	return rec
}

func TestWritePacketStaysInOneFileWithinABucket(t *testing.T) {
	dir := t.TempDir()
	w := New(dir)

	base := uint64(1_700_000_000_000_000) // an arbitrary unix-microsecond time
	for i := uint64(0); i < 5; i++ {
		rec := record(t, []byte("abc"), base+i*1000)
		if err := w.WritePacket(rec, base+i*1000); err != nil {
			t.Fatalf("WritePacket: %v", err)
		}
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var completed []string
	for path := range w.Completed() {
		completed = append(completed, path)
	}
	if len(completed) != 1 {
		t.Fatalf("got %d completed files, want 1", len(completed))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d files on disk, want 1", len(entries))
	}
}

func TestWritePacketRollsOverOnBucketBoundary(t *testing.T) {
	dir := t.TempDir()
	w := New(dir)

	first := uint64(0)
	second := uint64(BucketMicros + 1)

	if err := w.WritePacket(record(t, []byte("a"), first), first); err != nil {
		t.Fatal(err)
	}
	if err := w.WritePacket(record(t, []byte("b"), second), second); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	var completed []string
	for path := range w.Completed() {
		completed = append(completed, path)
	}
	if len(completed) != 2 {
		t.Fatalf("got %d completed files, want 2", len(completed))
	}
}

func TestWritePacketPadsRecordToEightBytes(t *testing.T) {
	dir := t.TempDir()
	w := New(dir)

	payload := []byte{1, 2, 3} // logheader.Size(8) + 3 = 11, pads to 16
	if err := w.WritePacket(record(t, payload, 0), 0); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	<-w.Completed()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d files, want 1", len(entries))
	}

	info, err := os.Stat(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 16 {
		t.Errorf("file size = %d, want 16", info.Size())
	}
}
