package ringshm

import (
	"bytes"
	"fmt"
	"os"
	"testing"
)

// testSegmentName returns a unique segment name per test and registers
// cleanup of the backing file it maps to.
func testSegmentName(t *testing.T) string {
	t.Helper()
	name := fmt.Sprintf("/ringshm_test_%d_%s", os.Getpid(), t.Name())
	path, err := segmentPath(name)
	if err != nil {
		t.Fatalf("segmentPath: %v", err)
	}
	t.Cleanup(func() { os.Remove(path) })
	return name
}

func TestHeaderSize(t *testing.T) {
	// the init() in segment.go already panics on mismatch at package load;
	// this just documents the invariant under test as well.
	if headerSize != 64 {
		t.Fatalf("headerSize = %d, want 64", headerSize)
	}
}

func TestRoundUp16(t *testing.T) {
	tests := map[uint64]uint64{0: 0, 1: 16, 15: 16, 16: 16, 17: 32}
	for in, want := range tests {
		if got := roundUp16(in); got != want {
			t.Errorf("roundUp16(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	tests := map[uint64]bool{0: false, 1: true, 2: true, 3: false, 4194304: true, 4194305: false}
	for in, want := range tests {
		if got := isPowerOfTwo(in); got != want {
			t.Errorf("isPowerOfTwo(%d) = %v, want %v", in, got, want)
		}
	}
}

func newTestPair(t *testing.T, capacity, maxPacketSize uint64) (*Writer, *Reader) {
	t.Helper()
	name := testSegmentName(t)

	w, err := InitWriter(name, capacity, maxPacketSize)
	if err != nil {
		t.Fatalf("InitWriter: %v", err)
	}
	t.Cleanup(func() { w.Close() })

	r, err := Open(name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { r.Close() })

	return w, r
}

func sendPacket(t *testing.T, w *Writer, payload []byte) {
	t.Helper()
	buf := w.Acquire()
	if len(payload) > len(buf) {
		t.Fatalf("payload too large for slot: %d > %d", len(payload), len(buf))
	}
	copy(buf, payload)
	if err := w.Send(uint64(len(payload))); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestSendRecvRoundTrip(t *testing.T) {
	w, r := newTestPair(t, 4096, 128)

	sendPacket(t, w, []byte("hello"))

	got, ok, err := r.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if !ok {
		t.Fatal("Recv: expected a packet, got empty")
	}
	if string(got) != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}

	if !r.HasKeptUp() {
		t.Error("HasKeptUp() = false immediately after Recv, want true")
	}
}

func TestRecvEmptyWhenCaughtUp(t *testing.T) {
	_, r := newTestPair(t, 4096, 128)

	_, ok, err := r.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if ok {
		t.Error("Recv on an idle segment returned a packet, want empty")
	}
}

func TestRecvManyPacketsInOrder(t *testing.T) {
	w, r := newTestPair(t, 4096, 128)

	want := []string{"a", "bb", "ccc", "dddd"}
	for _, s := range want {
		sendPacket(t, w, []byte(s))
	}

	for _, s := range want {
		got, ok, err := r.Recv()
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if !ok {
			t.Fatalf("Recv: expected %q, got empty", s)
		}
		if string(got) != s {
			t.Errorf("got %q, want %q", got, s)
		}
	}
}

func TestSendRecvExactMaxPacketSize(t *testing.T) {
	w, r := newTestPair(t, 4096, 32)

	payload := make([]byte, w.MaxPacketSize())
	for i := range payload {
		payload[i] = byte(i)
	}
	sendPacket(t, w, payload)

	got, ok, err := r.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if !ok {
		t.Fatal("expected a packet, got empty")
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("got %d bytes back, want the %d-byte payload sent unchanged", len(got), len(payload))
	}
}

func TestSendRecvAcrossCapacityWrap(t *testing.T) {
	// capacity=64, maxPacketSize=16 -> maxSlotSize=roundUp16(16+8)=32, so the
	// writer cursor wraps back to slot offset 0 every four one-byte-payload
	// sends (each advances by roundUp16(8+1)=16). The fourth slot in every
	// such cycle starts at offset 48, where 48+32 exceeds the 64-byte
	// capacity: it extends contiguously into the oversized tail region
	// described by totalSize's doc comment rather than being split across
	// the wrap point. Sending enough packets to wrap twice exercises both that slot
	// and the wrap itself.
	w, r := newTestPair(t, 64, 16)

	// Interleaved so the reader never falls far enough behind to lap: with
	// this capacity and slot size only about two outstanding slots fit
	// before ErrLapped, far fewer than the eight sends needed to wrap twice.
	want := []byte{10, 20, 30, 40, 50, 60, 70, 80}
	for _, b := range want {
		sendPacket(t, w, []byte{b})

		got, ok, err := r.Recv()
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if !ok {
			t.Fatalf("expected payload %d, got empty", b)
		}
		if len(got) != 1 || got[0] != b {
			t.Errorf("got %v, want [%d]", got, b)
		}
	}
}

func TestReaderLapped(t *testing.T) {
	// A small ring and a reader that never calls Recv, so the writer wraps
	// around and overwrites the slot the reader would have read next.
	w, r := newTestPair(t, 64, 16)

	for i := 0; i < 20; i++ {
		sendPacket(t, w, []byte{byte(i)})
	}

	_, _, err := r.Recv()
	if err != ErrLapped {
		t.Fatalf("Recv after being lapped = %v, want ErrLapped", err)
	}

	r.Resync()
	if !r.HasKeptUp() {
		t.Error("HasKeptUp() after Resync = false, want true")
	}
}

func TestNewReaderStartsAtCurrentCursor(t *testing.T) {
	w, _ := newTestPair(t, 4096, 128)

	sendPacket(t, w, []byte("before open"))

	r2, err := Open(w.name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r2.Close()

	_, ok, err := r2.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if ok {
		t.Error("a reader opened after a packet was sent observed it, want it to only see packets sent after Open")
	}

	sendPacket(t, w, []byte("after open"))

	got, ok, err := r2.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if !ok {
		t.Fatal("expected the packet sent after Open")
	}
	if string(got) != "after open" {
		t.Errorf("got %q, want %q", got, "after open")
	}
}

func TestWriterCloseZeroesPID(t *testing.T) {
	name := testSegmentName(t)

	w, err := InitWriter(name, 4096, 128)
	if err != nil {
		t.Fatalf("InitWriter: %v", err)
	}

	r, err := Open(name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if eof, err := r.EOF(); err != nil || eof {
		t.Fatalf("EOF before Close = (%v, %v), want (false, nil)", eof, err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	eof, err := r.EOF()
	if err != nil {
		t.Fatalf("EOF after Close: %v", err)
	}
	if !eof {
		t.Error("EOF after writer Close = false, want true")
	}
}

func TestOpenNonexistentSegment(t *testing.T) {
	name := testSegmentName(t)
	if _, err := Open(name); err != ErrNotFound {
		t.Fatalf("Open on nonexistent segment = %v, want ErrNotFound", err)
	}
}

func TestInitWriterRejectsBadCapacity(t *testing.T) {
	name := testSegmentName(t)
	if _, err := InitWriter(name, 100, 128); err == nil {
		t.Error("InitWriter with non-power-of-two capacity should fail")
	}
}

func TestInitWriterRejectsBadMaxPacketSize(t *testing.T) {
	name := testSegmentName(t)
	if _, err := InitWriter(name, 4096, 100); err == nil {
		t.Error("InitWriter with max packet size not a multiple of 16 should fail")
	}
}

func TestSendRejectsOversizedPayload(t *testing.T) {
	w, _ := newTestPair(t, 4096, 16)
	w.Acquire()
	if err := w.Send(1000); err == nil {
		t.Error("Send with oversized payload should fail")
	}
}
