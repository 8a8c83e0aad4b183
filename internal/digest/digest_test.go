package digest

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/sha3"
)

func TestSumFileWritesSidecar(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chunk.bin")
	contentsIn := []byte("hello world")
	if err := os.WriteFile(path, contentsIn, 0644); err != nil {
		t.Fatal(err)
	}

	sidecarPath, err := SumFile(path)
	if err != nil {
		t.Fatalf("SumFile: %v", err)
	}
	if sidecarPath != path+SidecarSuffix {
		t.Errorf("sidecarPath = %q, want %q", sidecarPath, path+SidecarSuffix)
	}

	got, err := os.ReadFile(sidecarPath)
	if err != nil {
		t.Fatal(err)
	}

	sum := sha3.Sum256(contentsIn)
	wantHex := hex.EncodeToString(sum[:])

	if !strings.HasPrefix(string(got), wantHex) {
		t.Errorf("digest sidecar = %q, want it to start with %q", got, wantHex)
	}
	if !strings.Contains(string(got), "chunk.bin") {
		t.Errorf("digest sidecar %q does not mention the source filename", got)
	}
}

func TestSumFileMissingSource(t *testing.T) {
	if _, err := SumFile(filepath.Join(t.TempDir(), "does-not-exist")); err == nil {
		t.Error("SumFile on a missing file should fail")
	}
}
