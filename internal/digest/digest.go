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

// Package digest computes and writes the SHA3-256 sidecar file that
// accompanies each completed chunk file, letting a downstream archiver
// verify a chunk survived staging and transfer intact.
package digest

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/sha3"
)

// SidecarSuffix is appended to a chunk file's path to name its digest file.
const SidecarSuffix = ".sha3"

// SumFile hashes the file at path with SHA3-256 and writes a sidecar file
// at path+SidecarSuffix containing the lowercase hex digest, two spaces and
// the file's base name, followed by a newline: the conventional
// "<hex>  <filename>\n" form emitted by sha3sum-style tools. It returns the sidecar path.
func SumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("digest: open %s: %w", path, err)
	}
	defer f.Close()

	h := sha3.New256()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("digest: hash %s: %w", path, err)
	}

	sidecarPath := path + SidecarSuffix
	line := fmt.Sprintf("%s  %s\n", hex.EncodeToString(h.Sum(nil)), filepath.Base(path))
	if err := os.WriteFile(sidecarPath, []byte(line), 0644); err != nil {
		return "", fmt.Errorf("digest: write %s: %w", sidecarPath, err)
	}
	return sidecarPath, nil
}
