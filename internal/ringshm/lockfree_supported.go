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

//go:build amd64 || arm64 || riscv64 || ppc64 || ppc64le || s390x

package ringshm

// On these architectures the Go runtime lowers sync/atomic's 64-bit
// operations to a single native load/store or CAS instruction: genuinely
// lock-free, safe to use across process boundaries where a spinlock-backed
// emulation could deadlock readers against a writer that died mid-update.
// See lockfree_unsupported.go for the architectures where this does not
// hold and the package refuses to initialize.
const atomicUint64IsLockFree = true
