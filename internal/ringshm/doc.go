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

// Package ringshm implements a single-producer, multiple-consumer, lock-free
// byte ring buffer in a POSIX shared-memory segment.
//
// One writer process calls InitWriter, then repeatedly Acquire/Send to
// publish variable-size packets with zero-copy, fire-and-forget semantics:
// like UDP multicast to localhost, but with no kernel copy and no socket
// buffer to overflow. Zero or more independent reader processes call Open
// and then poll Recv; a slow or crashed reader can never block the writer
// or any other reader, because the writer never waits on anything a reader
// does.
//
// The segment is named the way POSIX shared memory objects are named (a
// string beginning with "/"); on Linux this maps to a file under /dev/shm.
// Liveness of the writer is conveyed without heartbeats: the segment header
// carries the writer's pid, and readers combine that with a signal-0
// existence check (see package liveness) to distinguish a live writer from
// a crashed or cleanly-shut-down one.
package ringshm
