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

// Command ingest opens a serial device, de-escapes COBS-framed datagrams
// arriving on it, and fans them out to realtime shared-memory readers while
// optionally logging them to a sequence of chunk files for later archival.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/appliedoceansciences/cobs-to-shm/internal/catalog"
	"github.com/appliedoceansciences/cobs-to-shm/internal/chunkwriter"
	"github.com/appliedoceansciences/cobs-to-shm/internal/digest"
	"github.com/appliedoceansciences/cobs-to-shm/internal/ingest"
	"github.com/appliedoceansciences/cobs-to-shm/internal/logging"
	"github.com/appliedoceansciences/cobs-to-shm/internal/ringshm"
	"github.com/appliedoceansciences/cobs-to-shm/internal/serialport"
)

// Defaults for the segment name and capacity match the reference tool's
// compiled-in constants; the max packet size is the largest multiple of 16
// not above the reference tool's 65528, since InitWriter requires one.
const (
	defaultSegmentName    = "/cobs_to_shm"
	defaultCapacity       = 4194304
	defaultMaxPacketSize  = 65520
	settleBeforeOpenDelay = 200_000 // microseconds, time given to simultaneously-started readers to connect
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		segmentName    string
		capacity       uint64
		maxPacketSize  uint64
		loggingDir     string
		logLevel       string
		catalogPath    string
		computeDigests bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <device>[,<baud>]",
		Short: "Log and fan out COBS-framed serial datagrams",
		Long: "ingest reads COBS-framed datagrams from a serial device, de-escapes them, " +
			"prepends a size-and-timestamp header, publishes them to a shared-memory ring " +
			"buffer for realtime readers, and optionally logs them to a sequence of chunk files.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := parseLevel(logLevel)
			if err != nil {
				return err
			}
			log := logging.New(os.Stderr, level)

			return run(cmd.Context(), runConfig{
				device:         args[0],
				segmentName:    segmentName,
				capacity:       capacity,
				maxPacketSize:  maxPacketSize,
				loggingDir:     loggingDir,
				catalogPath:    catalogPath,
				computeDigests: computeDigests,
				log:            log,
			})
		},
	}

	cmd.Flags().StringVar(&segmentName, "segment", defaultSegmentName, "shared memory segment name")
	cmd.Flags().Uint64Var(&capacity, "capacity", defaultCapacity, "ring buffer capacity in bytes, must be a power of two")
	cmd.Flags().Uint64Var(&maxPacketSize, "max-packet-size", defaultMaxPacketSize, "largest packet payload accepted, must be a multiple of 16")
	cmd.Flags().StringVar(&loggingDir, "logging-dir", "", "directory to stage chunk files in; disabled if unset")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "path to a sqlite catalog database recording completed chunk files; requires --logging-dir")
	cmd.Flags().BoolVar(&computeDigests, "digest", false, "write a .sha3 sidecar file for each completed chunk; requires --logging-dir")

	return cmd
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unrecognized log level %q", s)
	}
}

type runConfig struct {
	device         string
	segmentName    string
	capacity       uint64
	maxPacketSize  uint64
	loggingDir     string
	catalogPath    string
	computeDigests bool
	log            logging.Logger
}

func run(ctx context.Context, cfg runConfig) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.loggingDir != "" {
		cfg.log.Info("output files will be staged", "dir", cfg.loggingDir)
	} else {
		cfg.log.Info("chunk logging is disabled")
	}

	writer, err := ringshm.InitWriter(cfg.segmentName, cfg.capacity, cfg.maxPacketSize)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	defer writer.Close()

	// give simultaneously-started readers a chance to connect before data starts flowing
	time.Sleep(settleBeforeOpenDelay * time.Microsecond)

	src, err := serialport.Open(cfg.device)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	defer src.Close()

	opts := []ingest.Option{ingest.WithLogger(cfg.log)}

	var chunks *chunkwriter.Writer
	if cfg.loggingDir != "" {
		chunks = chunkwriter.New(cfg.loggingDir)
		opts = append(opts, ingest.WithChunkWriter(chunks))
	}

	loop := ingest.New(src, writer, opts...)

	var cat *catalog.Catalog
	if cfg.catalogPath != "" {
		cat, err = catalog.Open(cfg.catalogPath)
		if err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
		defer cat.Close()
	}

	var consumers sync.WaitGroup
	if chunks != nil {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			recordCompletedChunks(chunks, cat, cfg.computeDigests, cfg.log)
		}()
	}

	// loop.Close must run, and its consumer must finish draining
	// Completed(), before the catalog's deferred Close unwinds: the
	// catalog is still in use by recordCompletedChunks until that
	// goroutine returns.
	runErr := loop.Run(ctx)
	closeErr := loop.Close()
	consumers.Wait()

	if runErr != nil {
		return runErr
	}
	return closeErr
}

// recordCompletedChunks drains a chunk writer's completion channel and,
// depending on configuration, prints the completed path (for a downstream
// compressor or mover piped from this process's stdout, matching the
// reference tool's behavior), computes a digest sidecar, and records the
// file in the catalog. It runs until the channel is closed at shutdown.
func recordCompletedChunks(chunks *chunkwriter.Writer, cat *catalog.Catalog, computeDigests bool, log logging.Logger) {
	for path := range chunks.Completed() {
		fmt.Println(path)

		var digestPath string
		if computeDigests {
			p, err := digest.SumFile(path)
			if err != nil {
				log.Error("failed to compute digest", "path", path, "error", err)
			} else {
				digestPath = p
			}
		}

		if cat == nil {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			log.Error("failed to stat completed chunk", "path", path, "error", err)
			continue
		}
		bucketStart, err := bucketStartFromFilename(path)
		if err != nil {
			log.Error("failed to parse chunk filename", "path", path, "error", err)
			continue
		}
		if err := cat.Record(path, bucketStart, info.Size(), digestPath); err != nil {
			log.Error("failed to record chunk in catalog", "path", path, "error", err)
		}
	}
}

// bucketStartFromFilename recovers the bucket start time, in unix
// microseconds, from a chunk file's "20060102T150405Z.bin" name.
func bucketStartFromFilename(path string) (uint64, error) {
	base := strings.TrimSuffix(filepath.Base(path), ".bin")
	ts, err := time.Parse("20060102T150405Z", base)
	if err != nil {
		return 0, fmt.Errorf("parse timestamp from %q: %w", base, err)
	}
	micros := uint64(ts.UnixMicro())
	return micros - micros%chunkwriter.BucketMicros, nil
}
