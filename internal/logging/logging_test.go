package logging

import (
	"log/slog"
	"os"
	"testing"
)

func TestNewLoggerDoesNotPanic(t *testing.T) {
	log := New(os.Stderr, slog.LevelInfo)
	log.Debug("should be filtered out")
	log.Info("hello", "key", "value")
	log.Warn("careful")
	log.Error("oops", "err", "boom")

	child := log.With("component", "test")
	child.Info("tagged message")
}

func TestDiscardLogger(t *testing.T) {
	Discard.Info("nothing happens")
	Discard.With("k", "v").Warn("still nothing")
}
