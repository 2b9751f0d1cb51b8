package testutil

import (
	"bytes"
	"log/slog"
)

// DiscardLogger returns a slog.Logger that discards all output.
//
// Note: log.Logger is a type alias for *slog.Logger, so this function and
// log.NewNop() return the same type. Prefer log.NewNop() when working with
// the internal/log package; this exists for tests that only import testutil.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// BufferLogger returns a debug-level text logger writing into buf, for tests
// that assert on log output.
func BufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
