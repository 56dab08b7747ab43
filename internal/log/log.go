// Package log provides the small logging surface the comet package needs,
// built on logr so the host application can plug in whatever backend
// (zap, zerolog, stdlib slog, ...) it already uses for everything else.
package log

import "github.com/go-logr/logr"

// Logger is logr.Logger itself, re-exported under this package's name.
type Logger = logr.Logger

// Discard returns a Logger that throws everything away, used as the default
// so callers are never required to wire one up.
func Discard() Logger {
	return logr.Discard()
}
