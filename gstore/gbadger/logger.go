package gbadger

import (
	"fmt"
	"log/slog"
	"strings"
)

// slogAdapter satisfies badger.Logger.
// Badger's messages are printf-style with trailing newlines,
// so they are formatted and trimmed before being logged as a single message.
type slogAdapter struct {
	log *slog.Logger
}

func (a slogAdapter) Errorf(format string, args ...any) {
	a.log.Error(trimmed(format, args))
}

func (a slogAdapter) Warningf(format string, args ...any) {
	a.log.Warn(trimmed(format, args))
}

func (a slogAdapter) Infof(format string, args ...any) {
	// Badger is chatty at info level about compactions and startup.
	a.log.Debug(trimmed(format, args))
}

func (a slogAdapter) Debugf(format string, args ...any) {
	a.log.Debug(trimmed(format, args))
}

func trimmed(format string, args []any) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}
