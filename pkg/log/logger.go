package log

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/YuminosukeSato/sgdkit/pkg/errors"
)

// Output formats accepted by SetupLogger.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// SetupLogger configures process-wide logging for the CLI:
//   - the global zerolog provider used by library packages,
//   - the errors.Warn hook, so warnings become structured records,
//   - the slog default logger, wrapped by ErrFmtHandler to attach stacktraces.
func SetupLogger(level, format string) error {
	return setupLogger(os.Stderr, level, format)
}

func setupLogger(w io.Writer, level, format string) error {
	lv, err := ParseLevel(level)
	if err != nil {
		return err
	}

	var out io.Writer
	switch strings.ToLower(format) {
	case "", FormatConsole:
		out = zerolog.ConsoleWriter{Out: w}
	case FormatJSON:
		out = w
	default:
		return errors.NewValidationError("log.format", "must be one of console, json", format)
	}
	SetProvider(NewZerologProvider(out, lv))

	errors.SetZerologWarnFunc(func(warning error) {
		GetLoggerWithName("warnings").Warn("warning", "warning", warning)
	})

	ops := slog.HandlerOptions{
		AddSource: lv <= LevelDebug,
		Level:     slog.Level(lv),
	}
	slog.SetDefault(slog.New(WrapByErrFmtHandler(slog.NewJSONHandler(w, &ops))))
	return nil
}

// ParseLevel converts "debug", "info", "warn" or "error" into a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, errors.NewValidationError("log.level", "must be one of debug, info, warn, error", level)
	}
}

const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "stacktrace"
)

// ErrAttr is a wrapper to pass err to slog.
func ErrAttr(err error) slog.Attr {
	return slog.Any(ErrAttrKey, err)
}
