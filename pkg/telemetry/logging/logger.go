package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string

	// Format is the output format: json, text, or console.
	Format string

	// AddSource includes file:line information in log output.
	AddSource bool

	// RedactSecrets enables credential redaction on log fields.
	// Values under sensitive keys are reduced to a masked suffix and
	// credential-shaped strings inside messages are blanked.
	RedactSecrets bool

	// Writer is the log output destination. Defaults to os.Stderr.
	Writer io.Writer
}

// Logger wraps slog.Logger with credential redaction.
type Logger struct {
	slog     *slog.Logger
	redactor *Redactor
	level    slog.Level
}

// New creates a logger from the given configuration.
func New(cfg Config) (*Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	format, err := parseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}

	writer := cfg.Writer
	if writer == nil {
		writer = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	switch format {
	case formatJSON:
		handler = slog.NewJSONHandler(writer, opts)
	case formatText, formatConsole:
		handler = slog.NewTextHandler(writer, opts)
	}

	var redactor *Redactor
	if cfg.RedactSecrets {
		redactor = NewRedactor()
	}

	return &Logger{
		slog:     slog.New(handler),
		redactor: redactor,
		level:    level,
	}, nil
}

// Nop returns a logger that discards all output. Useful as a default
// when no logger is configured.
func Nop() *Logger {
	return &Logger{
		slog:  slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1})),
		level: slog.LevelError + 1,
	}
}

// Debug logs a message at debug level.
func (l *Logger) Debug(msg string, args ...any) {
	l.log(context.Background(), slog.LevelDebug, msg, args...)
}

// Info logs a message at info level.
func (l *Logger) Info(msg string, args ...any) {
	l.log(context.Background(), slog.LevelInfo, msg, args...)
}

// Warn logs a message at warn level.
func (l *Logger) Warn(msg string, args ...any) {
	l.log(context.Background(), slog.LevelWarn, msg, args...)
}

// Error logs a message at error level.
func (l *Logger) Error(msg string, args ...any) {
	l.log(context.Background(), slog.LevelError, msg, args...)
}

// DebugContext logs a message at debug level with context.
func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelDebug, msg, args...)
}

// InfoContext logs a message at info level with context.
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelInfo, msg, args...)
}

// WarnContext logs a message at warn level with context.
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelWarn, msg, args...)
}

// ErrorContext logs a message at error level with context.
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelError, msg, args...)
}

// log is the common logging path. It skips redaction work entirely when
// the level is filtered out.
func (l *Logger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if !l.slog.Enabled(ctx, level) {
		return
	}

	if l.redactor != nil {
		msg = l.redactor.RedactString(msg)
		args = l.redactor.RedactArgs(args)
	}

	l.slog.Log(ctx, level, msg, args...)
}

// With returns a logger with additional fields attached to every record.
func (l *Logger) With(args ...any) *Logger {
	if l.redactor != nil {
		args = l.redactor.RedactArgs(args)
	}
	return &Logger{
		slog:     l.slog.With(args...),
		redactor: l.redactor,
		level:    l.level,
	}
}

// WithContext returns a logger with fields extracted from the context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	fields := extractContextFields(ctx)
	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}

const (
	formatJSON    = "json"
	formatText    = "text"
	formatConsole = "console"
)

// parseLevel converts a level string to a slog.Level. An empty string
// defaults to info.
func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q (want debug, info, warn, or error)", s)
	}
}

// parseFormat validates a format string. An empty string defaults to json.
func parseFormat(s string) (string, error) {
	switch strings.ToLower(s) {
	case "", formatJSON:
		return formatJSON, nil
	case formatText:
		return formatText, nil
	case formatConsole:
		return formatConsole, nil
	default:
		return "", fmt.Errorf("invalid log format %q (want json, text, or console)", s)
	}
}
