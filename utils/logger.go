package utils

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fluent/fluent-logger-golang/fluent"
	"github.com/lmittmann/tint"
)

const timeFormat = "2006-01-02 15:04:05"

var current atomic.Pointer[slog.Logger]

func init() {
	current.Store(slog.New(consoleHandler(os.Stderr, slog.LevelInfo, "text")))
}

type LogOptions struct {
	Level      string
	Format     string
	FluentHost string
	FluentPort int
	FluentTag  string
}

// InitLogger installs the process-wide logger. The returned func closes the
// fluent connection when one was opened.
//
// The console handler is installed even when Fluentd cannot be reached, so
// LOG_LEVEL and LOG_FORMAT still apply; the error only reports the missing
// sink.
func InitLogger(opts LogOptions) (func() error, error) {
	return initLogger(opts, os.Stderr, dialFluent)
}

type fluentClient interface {
	fluentPoster
	Close() error
}

func dialFluent(opts LogOptions) (fluentClient, error) {
	return fluent.New(fluent.Config{
		FluentHost: opts.FluentHost,
		FluentPort: opts.FluentPort,
		Async:      true,
	})
}

func initLogger(opts LogOptions, w io.Writer, dial func(LogOptions) (fluentClient, error)) (func() error, error) {
	level := ParseLevel(opts.Level)
	handler := consoleHandler(w, level, opts.Format)
	closer := func() error { return nil }

	if opts.FluentHost != "" {
		client, err := dial(opts)
		if err != nil {
			SetLogger(slog.New(handler))
			return closer, fmt.Errorf("connect fluentd %s:%d: %w", opts.FluentHost, opts.FluentPort, err)
		}
		handler = NewMultiHandler(handler, NewFluentHandler(client, opts.FluentTag, level))
		closer = client.Close
	}

	SetLogger(slog.New(handler))
	return closer, nil
}

func consoleHandler(w io.Writer, level slog.Leveler, format string) slog.Handler {
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: timeFormat,
	})
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func Logger() *slog.Logger {
	return current.Load()
}

func SetLogger(l *slog.Logger) {
	current.Store(l)
	slog.SetDefault(l)
}

func Info(format string, a ...interface{}) {
	Logger().Info(fmt.Sprintf(format, a...))
}

func Success(format string, a ...interface{}) {
	Logger().Info(fmt.Sprintf(format, a...), "status", "ok")
}

func Warn(format string, a ...interface{}) {
	Logger().Warn(fmt.Sprintf(format, a...))
}

func Error(format string, a ...interface{}) {
	Logger().Error(fmt.Sprintf(format, a...))
}

func Section(title string) {
	Logger().Info(fmt.Sprintf("══════════ %s ══════════", title))
}

// Elapsed formats a duration for log lines.
func Elapsed(since time.Time) string {
	return time.Since(since).Round(time.Millisecond).String()
}
