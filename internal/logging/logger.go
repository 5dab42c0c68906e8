package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kuhlman-labs/migration-auditor/internal/config"
)

// Options adjust the logger for a single CLI invocation.
type Options struct {
	// Verbose forces debug level regardless of configuration.
	Verbose bool
	// Console receives human-oriented output. Defaults to os.Stderr so that
	// stdout stays free for the summary table.
	Console io.Writer
}

// Logger bundles the slog logger with the rotating file it may write to.
type Logger struct {
	*slog.Logger
	file *lumberjack.Logger
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// NewLogger builds the console handler (tinted when attached to a terminal)
// and, when an output file is configured, a rotating file handler in the
// configured format.
func NewLogger(cfg config.LoggingConfig, opts Options) *Logger {
	level := parseLevel(cfg.Level)
	if opts.Verbose {
		level = slog.LevelDebug
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	var consoleHandler slog.Handler
	if f, ok := console.(*os.File); ok && shouldUseColors(f) {
		consoleHandler = tint.NewHandler(f, &tint.Options{Level: level, TimeFormat: "15:04:05"})
	} else {
		consoleHandler = tint.NewHandler(console, &tint.Options{Level: level, NoColor: true})
	}

	if cfg.OutputFile == "" {
		return &Logger{Logger: slog.New(consoleHandler)}
	}

	file := &lumberjack.Logger{
		Filename:   cfg.OutputFile,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   true,
	}

	var fileHandler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		fileHandler = slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	} else {
		fileHandler = slog.NewTextHandler(file, &slog.HandlerOptions{Level: level})
	}

	return &Logger{
		Logger: slog.New(NewMultiHandler(consoleHandler, fileHandler)),
		file:   file,
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// shouldUseColors honours NO_COLOR and dumb terminals
func shouldUseColors(f *os.File) bool {
	if !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	term := os.Getenv("TERM")
	return term != "" && term != "dumb"
}

// MultiHandler fans a record out to several handlers.
type MultiHandler struct {
	handlers []slog.Handler
}

func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

func (h *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle delivers to every enabled handler and joins their errors, so a full
// disk on the file side does not silence the console.
func (h *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, r.Level) {
			continue
		}
		if err := handler.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: next}
}

func (h *MultiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithGroup(name)
	}
	return &MultiHandler{handlers: next}
}
