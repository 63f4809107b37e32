// Package logger provides the slog handler used by dynapatch.
//
// Log output format:
//
//	2006-01-02T15:04:05.000Z [LEVEL] message | key=value, key2=value2
//
// Custom levels beyond the standard slog set:
//   - LevelTrace (-8): per-step diagnostics
//   - LevelFail  (12): a patch routine gave up
//
// Records go to the console and, when configured, to a rotating log file.
// Only the console copy is coloured.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ///////////////////////////////////////////////
// Custom Levels
// ///////////////////////////////////////////////

const (
	LevelTrace slog.Level = -8
	LevelDebug slog.Level = slog.LevelDebug // -4
	LevelInfo  slog.Level = slog.LevelInfo  // 0
	LevelWarn  slog.Level = slog.LevelWarn  // 4
	LevelError slog.Level = slog.LevelError // 8
	LevelFail  slog.Level = 12
)

// levelName returns the display name for a log level.
func levelName(l slog.Level) string {
	switch {
	case l <= LevelTrace:
		return "TRACE"
	case l <= LevelDebug:
		return "DEBUG"
	case l <= LevelInfo:
		return "INFO"
	case l <= LevelWarn:
		return "WARN"
	case l <= LevelError:
		return "ERROR"
	default:
		return "FAIL"
	}
}

// levelColors maps level names to their console colour.
var levelColors = map[string]*color.Color{
	"TRACE": color.New(color.FgHiBlack),
	"DEBUG": color.New(color.FgCyan),
	"INFO":  color.New(color.FgGreen),
	"WARN":  color.New(color.FgYellow),
	"ERROR": color.New(color.FgRed),
	"FAIL":  color.New(color.FgRed, color.Bold),
}

// ParseLevel converts a level string to slog.Level.
// Supports: trace, debug, info, warn, error, fail (case-insensitive).
// Returns LevelInfo for unrecognized strings.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	case "fail":
		return LevelFail
	default:
		return LevelInfo
	}
}

// ValidLevel reports whether s names a level accepted by [ParseLevel].
func ValidLevel(s string) bool {
	switch strings.ToLower(s) {
	case "trace", "debug", "info", "warn", "error", "fail":
		return true
	}
	return false
}

// ///////////////////////////////////////////////
// Handler
// ///////////////////////////////////////////////

// lineEnding is CRLF on Windows, LF elsewhere.
var lineEnding = "\n"

func init() {
	if runtime.GOOS == "windows" {
		lineEnding = "\r\n"
	}
}

// sink is one destination of a [Handler].
type sink struct {
	w     io.Writer
	color bool
}

// Handler is a slog.Handler that formats records as:
//
//	2006-01-02T15:04:05.000Z [LEVEL] message | key=value, ...
//
// and writes each one to every sink.
type Handler struct {
	sinks []sink
	// mu is shared by derived handlers so concurrent routines never
	// interleave within a line.
	mu    *sync.Mutex
	level slog.Level
	attrs []slog.Attr
	group string
}

// NewHandler creates a Handler that writes uncoloured output to w,
// filtering records below level.
func NewHandler(w io.Writer, level slog.Level) *Handler {
	return &Handler{sinks: []sink{{w: w}}, level: level, mu: &sync.Mutex{}}
}

// Enabled reports whether the handler handles records at the given level.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle formats and writes a log record.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	name := levelName(r.Level)

	var head, body strings.Builder
	head.WriteString(r.Time.UTC().Format("2006-01-02T15:04:05.000Z"))
	head.WriteString(" ")

	body.WriteString(" ")
	body.WriteString(r.Message)

	allAttrs := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	allAttrs = append(allAttrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		allAttrs = append(allAttrs, a)
		return true
	})
	if len(allAttrs) > 0 {
		body.WriteString(" | ")
		for i, a := range allAttrs {
			if i > 0 {
				body.WriteString(", ")
			}
			if h.group != "" {
				body.WriteString(h.group)
				body.WriteString(".")
			}
			body.WriteString(a.Key)
			body.WriteString("=")
			body.WriteString(a.Value.String())
		}
	}
	body.WriteString(lineEnding)

	tag := "[" + name + "]"
	plain := head.String() + tag + body.String()

	h.mu.Lock()
	defer h.mu.Unlock()
	var firstErr error
	for _, s := range h.sinks {
		line := plain
		if s.color {
			line = head.String() + levelColors[name].Sprint(tag) + body.String()
		}
		if _, err := io.WriteString(s.w, line); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WithAttrs returns a new Handler with the given attributes pre-applied.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &Handler{sinks: h.sinks, mu: h.mu, level: h.level, attrs: newAttrs, group: h.group}
}

// WithGroup returns a new Handler whose attribute keys are prefixed with
// name (e.g., "group.key").
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	newGroup := name
	if h.group != "" {
		newGroup = h.group + "." + name
	}
	return &Handler{sinks: h.sinks, mu: h.mu, level: h.level, attrs: h.attrs, group: newGroup}
}

// ///////////////////////////////////////////////
// Logger Constructor
// ///////////////////////////////////////////////

// Options configures [NewLogger].
type Options struct {
	// Console receives every record. Usually os.Stdout.
	Console io.Writer
	// File, when set, also receives every record through a rotating writer.
	File string
	// MaxSizeMB is the rotation threshold for File.
	MaxSizeMB int
	// Level is the minimum level written.
	Level slog.Level
}

// NewLogger builds a logger from opts. The returned io.Closer flushes and
// closes the log file and must be closed before exit.
func NewLogger(opts Options) (*slog.Logger, io.Closer) {
	h := &Handler{level: opts.Level, mu: &sync.Mutex{}}
	if opts.Console != nil {
		h.sinks = append(h.sinks, sink{w: opts.Console, color: colorEnabled(opts.Console)})
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   false,
		}
		h.sinks = append(h.sinks, sink{w: lj})
		closer = lj
	}
	return slog.New(h), closer
}

// colorEnabled reports whether w is a terminal that should get colour.
func colorEnabled(w io.Writer) bool {
	if color.NoColor {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// ///////////////////////////////////////////////
// Helper Functions
// ///////////////////////////////////////////////

// Trace logs a message at LevelTrace.
func Trace(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelTrace, msg, args...)
}

// Fail logs a message at LevelFail.
func Fail(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelFail, msg, args...)
}
