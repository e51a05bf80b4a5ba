// Package telemetry builds the gateway's structured logger. Grounded on
// internal/observability/logging.go's slog wrapper, trimmed to this
// module's needs: stdout is reserved for the JSON-RPC wire protocol (spec
// §6), so logs always go to stderr by default, and the context-correlation
// fields are this domain's own (tool, model_id, request_id,
// conversation_id) rather than the teacher's channel/session/user set.
package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error". Defaults to "info".
	Level string
	// Format is "json" or "text". Defaults to "json".
	Format string
	// Output defaults to os.Stderr — never os.Stdout, which carries the
	// JSON-RPC wire protocol.
	Output io.Writer
	// AddSource includes file:line in each record.
	AddSource bool
}

// redactPatterns catches the provider API keys this gateway handles
// (spec §6 env vars) so a logged error never leaks one verbatim.
var redactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{90,}`),
	regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),
	regexp.MustCompile(`(?i)(bearer|api[_-]?key|authorization)[\s:=]+["']?([a-zA-Z0-9_\-\.]{16,})["']?`),
}

// NewLogger builds a *slog.Logger over a redacting handler.
func NewLogger(cfg LogConfig) *slog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	level := parseLevel(cfg.Level)

	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}
	var base slog.Handler
	if cfg.Format == "text" {
		base = slog.NewTextHandler(cfg.Output, opts)
	} else {
		base = slog.NewJSONHandler(cfg.Output, opts)
	}

	return slog.New(&redactingHandler{next: base})
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// redactingHandler wraps an slog.Handler, scrubbing API-key-shaped
// substrings from the message and every string-valued attribute before
// passing the record on.
type redactingHandler struct {
	next slog.Handler
}

func (h *redactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *redactingHandler) Handle(ctx context.Context, record slog.Record) error {
	record.Message = redact(record.Message)
	redacted := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	record.Attrs(func(a slog.Attr) bool {
		redacted.AddAttrs(redactAttr(a))
		return true
	})
	return h.next.Handle(ctx, redacted)
}

func (h *redactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = redactAttr(a)
	}
	return &redactingHandler{next: h.next.WithAttrs(redacted)}
}

func (h *redactingHandler) WithGroup(name string) slog.Handler {
	return &redactingHandler{next: h.next.WithGroup(name)}
}

func redactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, redact(a.Value.String()))
	}
	return a
}

func redact(s string) string {
	for _, re := range redactPatterns {
		s = re.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

// WithTool returns a logger scoped to one tool call (spec §4.6).
func WithTool(logger *slog.Logger, tool string) *slog.Logger {
	return logger.With("tool", tool)
}

// WithModel returns a logger scoped to one model id.
func WithModel(logger *slog.Logger, modelID string) *slog.Logger {
	return logger.With("model_id", modelID)
}

// WithRequest returns a logger scoped to one persisted request/conversation
// pair (spec §4.4/§4.5).
func WithRequest(logger *slog.Logger, requestID, conversationID int64) *slog.Logger {
	return logger.With("request_id", requestID, "conversation_id", conversationID)
}
