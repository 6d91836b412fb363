package logging

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

// sensitiveKeyPatterns lists substrings of attribute keys whose values are
// always masked.
var sensitiveKeyPatterns = []string{
	"password",
	"passphrase",
	"secret",
	"private_key",
	"privkey",
	"mnemonic",
}

// privateKeyPattern matches 32-byte hex secrets with or without 0x prefix.
// Addresses (20 bytes) and tx hashes logged under tx_hash are left alone.
var privateKeyPattern = regexp.MustCompile(`\b(0x)?[0-9a-fA-F]{64}\b`)

// RedactingHandler masks secrets before records reach the inner handler.
type RedactingHandler struct {
	inner slog.Handler
}

func NewRedactingHandler(inner slog.Handler) *RedactingHandler {
	if rh, ok := inner.(*RedactingHandler); ok {
		return rh
	}
	return &RedactingHandler{inner: inner}
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, redactString(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(redactAttr(a))
		return true
	})
	return h.inner.Handle(ctx, out)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = redactAttr(a)
	}
	return &RedactingHandler{inner: h.inner.WithAttrs(redacted)}
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{inner: h.inner.WithGroup(name)}
}

func redactAttr(a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(key, pattern) {
			return slog.String(a.Key, "[REDACTED]")
		}
	}

	switch a.Value.Kind() {
	case slog.KindGroup:
		group := a.Value.Group()
		redacted := make([]any, len(group))
		for i, ga := range group {
			redacted[i] = redactAttr(ga)
		}
		return slog.Group(a.Key, redacted...)
	case slog.KindString:
		// Transaction hashes share the private-key shape.
		if key == "tx_hash" {
			return a
		}
		val := a.Value.String()
		if r := redactString(val); r != val {
			return slog.String(a.Key, r)
		}
	}
	return a
}

func redactString(val string) string {
	return privateKeyPattern.ReplaceAllStringFunc(val, func(match string) string {
		return match[:6] + "...[REDACTED]"
	})
}
