package observability

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

// Redactor masks credentials in log messages and attributes.
type Redactor struct {
	patterns []redactPattern
}

type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// defaultPatterns cover the credentials the agent handles. Order matters: project keys
// must be masked before the generic sk- form.
var defaultPatterns = []struct {
	name, expr, replacement string
}{
	{"openai_project_key", `sk-proj-[a-zA-Z0-9\-_]{20,}`, "[REDACTED_OPENAI_PROJECT_KEY]"},
	{"openai_key", `sk-[a-zA-Z0-9]{20,}`, "[REDACTED_OPENAI_KEY]"},
	{"jwt", `eyJ[a-zA-Z0-9\-_]{8,}\.[a-zA-Z0-9\-_]{8,}\.[a-zA-Z0-9\-_]{8,}`, "[REDACTED_JWT]"},
	{"aws_access_key", `AKIA[0-9A-Z]{16}`, "[REDACTED_AWS_KEY]"},
	{"vault_token", `hvs\.[a-zA-Z0-9\-_]{20,}`, "[REDACTED_VAULT_TOKEN]"},
	{"bearer_token", `Bearer\s+[a-zA-Z0-9\-_\.%]+`, "Bearer " + redacted},
	{"dsn_password", `(postgres(?:ql)?|redis|rediss)://([^:/@\s]+):[^@\s]+@`, "$1://$2:" + redacted + "@"},
	// 32-byte hex secrets such as wallet private keys. 20-byte addresses stay readable.
	{"private_key", `\b(0x)?[a-fA-F0-9]{64}\b`, "[REDACTED_PRIVATE_KEY]"},
}

// sensitiveKeys are attribute names whose values are never logged.
var sensitiveKeys = []string{"api_key", "apikey", "password", "secret", "token", "authorization", "credential"}

// NewRedactor creates a redactor with the default patterns.
func NewRedactor() *Redactor {
	r := &Redactor{}
	for _, p := range defaultPatterns {
		r.patterns = append(r.patterns, redactPattern{
			name:        p.name,
			regex:       regexp.MustCompile(p.expr),
			replacement: p.replacement,
		})
	}
	return r
}

// AddPattern registers an extra pattern, applied after the defaults.
func (r *Redactor) AddPattern(name, pattern, replacement string) error {
	regex, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("redaction pattern %s: %w", name, err)
	}
	r.patterns = append(r.patterns, redactPattern{name: name, regex: regex, replacement: replacement})
	return nil
}

// Redact masks every known credential in s.
func (r *Redactor) Redact(s string) string {
	for _, p := range r.patterns {
		s = p.regex.ReplaceAllString(s, p.replacement)
	}
	return s
}

// SensitiveKey reports whether an attribute called key must be hidden entirely.
// Counters such as max_tokens are not secrets.
func SensitiveKey(key string) bool {
	k := strings.ToLower(key)
	if strings.HasSuffix(k, "tokens") {
		return false
	}
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// Attr returns a with its value masked.
func (r *Redactor) Attr(a slog.Attr) slog.Attr {
	if SensitiveKey(a.Key) {
		return slog.String(a.Key, redacted)
	}
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, r.Redact(v.String()))
	case slog.KindGroup:
		group := v.Group()
		out := make([]slog.Attr, len(group))
		for i, ga := range group {
			out[i] = r.Attr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.String(a.Key, r.Redact(err.Error()))
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}

// RedactingHandler masks credentials in every record before passing it on.
type RedactingHandler struct {
	inner    slog.Handler
	redactor *Redactor
}

// NewRedactingHandler wraps inner.
func NewRedactingHandler(inner slog.Handler, redactor *Redactor) *RedactingHandler {
	return &RedactingHandler{inner: inner, redactor: redactor}
}

// Enabled implements slog.Handler.
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *RedactingHandler) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, h.redactor.Redact(rec.Message), rec.PC)
	rec.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redactor.Attr(a))
		return true
	})
	return h.inner.Handle(ctx, out)
}

// WithAttrs implements slog.Handler.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = h.redactor.Attr(a)
	}
	return &RedactingHandler{inner: h.inner.WithAttrs(masked), redactor: h.redactor}
}

// WithGroup implements slog.Handler.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{inner: h.inner.WithGroup(name), redactor: h.redactor}
}

var _ slog.Handler = (*RedactingHandler)(nil)
