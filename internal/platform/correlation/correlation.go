// Package correlation threads a per-request ID through context so log lines
// from one attach, lifecycle call, or feed dispatch can be grouped. The ID is
// attached by the HTTP middleware and surfaces automatically on every slog
// call that passes its context along.
package correlation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
)

const (
	idBytes = 4
	attrKey = "correlation_id"
)

type ctxKey struct{}

// NewID returns a short random hex ID, unique enough to grep one request's
// log lines apart.
func NewID() string {
	b := make([]byte, idBytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// WithID stores id on the context.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext reads the ID back; ok is false when none was set.
func FromContext(ctx context.Context) (id string, ok bool) {
	id, ok = ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// Handler decorates a slog.Handler so records whose context carries an ID
// gain a correlation_id attribute. All other behavior is delegated.
type Handler struct {
	next slog.Handler
}

func NewHandler(next slog.Handler) *Handler {
	return &Handler{next: next}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, record slog.Record) error {
	if id, ok := FromContext(ctx); ok {
		record.AddAttrs(slog.String(attrKey, id))
	}
	if err := h.next.Handle(ctx, record); err != nil {
		return fmt.Errorf("failed to handle log record: %w", err)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{next: h.next.WithAttrs(attrs)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{next: h.next.WithGroup(name)}
}
