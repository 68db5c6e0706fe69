package logging

import (
	"context"
	"log/slog"
)

// stampHandler adds the daemon session id to every record and, for records
// logged through the *Context methods, the unit/scan/request fields carried by
// the context. Keys already bound with WithAttrs or present on the record win.
type stampHandler struct {
	next      slog.Handler
	sessionID string
	bound     map[string]struct{}
}

func newStampHandler(next slog.Handler, sessionID string) slog.Handler {
	if next == nil {
		return NoopHandler{}
	}
	return &stampHandler{next: next, sessionID: sessionID}
}

func (h *stampHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *stampHandler) Handle(ctx context.Context, record slog.Record) error {
	present := make(map[string]struct{}, record.NumAttrs())
	record.Attrs(func(a slog.Attr) bool {
		present[a.Key] = struct{}{}
		return true
	})
	missing := func(key string) bool {
		if _, ok := h.bound[key]; ok {
			return false
		}
		_, ok := present[key]
		return !ok
	}
	if h.sessionID != "" && missing(FieldSessionID) {
		record.AddAttrs(slog.String(FieldSessionID, h.sessionID))
	}
	for _, attr := range ContextFields(ctx) {
		if missing(attr.Key) {
			record.AddAttrs(attr)
		}
	}
	return h.next.Handle(ctx, record)
}

func (h *stampHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := make(map[string]struct{}, len(h.bound)+len(attrs))
	for k := range h.bound {
		bound[k] = struct{}{}
	}
	for _, a := range attrs {
		bound[a.Key] = struct{}{}
	}
	return &stampHandler{next: h.next.WithAttrs(attrs), sessionID: h.sessionID, bound: bound}
}

func (h *stampHandler) WithGroup(name string) slog.Handler {
	return &stampHandler{next: h.next.WithGroup(name), sessionID: h.sessionID, bound: h.bound}
}
