package logging

import (
	"context"
	"log/slog"
	"os"
	"time"
)

type contextKey string

const (
	SMSIDKey     contextKey = "sms_id"
	MessageIDKey contextKey = "message_id"
	BulkIDKey    contextKey = "bulk_id"
	JobIDKey     contextKey = "job_id"
)

// MultiHandler sends log records to multiple handlers.
type MultiHandler struct {
	handlers []slog.Handler
}

func (m *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if err := h.Handle(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newHandlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		newHandlers[i] = h.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: newHandlers}
}

func (m *MultiHandler) WithGroup(name string) slog.Handler {
	newHandlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		newHandlers[i] = h.WithGroup(name)
	}
	return &MultiHandler{handlers: newHandlers}
}

func Init() {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(a.Key, t.Format(time.RFC3339))
				}
			}
			return a
		},
	}

	// Stdout: Text format
	stdoutHandler := slog.NewTextHandler(os.Stdout, opts)

	// File: JSON format
	logFile, err := os.OpenFile("smsgate.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		slog.Error("failed to open log file", slog.Any("error", err))
		slog.SetDefault(slog.New(stdoutHandler))
		return
	}

	jsonHandler := slog.NewJSONHandler(logFile, opts)

	logger := slog.New(&MultiHandler{
		handlers: []slog.Handler{stdoutHandler, jsonHandler},
	})
	slog.SetDefault(logger)
}

func FromContext(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if val, ok := ctx.Value(SMSIDKey).(string); ok {
		l = l.With("sms_id", val)
	}
	if val, ok := ctx.Value(MessageIDKey).(string); ok {
		l = l.With("message_id", val)
	}
	if val, ok := ctx.Value(BulkIDKey).(string); ok {
		l = l.With("bulk_id", val)
	}
	if val, ok := ctx.Value(JobIDKey).(string); ok {
		l = l.With("job_id", val)
	}
	return l
}

func WithSMSID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SMSIDKey, id)
}

func WithMessageID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, MessageIDKey, id)
}

func WithBulkID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, BulkIDKey, id)
}

func WithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, JobIDKey, id)
}
