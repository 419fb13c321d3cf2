// Package logging supplies the simulator's context-propagating slog
// handler, adapted from the teacher's own internal/logging package to the
// keys this domain actually logs: session id, system_id, message_id, and
// wire-level command/sequence info (§6 LOG_LEVEL, §7).
package logging

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	sessionIDKey  contextKey = "session_id"
	systemIDKey   contextKey = "system_id"
	messageIDKey  contextKey = "message_id"
	remoteAddrKey contextKey = "remote_addr"
	commandIDKey  contextKey = "command_id"
	seqNumberKey  contextKey = "seq_num"
	traceIDKey    contextKey = "trace_id"
)

// ContextHandler wraps another slog.Handler and adds attributes from context.
type ContextHandler struct {
	slog.Handler
}

// NewContextHandler creates a handler that extracts values from context.
func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

// Handle adds context attributes before calling the wrapped handler.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if v, ok := ctx.Value(sessionIDKey).(uint64); ok {
		r.AddAttrs(slog.Uint64("session_id", v))
	}
	if v, ok := ctx.Value(systemIDKey).(string); ok {
		r.AddAttrs(slog.String("system_id", v))
	}
	if v, ok := ctx.Value(messageIDKey).(string); ok {
		r.AddAttrs(slog.String("message_id", v))
	}
	if v, ok := ctx.Value(remoteAddrKey).(string); ok {
		r.AddAttrs(slog.String("remote_addr", v))
	}
	if v, ok := ctx.Value(commandIDKey).(string); ok {
		r.AddAttrs(slog.String("command_id", v))
	}
	if v, ok := ctx.Value(seqNumberKey).(uint32); ok {
		r.AddAttrs(slog.Uint64("seq_num", uint64(v)))
	}
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		r.AddAttrs(slog.String("trace_id", v))
	}
	return h.Handler.Handle(ctx, r)
}

// Helper functions to add values to context.

func ContextWithSessionID(ctx context.Context, id uint64) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

func ContextWithSystemID(ctx context.Context, systemID string) context.Context {
	return context.WithValue(ctx, systemIDKey, systemID)
}

func ContextWithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, messageIDKey, messageID)
}

func ContextWithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, remoteAddrKey, addr)
}

func ContextWithPDUInfo(ctx context.Context, commandID string, seq uint32) context.Context {
	ctx = context.WithValue(ctx, commandIDKey, commandID)
	return context.WithValue(ctx, seqNumberKey, seq)
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}
