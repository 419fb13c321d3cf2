package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestContextHandlerAddsAttrs(t *testing.T) {
	var buf bytes.Buffer
	base := slog.NewTextHandler(&buf, nil)
	h := NewContextHandler(base)
	logger := slog.New(h)

	ctx := ContextWithSessionID(context.Background(), 42)
	ctx = ContextWithSystemID(ctx, "client1")
	ctx = ContextWithPDUInfo(ctx, "submit_sm", 7)

	logger.InfoContext(ctx, "submit_sm accepted")

	out := buf.String()
	if !strings.Contains(out, "session_id=42") {
		t.Errorf("expected session_id=42 in output, got %q", out)
	}
	if !strings.Contains(out, "system_id=client1") {
		t.Errorf("expected system_id=client1 in output, got %q", out)
	}
	if !strings.Contains(out, "command_id=submit_sm") {
		t.Errorf("expected command_id=submit_sm in output, got %q", out)
	}
	if !strings.Contains(out, "seq_num=7") {
		t.Errorf("expected seq_num=7 in output, got %q", out)
	}
}

func TestContextWithPDUInfoChainsBothValues(t *testing.T) {
	ctx := ContextWithPDUInfo(context.Background(), "deliver_sm", 5)
	if v, _ := ctx.Value(commandIDKey).(string); v != "deliver_sm" {
		t.Errorf("command_id = %q, want deliver_sm", v)
	}
	if v, _ := ctx.Value(seqNumberKey).(uint32); v != 5 {
		t.Errorf("seq_num = %d, want 5", v)
	}
}

func TestLevelVarSetValidName(t *testing.T) {
	var v LevelVar
	if err := v.Set("debug"); err != nil {
		t.Fatalf("Set(debug) returned error: %v", err)
	}
	if v.Level() != slog.LevelDebug {
		t.Errorf("Level() = %v, want Debug", v.Level())
	}
}

func TestLevelVarSetInvalidName(t *testing.T) {
	var v LevelVar
	if err := v.Set("not-a-level"); err == nil {
		t.Errorf("expected an error for an unrecognized level name")
	}
}

func TestBroadcasterDeliversToSubscribers(t *testing.T) {
	inner := slog.NewTextHandler(new(bytes.Buffer), nil)
	b := NewBroadcaster(inner)
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	r := slog.NewRecord(time.Now(), slog.LevelInfo, "hello", 0)
	if err := b.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}

	select {
	case line := <-ch:
		if !strings.Contains(line, "hello") {
			t.Errorf("broadcast line = %q, want it to contain the message", line)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a broadcast line, got none")
	}
}

func TestBroadcasterUnsubscribeStopsDelivery(t *testing.T) {
	inner := slog.NewTextHandler(new(bytes.Buffer), nil)
	b := NewBroadcaster(inner)
	ch, unsubscribe := b.Subscribe()
	unsubscribe()

	r := slog.NewRecord(time.Now(), slog.LevelInfo, "hello", 0)
	_ = b.Handle(context.Background(), r)

	if _, ok := <-ch; ok {
		t.Errorf("expected the channel to be closed after unsubscribe")
	}
}
