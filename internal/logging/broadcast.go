package logging

import (
	"context"
	"log/slog"
	"sync"
)

// subscriberBuffer bounds how many lines a slow SSE client can lag by;
// once its buffer is full, further lines are dropped for it until it
// catches up.
const subscriberBuffer = 256

// Broadcaster is a slog.Handler that renders every record as a one-line
// summary of its own (time, level, message, record attrs) and tees it out
// to any number of live subscribers before passing the record on to the
// inner handler. It backs
// the observability API's GET /api/logs/stream endpoint (§4.9, §6).
type Broadcaster struct {
	inner slog.Handler
	attrs []slog.Attr

	mu   sync.Mutex
	subs map[chan string]struct{}
}

// NewBroadcaster wraps inner, which still receives every record
// unconditionally; Broadcaster only adds a side channel for subscribers.
func NewBroadcaster(inner slog.Handler) *Broadcaster {
	return &Broadcaster{inner: inner, subs: make(map[chan string]struct{})}
}

func (b *Broadcaster) Enabled(ctx context.Context, level slog.Level) bool {
	return b.inner.Enabled(ctx, level)
}

func (b *Broadcaster) Handle(ctx context.Context, r slog.Record) error {
	line := formatLine(r)
	b.mu.Lock()
	for ch := range b.subs {
		select {
		case ch <- line:
		default:
			// Slow subscriber; drop this line for it rather than block logging.
		}
	}
	b.mu.Unlock()
	return b.inner.Handle(ctx, r)
}

func (b *Broadcaster) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Broadcaster{inner: b.inner.WithAttrs(attrs), subs: b.subs, attrs: append(b.attrs, attrs...)}
}

func (b *Broadcaster) WithGroup(name string) slog.Handler {
	return &Broadcaster{inner: b.inner.WithGroup(name), subs: b.subs, attrs: b.attrs}
}

// Subscribe registers a new SSE listener and returns a channel of
// pre-formatted log lines plus an unsubscribe function.
func (b *Broadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
		close(ch)
	}
	return ch, unsubscribe
}

func formatLine(r slog.Record) string {
	attrs := ""
	r.Attrs(func(a slog.Attr) bool {
		attrs += " " + a.String()
		return true
	})
	return r.Time.Format("15:04:05.000") + " " + r.Level.String() + " " + r.Message + attrs
}
