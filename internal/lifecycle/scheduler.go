// Package lifecycle drives submitted messages from Enroute to a terminal
// state on a timer, and builds the delivery receipt that follows (§4.6).
// The scheduling loop borrows the teacher's internal/workers ticker-driven
// run loop, replacing its fixed-interval DB poll with a container/heap
// timer that wakes exactly when the next transition is due.
package lifecycle

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/linxGnu/gosmpp/pdu"

	"github.com/smppsim/smppsim/internal/codec"
	"github.com/smppsim/smppsim/internal/logging"
	"github.com/smppsim/smppsim/internal/metrics"
	"github.com/smppsim/smppsim/internal/queue"
	"github.com/smppsim/smppsim/internal/session"
)

// Config holds the discrete terminal-state distribution and timing bounds
// (§4.6, §6 LIFECYCLE_* env vars). The four percentages need not sum to
// 100; the remainder is split evenly between Expired and Unknown as a
// small residual class the spec calls out separately.
type Config struct {
	MaxTimeEnroute time.Duration

	PercentDelivered     int
	PercentUndeliverable int
	PercentAccepted      int
	PercentRejected      int

	Seed int64 // 0 means seed from the current time
}

// DefaultConfig matches the spec's stated defaults (§4.6): the four
// percentages sum to 100 so the residual Expired/Unknown split never fires
// unless an operator deliberately lowers one of them.
func DefaultConfig() Config {
	return Config{
		MaxTimeEnroute:       5 * time.Second,
		PercentDelivered:     90,
		PercentUndeliverable: 6,
		PercentAccepted:      2,
		PercentRejected:      2,
	}
}

type item struct {
	transitionAt time.Time
	msg          *queue.Message
	target       queue.State
}

type itemHeap []*item

func (h itemHeap) Len() int            { return len(h) }
func (h itemHeap) Less(i, j int) bool  { return h[i].transitionAt.Before(h[j].transitionAt) }
func (h itemHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x interface{}) { *h = append(*h, x.(*item)) }
func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// Scheduler owns the min-heap of pending state transitions and the
// lifecycle RNG. It implements session.Scheduler.
type Scheduler struct {
	inbound  *queue.Inbound
	registry *session.Registry
	metrics  *metrics.Registry

	cfgMu sync.RWMutex
	cfg   Config

	mu   sync.Mutex
	heap itemHeap
	rng  *rand.Rand
	wake chan struct{}
}

// New builds a Scheduler. inbound is mutated in place as messages
// transition; registry is used to route delivery receipts to bound
// receivers, falling back to the registry's pending-receipt hold when
// none are bound.
func New(cfg Config, inbound *queue.Inbound, registry *session.Registry, m *metrics.Registry) *Scheduler {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Scheduler{
		cfg:      cfg,
		inbound:  inbound,
		registry: registry,
		metrics:  m,
		rng:      rand.New(rand.NewSource(seed)),
		wake:     make(chan struct{}, 1),
	}
}

// Schedule enqueues msg for a timed transition to a terminal state,
// honoring a `STATE:XXXXX` directive in the short message if present
// (§4.6), and wakes the run loop if this is now the earliest pending
// transition.
func (s *Scheduler) Schedule(msg *queue.Message) {
	target, forced := directiveState(msg.ShortMessage)
	if !forced {
		target = s.pickTerminalState()
	}

	s.cfgMu.RLock()
	maxTimeEnroute := s.cfg.MaxTimeEnroute
	s.cfgMu.RUnlock()

	delay := time.Duration(s.rng.Int63n(int64(maxTimeEnroute) + 1))
	it := &item{transitionAt: time.Now().Add(delay), msg: msg, target: target}

	s.mu.Lock()
	heap.Push(&s.heap, it)
	isEarliest := s.heap[0] == it
	s.mu.Unlock()

	if isEarliest {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

// directiveState parses a `STATE:XXXXX` directive out of a short message,
// overriding the random terminal-state pick (§4.6). The match is against
// the trimmed short message and is case-insensitive, matching
// `^STATE:(DELIVRD|UNDELIV|ACCEPTD|REJECTD|EXPIRED|UNKNOWN)$`.
func directiveState(shortMessage string) (queue.State, bool) {
	const prefix = "STATE:"
	trimmed := strings.ToUpper(strings.TrimSpace(shortMessage))
	if !strings.HasPrefix(trimmed, prefix) {
		return 0, false
	}
	switch strings.TrimPrefix(trimmed, prefix) {
	case "DELIVRD":
		return queue.Delivered, true
	case "UNDELIV":
		return queue.Undeliverable, true
	case "ACCEPTD":
		return queue.Accepted, true
	case "REJECTD":
		return queue.Rejected, true
	case "EXPIRED":
		return queue.Expired, true
	case "UNKNOWN":
		return queue.Unknown, true
	default:
		return 0, false
	}
}

// pickTerminalState samples the configured discrete distribution. The
// residual between the four named percentages and 100 is split evenly
// between Expired and Unknown.
func (s *Scheduler) pickTerminalState() queue.State {
	s.cfgMu.RLock()
	cfg := s.cfg
	s.cfgMu.RUnlock()

	delivered := cfg.PercentDelivered
	undeliverable := delivered + cfg.PercentUndeliverable
	accepted := undeliverable + cfg.PercentAccepted
	rejected := accepted + cfg.PercentRejected
	residual := 100 - rejected
	if residual < 0 {
		residual = 0
	}
	expired := rejected + residual/2

	roll := s.rng.Intn(100)
	switch {
	case roll < delivered:
		return queue.Delivered
	case roll < undeliverable:
		return queue.Undeliverable
	case roll < accepted:
		return queue.Accepted
	case roll < rejected:
		return queue.Rejected
	case roll < expired:
		return queue.Expired
	default:
		return queue.Unknown
	}
}

// UpdateTunable applies a runtime change to one of the `lifecycle.*`
// whitelisted keys the observability API's POST /api/config accepts
// (§4.9): max_time_enroute_ms, percent_delivered, percent_undeliverable,
// percent_accepted, percent_rejected. It returns an error describing why
// the change was rejected rather than applying a partial update.
func (s *Scheduler) UpdateTunable(key, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("lifecycle.%s: %q is not an integer: %w", key, value, err)
	}

	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()

	switch key {
	case "max_time_enroute_ms":
		if n < 0 {
			return fmt.Errorf("lifecycle.max_time_enroute_ms must be non-negative, got %d", n)
		}
		s.cfg.MaxTimeEnroute = time.Duration(n) * time.Millisecond
	case "percent_delivered":
		if n < 0 || n > 100 {
			return fmt.Errorf("lifecycle.percent_delivered must be 0-100, got %d", n)
		}
		s.cfg.PercentDelivered = n
	case "percent_undeliverable":
		if n < 0 || n > 100 {
			return fmt.Errorf("lifecycle.percent_undeliverable must be 0-100, got %d", n)
		}
		s.cfg.PercentUndeliverable = n
	case "percent_accepted":
		if n < 0 || n > 100 {
			return fmt.Errorf("lifecycle.percent_accepted must be 0-100, got %d", n)
		}
		s.cfg.PercentAccepted = n
	case "percent_rejected":
		if n < 0 || n > 100 {
			return fmt.Errorf("lifecycle.percent_rejected must be 0-100, got %d", n)
		}
		s.cfg.PercentRejected = n
	default:
		return fmt.Errorf("lifecycle: unknown tunable %q", key)
	}
	return nil
}

// Run drives the transition loop until ctx is cancelled, waking exactly
// when the earliest scheduled item is due (or when a fresher item
// preempts the wait) (§4.6, §5).
func (s *Scheduler) Run(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		s.rearm(timer)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
			continue
		case <-timer.C:
			s.drainDue(ctx)
		}
	}
}

func (s *Scheduler) rearm(timer *time.Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.heap) == 0 {
		timer.Reset(time.Hour)
		return
	}
	d := time.Until(s.heap[0].transitionAt)
	if d < 0 {
		d = 0
	}
	timer.Reset(d)
}

func (s *Scheduler) drainDue(ctx context.Context) {
	now := time.Now()
	for {
		s.mu.Lock()
		if len(s.heap) == 0 || s.heap[0].transitionAt.After(now) {
			s.mu.Unlock()
			return
		}
		it := heap.Pop(&s.heap).(*item)
		s.mu.Unlock()
		s.transition(ctx, it)
	}
}

func (s *Scheduler) transition(ctx context.Context, it *item) {
	msg := it.msg
	now := time.Now()

	msg.State = it.target
	msg.FinalTime = now

	logCtx := logging.ContextWithMessageID(ctx, msg.MessageID)
	logCtx = logging.ContextWithTraceID(logCtx, msg.TraceID)
	logCtx = logging.ContextWithSystemID(logCtx, msg.OwningSystemID)

	if it.target == queue.Delivered {
		s.metrics.DeliveredTotal.Inc(1)
	}
	slog.DebugContext(logCtx, "message transitioned to terminal state", slog.String("state", it.target.Code()))

	if !msg.ReceiptRequested() {
		return
	}

	receipt, err := buildReceiptText(msg)
	if err != nil {
		slog.ErrorContext(logCtx, "failed to build delivery receipt text", slog.Any("error", err))
		return
	}

	params := codec.DeliverSMParams{
		SourceAddr:   msg.DestAddr,
		DestAddr:     msg.SourceAddr,
		ShortMessage: receipt,
		IsReceipt:    true,
	}
	build := func(seq uint32) (pdu.PDU, error) {
		params.Seq = seq
		return codec.NewDeliverSM(params)
	}

	if delivered := s.registry.RouteToSystemID(msg.OwningSystemID, build); delivered > 0 {
		s.metrics.ReceiptsSentTotal.Inc(1)
		return
	}
	s.registry.HoldPending(msg.OwningSystemID, build)
}

// buildReceiptText renders the fixed-field delivery receipt body (§4.6):
//
//	id:<id> sub:001 dlvrd:<001|000> submit date:<yymmddhhmm> done date:<yymmddhhmm> stat:<state> err:000 text:<first 20 chars>
func buildReceiptText(msg *queue.Message) (string, error) {
	const dateLayout = "0601021504"
	dlvrd := "000"
	if msg.State == queue.Delivered {
		dlvrd = "001"
	}
	text := msg.ShortMessage
	if len(text) > 20 {
		text = text[:20]
	}
	return fmt.Sprintf(
		"id:%s sub:001 dlvrd:%s submit date:%s done date:%s stat:%s err:000 text:%s",
		msg.MessageID,
		dlvrd,
		msg.SubmitTime.Format(dateLayout),
		msg.FinalTime.Format(dateLayout),
		msg.State.Code(),
		text,
	), nil
}
