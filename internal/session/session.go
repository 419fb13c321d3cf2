// Package session implements the per-connection SMPP state machine (§3,
// §4.3) and the process-wide Session Registry that fans PDUs out to bound
// receivers (§4.4).
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/linxGnu/gosmpp/pdu"
	"golang.org/x/time/rate"

	"github.com/smppsim/smppsim/internal/account"
	"github.com/smppsim/smppsim/internal/codec"
	"github.com/smppsim/smppsim/internal/framing"
	"github.com/smppsim/smppsim/internal/logging"
	"github.com/smppsim/smppsim/internal/metrics"
	"github.com/smppsim/smppsim/internal/queue"
	"github.com/smppsim/smppsim/internal/smpppdu"
)

// Scheduler is the subset of the Lifecycle Scheduler a Session needs: just
// enough to hand off a freshly accepted message for timed transitions.
type Scheduler interface {
	Schedule(msg *queue.Message)
}

// Config holds the per-session tunables (§5 timeouts, §4.3 mailbox size).
type Config struct {
	MailboxSize      int
	IdleSoft         time.Duration
	IdleHard         time.Duration
	MaxMissedEnquire int
	ServerSystemID   string

	// SubmitRateLimit and SubmitBurst bound how fast one session may
	// submit_sm before getting ESME_RTHROTTLED (§7). Zero disables limiting.
	SubmitRateLimit rate.Limit
	SubmitBurst     int

	// ShutdownDrain bounds how long a session keeps flushing its outbound
	// mailbox once an unbind begins — client-initiated or the server
	// broadcasting unbind for a graceful shutdown — before it closes the
	// socket regardless of what's still queued (§5 T_shutdown).
	ShutdownDrain time.Duration
}

// DefaultConfig matches the spec's stated defaults (§5).
func DefaultConfig() Config {
	return Config{
		MailboxSize:      1024,
		IdleSoft:         30 * time.Second,
		IdleHard:         90 * time.Second,
		MaxMissedEnquire: 3,
		ServerSystemID:   "smppsim",
		SubmitRateLimit:  200,
		SubmitBurst:      50,
		ShutdownDrain:    5 * time.Second,
	}
}

// Deps bundles the shared collaborators a Session needs to process
// requests (account lookup, the inbound queue, id allocation, counters,
// the scheduler, and its own registry handle for self-deregistration).
type Deps struct {
	Accounts  *account.Store
	Inbound   *queue.Inbound
	IDs       *queue.IDAllocator
	Metrics   *metrics.Registry
	Scheduler Scheduler
	Registry  *Registry
}

// Session is one bound (or binding) ESME connection (§3).
type Session struct {
	id         uint64
	remoteAddr string
	conn       net.Conn
	reader     *framing.Reader
	writer     *framing.Writer

	deps Deps
	cfg  Config

	mu       sync.Mutex
	state    BindState
	bindKind smpppdu.BindKind
	systemID string

	nextSeq       uint32
	connectedAt   time.Time
	lastActivity  time.Time
	missedEnquire int

	mailbox chan pdu.PDU
	closed  chan struct{}
	once    sync.Once

	limiter *rate.Limiter
}

// New constructs a Session for an accepted TCP connection. The caller
// (Server Listener) is responsible for registering it with the Registry.
func New(id uint64, conn net.Conn, deps Deps, cfg Config) *Session {
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = 1024
	}
	if cfg.ShutdownDrain <= 0 {
		cfg.ShutdownDrain = 5 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.SubmitRateLimit > 0 {
		limiter = rate.NewLimiter(cfg.SubmitRateLimit, cfg.SubmitBurst)
	}
	return &Session{
		id:           id,
		remoteAddr:   conn.RemoteAddr().String(),
		conn:         conn,
		reader:       framing.NewReader(conn),
		writer:       framing.NewWriter(conn),
		deps:         deps,
		cfg:          cfg,
		state:        Open,
		nextSeq:      1,
		connectedAt:  time.Now(),
		lastActivity: time.Now(),
		mailbox:      make(chan pdu.PDU, cfg.MailboxSize),
		closed:       make(chan struct{}),
		limiter:      limiter,
	}
}

func (s *Session) ID() uint64            { return s.id }
func (s *Session) RemoteAddr() string    { return s.remoteAddr }

func (s *Session) SystemID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.systemID
}

func (s *Session) BindKind() smpppdu.BindKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bindKind
}

func (s *Session) State() BindState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Age reports how long the connection has been open (§6 age_s).
func (s *Session) Age() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.connectedAt)
}

// IdleFor reports how long it's been since the last client activity (§5
// T_idle_soft/T_idle_hard, §6 last_activity_s).
func (s *Session) IdleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity)
}

// MailboxLen reports how many PDUs are currently queued in this session's
// outbound mailbox, for the observability snapshot's outbound_pending
// total (§6).
func (s *Session) MailboxLen() int {
	return len(s.mailbox)
}

// Enqueue attempts a non-blocking send into the outbound mailbox. If full,
// the oldest queued PDU is dropped to make room (§4.3, §7) — delivery is
// best-effort. Returns false if the session is already closed.
func (s *Session) Enqueue(p pdu.PDU) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	for {
		select {
		case s.mailbox <- p:
			return true
		default:
		}
		select {
		case <-s.mailbox:
			s.deps.Metrics.DroppedTotal.Inc(1)
		default:
			return false
		}
	}
}

// logContext builds a logging context carrying this session's identity, so
// the ContextHandler can attach session_id/remote_addr/system_id to every
// record without each call site repeating them as flat attrs.
func (s *Session) logContext() context.Context {
	ctx := logging.ContextWithSessionID(context.Background(), s.id)
	ctx = logging.ContextWithRemoteAddr(ctx, s.remoteAddr)
	if systemID := s.SystemID(); systemID != "" {
		ctx = logging.ContextWithSystemID(ctx, systemID)
	}
	return ctx
}

func (s *Session) nextSequence() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.nextSeq
	s.nextSeq++
	if s.nextSeq == 0 || s.nextSeq >= 1<<31 {
		s.nextSeq = 1
	}
	return seq
}

// Run drives the session until the connection closes, an unrecoverable
// framing error occurs, or ctx is cancelled. It multiplexes three wake
// sources: incoming frames, outbound mailbox, and the idle timer (§4.3).
func (s *Session) Run(ctx context.Context) error {
	defer s.teardown()

	frames := make(chan []byte)
	readErrs := make(chan error, 1)
	go s.readLoop(frames, readErrs)

	ticker := time.NewTicker(s.cfg.IdleSoft)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.beginShutdown("context cancelled")
			return ctx.Err()

		case frame, ok := <-frames:
			if !ok {
				continue
			}
			s.touch()
			s.handleFrame(frame)
			if s.State() == Closed {
				return nil
			}

		case err := <-readErrs:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err

		case out := <-s.mailbox:
			if err := s.writeFrame(out); err != nil {
				return err
			}

		case <-ticker.C:
			if s.checkIdle() {
				return nil
			}
		}
	}
}

func (s *Session) readLoop(frames chan<- []byte, errs chan<- error) {
	for {
		frame, err := s.reader.ReadFrame()
		if err != nil {
			errs <- err
			return
		}
		select {
		case frames <- frame:
		case <-s.closed:
			return
		}
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.missedEnquire = 0
	s.mu.Unlock()
}

// checkIdle sends an EnquireLink probe past T_idle_soft and reports
// whether the session should now be closed (T_idle_hard or too many
// missed probes) (§5).
func (s *Session) checkIdle() (shouldClose bool) {
	s.mu.Lock()
	idleFor := time.Since(s.lastActivity)
	s.mu.Unlock()

	if idleFor < s.cfg.IdleSoft {
		return false
	}
	if idleFor >= s.cfg.IdleHard {
		slog.InfoContext(s.logContext(), "session idle timeout, closing")
		return true
	}

	s.mu.Lock()
	s.missedEnquire++
	missed := s.missedEnquire
	s.mu.Unlock()

	if missed > s.cfg.MaxMissedEnquire {
		slog.InfoContext(s.logContext(), "session missed too many enquire_link probes, closing")
		return true
	}

	probe := codec.NewServerEnquireLink(s.nextSequence())
	_ = s.writeFrame(probe)
	return false
}

func (s *Session) writeFrame(p pdu.PDU) error {
	return s.writer.WriteFrame(codec.Encode(p))
}

// handleFrame decodes one frame and dispatches it through the bind state
// machine (§4.3's table).
func (s *Session) handleFrame(frame []byte) {
	p, err := codec.Decode(frame)
	if err != nil {
		var de *codec.DecodeError
		if errors.As(err, &de) {
			_ = s.writeFrame(codec.GenericNack(de.Seq, de.Status))
			return
		}
		_ = s.writeFrame(codec.GenericNack(0, smpppdu.StatusSysErr))
		return
	}

	switch req := p.(type) {
	case *pdu.BindRequest:
		switch req.BindingType {
		case pdu.Transmitter:
			s.handleBind(req, smpppdu.BindTX, uint32(req.GetSequenceNumber()))
		case pdu.Receiver:
			s.handleBind(req, smpppdu.BindRX, uint32(req.GetSequenceNumber()))
		case pdu.Transceiver:
			s.handleBind(req, smpppdu.BindTRX, uint32(req.GetSequenceNumber()))
		}
	case *pdu.GenericNack:
		// Passively accepted in any state; no action required.
	default:
		s.handleBoundRequest(p)
	}
}

func (s *Session) handleBind(req pdu.PDU, kind smpppdu.BindKind, seq uint32) {
	if s.State() != Open {
		_ = s.writeFrame(codec.GenericNack(seq, smpppdu.StatusInvBndSts))
		s.close("bind on already-bound session")
		return
	}

	systemID, password, ok := extractBindCredentials(req)
	if !ok {
		resp, _ := codec.BindResponse(req, smpppdu.StatusBindFailed, s.cfg.ServerSystemID)
		_ = s.writeFrame(resp)
		s.close("malformed bind credentials")
		return
	}

	acct, found := s.deps.Accounts.Lookup(systemID)
	if !found || !acct.CheckPassword(password) || !acct.Allows(kind) {
		resp, _ := codec.BindResponse(req, smpppdu.StatusBindFailed, s.cfg.ServerSystemID)
		_ = s.writeFrame(resp)
		s.close("bind auth failed")
		return
	}

	s.mu.Lock()
	s.state = Bound
	s.bindKind = kind
	s.systemID = systemID
	s.mu.Unlock()

	resp, err := codec.BindResponse(req, smpppdu.StatusOK, s.cfg.ServerSystemID)
	if err != nil {
		slog.ErrorContext(s.logContext(), "failed to build bind response", slog.Any("error", err))
		s.close("internal bind error")
		return
	}
	_ = s.writeFrame(resp)

	pending := s.deps.Registry.MarkBound(s.id, systemID, kind)
	for _, receipt := range pending {
		s.Enqueue(receipt)
	}
	slog.InfoContext(s.logContext(), "session bound", slog.String("kind", kind.String()))
}

func (s *Session) handleBoundRequest(p pdu.PDU) {
	if s.State() != Bound {
		seq := uint32(p.GetSequenceNumber())
		_ = s.writeFrame(codec.GenericNack(seq, smpppdu.StatusInvBndSts))
		s.close("non-bind request before bind")
		return
	}

	switch req := p.(type) {
	case *pdu.SubmitSM:
		s.handleSubmitSM(req)
	case *pdu.EnquireLink:
		_ = s.writeFrame(codec.EnquireLinkResponse(req))
	case *pdu.Unbind:
		_ = s.writeFrame(codec.UnbindResponse(req))
		s.beginShutdown("client unbind")
	case *pdu.DeliverSMResp:
		// Acknowledges a server-initiated deliver_sm; nothing to do.
	default:
		_ = s.writeFrame(codec.GenericNack(uint32(p.GetSequenceNumber()), smpppdu.StatusInvCmdID))
	}
}

func (s *Session) handleSubmitSM(req *pdu.SubmitSM) {
	kind := s.BindKind()
	if !canSubmit(kind) {
		resp := codec.SubmitSMResponse(req, smpppdu.StatusInvBndSts, "")
		_ = s.writeFrame(resp)
		return
	}

	if s.limiter != nil && !s.limiter.Allow() {
		s.deps.Metrics.ThrottledTotal.Inc(1)
		resp := codec.SubmitSMResponse(req, smpppdu.StatusThrottled, "")
		_ = s.writeFrame(resp)
		return
	}

	shortMessage, err := req.Message.GetMessage()
	if err != nil {
		resp := codec.SubmitSMResponse(req, smpppdu.StatusInvMsgLen, "")
		_ = s.writeFrame(resp)
		return
	}

	id := s.deps.IDs.Next()
	msg := &queue.Message{
		MessageID:          id,
		SourceAddr:         req.SourceAddr.Address(),
		DestAddr:           req.DestAddr.Address(),
		ShortMessage:       shortMessage,
		SubmitTime:         time.Now(),
		State:              queue.Enroute,
		RegisteredDelivery: req.RegisteredDelivery,
		OwningSystemID:     s.SystemID(),
		TraceID:            uuid.NewString(),
	}

	if evicted := s.deps.Inbound.Push(msg); evicted != nil {
		s.deps.Metrics.EvictedTotal.Inc(1)
	}
	s.deps.Metrics.MarkSubmitted()
	s.deps.Scheduler.Schedule(msg)
	logCtx := logging.ContextWithMessageID(s.logContext(), id)
	logCtx = logging.ContextWithTraceID(logCtx, msg.TraceID)
	logCtx = logging.ContextWithPDUInfo(logCtx, "submit_sm", uint32(req.GetSequenceNumber()))
	slog.DebugContext(logCtx, "submit_sm accepted")

	resp := codec.SubmitSMResponse(req, smpppdu.StatusOK, id)
	_ = s.writeFrame(resp)
}

// beginShutdown marks the session as unbinding, drains whatever is still
// queued in its outbound mailbox (bounded by ShutdownDrain), and then
// closes. Both the client-initiated unbind path and the server's
// broadcast-unbind-for-graceful-shutdown path (server.Listener.shutdown)
// go through here so neither can drop a queued PDU by racing context
// cancellation against the mailbox write (§5).
func (s *Session) beginShutdown(reason string) {
	s.mu.Lock()
	if s.state != Closed {
		s.state = Unbinding
	}
	s.mu.Unlock()

	s.drainMailbox(s.cfg.ShutdownDrain)
	s.close(reason)
}

// drainMailbox flushes s.mailbox for up to timeout, writing each queued PDU
// out before giving up. A short idle window between arrivals lets a
// near-concurrent enqueue (e.g. the listener's broadcast unbind, sent right
// as shutdown begins) still land and get written instead of being silently
// dropped when the connection closes.
func (s *Session) drainMailbox(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	idle := time.NewTimer(50 * time.Millisecond)
	defer idle.Stop()

	for {
		select {
		case out, ok := <-s.mailbox:
			if !ok {
				return
			}
			_ = s.writeFrame(out)
			idle.Reset(50 * time.Millisecond)
		case <-idle.C:
			return
		}
		if time.Now().After(deadline) {
			return
		}
	}
}

func (s *Session) close(reason string) {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return
	}
	s.state = Closed
	s.mu.Unlock()

	slog.InfoContext(s.logContext(), "closing session", slog.String("reason", reason))
	s.once.Do(func() { close(s.closed) })
}

func (s *Session) teardown() {
	s.close("connection loop exited")
	_ = s.conn.Close()
	s.deps.Registry.Remove(s.id)
}

// extractBindCredentials pulls system_id/password out of any of the three
// bind request types.
func extractBindCredentials(req pdu.PDU) (systemID, password string, ok bool) {
	switch b := req.(type) {
	case *pdu.BindRequest:
		return b.SystemID, b.Password, true
	default:
		return "", "", false
	}
}
