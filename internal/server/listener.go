// Package server implements the Server Listener (§4.8): the TCP accept
// loop that turns inbound connections into Sessions, enforces the
// concurrent-session cap, and drives graceful shutdown. Its accept-loop
// shape is grounded on the teacher's raw smppserver.Server.ListenAndServe,
// generalized to hand connections to a session.Session instead of an
// inline per-PDU switch, and supervised with golang.org/x/sync/errgroup
// instead of a bare sync.WaitGroup.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/linxGnu/gosmpp/pdu"
	"golang.org/x/sync/errgroup"

	"github.com/smppsim/smppsim/internal/codec"
	"github.com/smppsim/smppsim/internal/logging"
	"github.com/smppsim/smppsim/internal/metrics"
	"github.com/smppsim/smppsim/internal/session"
	"github.com/smppsim/smppsim/internal/smpppdu"
)

// Config holds the listener's address and admission policy (§5, §6
// SMPP_PORT).
type Config struct {
	Addr          string
	MaxSessions   int
	SessionConfig session.Config
}

// DefaultConfig matches the spec's stated defaults (§5).
func DefaultConfig() Config {
	return Config{
		Addr:          ":2775",
		MaxSessions:   1024,
		SessionConfig: session.DefaultConfig(),
	}
}

// Listener accepts SMPP connections and supervises their Sessions.
type Listener struct {
	cfg      Config
	deps     session.Deps
	registry *session.Registry
	metrics  *metrics.Registry

	nextID   atomic.Uint64
	listener net.Listener
}

// New builds a Listener. deps.Registry must be the same *session.Registry
// passed as registry; it is also threaded through here so the listener can
// enforce the session cap without going through a Session first.
func New(cfg Config, deps session.Deps, registry *session.Registry, m *metrics.Registry) *Listener {
	return &Listener{cfg: cfg, deps: deps, registry: registry, metrics: m}
}

// Run binds the listening socket and accepts connections until ctx is
// cancelled, at which point it stops accepting, broadcasts Unbind to every
// bound session, and returns once the listener socket is closed.
func (l *Listener) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.cfg.Addr)
	if err != nil {
		return err
	}
	l.listener = ln
	slog.Info("smpp listener started", slog.String("addr", l.cfg.Addr))

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		<-ctx.Done()
		l.shutdown()
		return nil
	})

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return group.Wait()
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return group.Wait()
			}
			slog.Error("accept failed", slog.Any("error", err))
			time.Sleep(100 * time.Millisecond)
			continue
		}

		if l.registry.Count() >= l.cfg.MaxSessions {
			l.rejectOverCap(conn)
			continue
		}

		id := l.nextID.Add(1)
		sess := session.New(id, conn, l.deps, l.cfg.SessionConfig)
		l.registry.Insert(sess)

		group.Go(func() error {
			logCtx := logging.ContextWithSessionID(gctx, id)
			logCtx = logging.ContextWithRemoteAddr(logCtx, sess.RemoteAddr())
			if err := sess.Run(gctx); err != nil {
				slog.DebugContext(logCtx, "session exited", slog.Any("error", err))
			}
			return nil
		})
	}
}

// rejectOverCap best-effort notifies a connection it's over the soft cap
// with a GenericNack carrying ESME_RTHROTTLED, then closes it (§4.8, §7).
func (l *Listener) rejectOverCap(conn net.Conn) {
	l.metrics.ThrottledTotal.Inc(1)
	nack := codec.GenericNack(0, smpppdu.StatusThrottled)
	_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, _ = conn.Write(codec.Encode(nack))
	_ = conn.Close()
	logCtx := logging.ContextWithRemoteAddr(context.Background(), conn.RemoteAddr().String())
	slog.WarnContext(logCtx, "rejected connection over session cap")
}

// shutdown broadcasts Unbind to every bound session and closes the
// listening socket so Accept unblocks (§5).
func (l *Listener) shutdown() {
	slog.Info("smpp listener shutting down, broadcasting unbind")
	l.registry.Broadcast(func(seq uint32) (pdu.PDU, error) {
		return codec.NewServerUnbind(seq), nil
	})
	if l.listener != nil {
		_ = l.listener.Close()
	}
}
