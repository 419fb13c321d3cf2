package session

import (
	"net"
	"testing"

	"github.com/linxGnu/gosmpp/pdu"

	"github.com/smppsim/smppsim/internal/codec"
	"github.com/smppsim/smppsim/internal/metrics"
	"github.com/smppsim/smppsim/internal/smpppdu"
)

func newTestSession(t *testing.T, id uint64) *Session {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	sess := New(id, server, Deps{Metrics: metrics.New()}, DefaultConfig())
	return sess
}

func bindAs(sess *Session, systemID string, kind smpppdu.BindKind) {
	sess.mu.Lock()
	sess.state = Bound
	sess.systemID = systemID
	sess.bindKind = kind
	sess.mu.Unlock()
}

func echoBuild(seq uint32) (pdu.PDU, error) {
	return codec.NewServerEnquireLink(seq), nil
}

func TestRegistryInsertGetRemove(t *testing.T) {
	r := NewRegistry()
	sess := newTestSession(t, 1)
	r.Insert(sess)

	got, ok := r.Get(1)
	if !ok || got != sess {
		t.Fatalf("Get(1) = %v, %v; want the inserted session", got, ok)
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}

	r.Remove(1)
	if _, ok := r.Get(1); ok {
		t.Errorf("expected session 1 to be gone after Remove")
	}
	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0 after Remove", r.Count())
	}
}

func TestRouteToSystemIDDeliversToRXAndTRXOnly(t *testing.T) {
	r := NewRegistry()
	rx := newTestSession(t, 1)
	tx := newTestSession(t, 2)
	trx := newTestSession(t, 3)
	r.Insert(rx)
	r.Insert(tx)
	r.Insert(trx)

	bindAs(rx, "client", smpppdu.BindRX)
	bindAs(tx, "client", smpppdu.BindTX)
	bindAs(trx, "client", smpppdu.BindTRX)
	r.MarkBound(1, "client", smpppdu.BindRX)
	r.MarkBound(2, "client", smpppdu.BindTX)
	r.MarkBound(3, "client", smpppdu.BindTRX)

	delivered := r.RouteToSystemID("client", echoBuild)
	if delivered != 2 {
		t.Errorf("delivered = %d, want 2 (RX and TRX, not TX)", delivered)
	}
}

func TestRouteToSystemIDNoReceiverReturnsZero(t *testing.T) {
	r := NewRegistry()
	delivered := r.RouteToSystemID("nobody", echoBuild)
	if delivered != 0 {
		t.Errorf("delivered = %d, want 0 for an unknown system_id", delivered)
	}
}

func TestHasReceiver(t *testing.T) {
	r := NewRegistry()
	tx := newTestSession(t, 1)
	r.Insert(tx)
	bindAs(tx, "client", smpppdu.BindTX)
	r.MarkBound(1, "client", smpppdu.BindTX)

	if r.HasReceiver("client") {
		t.Errorf("a TX-only bind should not count as a receiver")
	}

	rx := newTestSession(t, 2)
	r.Insert(rx)
	bindAs(rx, "client", smpppdu.BindRX)
	r.MarkBound(2, "client", smpppdu.BindRX)

	if !r.HasReceiver("client") {
		t.Errorf("expected client to have a receiver once an RX session is bound")
	}
}

func TestHoldPendingFlushesOnMarkBound(t *testing.T) {
	r := NewRegistry()
	r.HoldPending("client", echoBuild)
	r.HoldPending("client", echoBuild)

	rx := newTestSession(t, 1)
	r.Insert(rx)
	bindAs(rx, "client", smpppdu.BindRX)

	flushed := r.MarkBound(1, "client", smpppdu.BindRX)
	if len(flushed) != 2 {
		t.Fatalf("flushed = %d PDUs, want 2", len(flushed))
	}

	// A second bind should see no more pending receipts.
	again := r.MarkBound(1, "client", smpppdu.BindRX)
	if len(again) != 0 {
		t.Errorf("expected no pending receipts left after the first flush, got %d", len(again))
	}
}

func TestHoldPendingEvictsOldestAtCap(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < pendingCap+10; i++ {
		r.HoldPending("client", echoBuild)
	}
	if got := len(r.pending["client"]); got != pendingCap {
		t.Errorf("pending list length = %d, want capped at %d", got, pendingCap)
	}
}

func TestBroadcastOnlyReachesBoundSessions(t *testing.T) {
	r := NewRegistry()
	open := newTestSession(t, 1)
	bound := newTestSession(t, 2)
	r.Insert(open)
	r.Insert(bound)
	bindAs(bound, "client", smpppdu.BindTRX)

	r.Broadcast(echoBuild)

	select {
	case <-open.mailbox:
		t.Errorf("an un-bound session should not receive a broadcast PDU")
	default:
	}
	select {
	case <-bound.mailbox:
	default:
		t.Errorf("expected the bound session to receive the broadcast PDU")
	}
}

func TestRemoveClearsSecondaryIndex(t *testing.T) {
	r := NewRegistry()
	rx := newTestSession(t, 1)
	r.Insert(rx)
	bindAs(rx, "client", smpppdu.BindRX)
	r.MarkBound(1, "client", smpppdu.BindRX)

	r.Remove(1)

	if r.HasReceiver("client") {
		t.Errorf("expected client to have no receiver after its only session was removed")
	}
}
