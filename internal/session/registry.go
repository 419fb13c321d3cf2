package session

import (
	"strconv"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/linxGnu/gosmpp/pdu"

	"github.com/smppsim/smppsim/internal/smpppdu"
)

// pendingCap bounds the per-account held-receipt list (§4.6).
const pendingCap = 1000

// PDUBuilder constructs a PDU for a specific receiver, given the sequence
// number that receiver's session allocated for it. Routing needs a
// builder rather than a finished PDU because every receiver gets its own
// freshly allocated sequence number (§4.4, §4.7).
type PDUBuilder func(seq uint32) (pdu.PDU, error)

// Registry is the process-wide directory of live sessions, indexed by
// session id and, once bound, by system_id for fan-out (§4.4).
type Registry struct {
	sessions cmap.ConcurrentMap[string, *Session]

	mu      sync.RWMutex
	byOwner map[string]map[uint64]struct{} // system_id -> set of session ids
	pending map[string][]PDUBuilder        // system_id -> held receipts, oldest-evicted
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: cmap.New[*Session](),
		byOwner:  make(map[string]map[uint64]struct{}),
		pending:  make(map[string][]PDUBuilder),
	}
}

func key(id uint64) string { return strconv.FormatUint(id, 10) }

// Insert registers a newly accepted session (pre-bind, state Open).
func (r *Registry) Insert(s *Session) {
	r.sessions.Set(key(s.id), s)
}

// Remove deregisters a session, dropping it from the secondary index too.
func (r *Registry) Remove(id uint64) {
	sess, ok := r.sessions.Get(key(id))
	r.sessions.Remove(key(id))
	if !ok {
		return
	}
	systemID := sess.SystemID()
	if systemID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.byOwner[systemID]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(r.byOwner, systemID)
		}
	}
}

// MarkBound records a successful bind in the secondary index and returns
// any receipts that were held pending this account's next bind (§4.6),
// built with sequence numbers freshly allocated from this session.
func (r *Registry) MarkBound(id uint64, systemID string, kind smpppdu.BindKind) []pdu.PDU {
	sess, ok := r.sessions.Get(key(id))
	if !ok {
		return nil
	}

	r.mu.Lock()
	set, ok := r.byOwner[systemID]
	if !ok {
		set = make(map[uint64]struct{})
		r.byOwner[systemID] = set
	}
	set[id] = struct{}{}

	var builders []PDUBuilder
	if canReceive(kind) {
		builders = r.pending[systemID]
		delete(r.pending, systemID)
	}
	r.mu.Unlock()

	if len(builders) == 0 {
		return nil
	}
	out := make([]pdu.PDU, 0, len(builders))
	for _, build := range builders {
		p, err := build(sess.nextSequence())
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Get returns the live session for id, if any.
func (r *Registry) Get(id uint64) (*Session, bool) {
	return r.sessions.Get(key(id))
}

// Count returns the number of currently tracked sessions (bound or not),
// used by the Server Listener to enforce the soft concurrency cap (§4.8).
func (r *Registry) Count() int {
	return r.sessions.Count()
}

// RouteToSystemID delivers a PDU, freshly built per receiver, to every
// session bound as RX/TRX under systemID. It returns the number of
// sessions the PDU was actually enqueued to (§4.4).
func (r *Registry) RouteToSystemID(systemID string, build PDUBuilder) int {
	r.mu.RLock()
	set := r.byOwner[systemID]
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, id := range ids {
		sess, ok := r.sessions.Get(key(id))
		if !ok || !canReceive(sess.BindKind()) {
			continue
		}
		p, err := build(sess.nextSequence())
		if err != nil {
			continue
		}
		if sess.Enqueue(p) {
			delivered++
		}
	}
	return delivered
}

// HoldPending stores a receipt builder for systemID to be flushed on that
// account's next bind, evicting the oldest held receipt once pendingCap is
// reached (§4.6, §7).
func (r *Registry) HoldPending(systemID string, build PDUBuilder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.pending[systemID]
	if len(list) >= pendingCap {
		list = list[1:]
	}
	r.pending[systemID] = append(list, build)
}

// HasReceiver reports whether systemID currently has at least one
// RX/TRX-bound session.
func (r *Registry) HasReceiver(systemID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.byOwner[systemID]
	if !ok {
		return false
	}
	for id := range set {
		if sess, ok := r.sessions.Get(key(id)); ok && canReceive(sess.BindKind()) {
			return true
		}
	}
	return false
}

// OutboundPending reports the total number of PDUs not yet delivered to a
// client socket: everything still sitting in a live session's outbound
// mailbox, plus every receipt/MO held for an account with no bound
// receiver (§4.9, §6 outbound_pending).
func (r *Registry) OutboundPending() int {
	total := 0
	for item := range r.sessions.IterBuffered() {
		total += item.Val.MailboxLen()
	}
	r.mu.RLock()
	for _, list := range r.pending {
		total += len(list)
	}
	r.mu.RUnlock()
	return total
}

// Snapshot returns a point-in-time list of live sessions for the
// observability API (§4.9).
func (r *Registry) Snapshot() []*Session {
	out := make([]*Session, 0, r.sessions.Count())
	for item := range r.sessions.IterBuffered() {
		out = append(out, item.Val)
	}
	return out
}

// Broadcast delivers build to every currently bound session (used for the
// graceful-shutdown Unbind fan-out, §5).
func (r *Registry) Broadcast(build PDUBuilder) {
	for item := range r.sessions.IterBuffered() {
		sess := item.Val
		if sess.State() != Bound {
			continue
		}
		if p, err := build(sess.nextSequence()); err == nil {
			sess.Enqueue(p)
		}
	}
}
