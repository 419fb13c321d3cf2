// Package queue implements the bounded inbound submission queue and the
// Message value type it retains (§3 Message, §4.5 Message Queues).
package queue

import (
	"strconv"
	"sync/atomic"
	"time"
)

// State is a Message's position in its lifecycle (§3).
type State int

const (
	Enroute State = iota
	Delivered
	Undeliverable
	Accepted
	Rejected
	Expired
	Unknown
)

// Code renders the 7-character SMPP delivery-receipt status code (§4.6).
func (s State) Code() string {
	switch s {
	case Delivered:
		return "DELIVRD"
	case Undeliverable:
		return "UNDELIV"
	case Accepted:
		return "ACCEPTD"
	case Rejected:
		return "REJECTD"
	case Expired:
		return "EXPIRED"
	case Unknown:
		return "UNKNOWN"
	default:
		return "ENROUTE"
	}
}

func (s State) IsFinal() bool { return s != Enroute }

// Message is a submitted short message tracked from submit_sm through its
// terminal state (§3). It is mutated only by the Lifecycle Scheduler.
type Message struct {
	MessageID          string
	SourceAddr         string
	DestAddr           string
	ShortMessage       string
	SubmitTime         time.Time
	State              State
	FinalTime          time.Time
	RegisteredDelivery byte
	OwningSystemID     string
	TraceID            string // uuid correlation id, log-only
}

// ReceiptRequested reports whether RegisteredDelivery asked for a receipt
// given the message's final state (§4.6, registered_delivery bits).
// Bit 0 set requests a receipt on any terminal state; bit 1 set requests a
// receipt only on failure (anything but Delivered).
func (m *Message) ReceiptRequested() bool {
	if !m.State.IsFinal() {
		return false
	}
	all := m.RegisteredDelivery&0x01 != 0
	failureOnly := m.RegisteredDelivery&0x02 != 0
	switch {
	case all:
		return true
	case failureOnly:
		return m.State != Delivered
	default:
		return false
	}
}

// IDAllocator hands out monotonically increasing decimal message ids,
// unique for the process lifetime (§4.5).
type IDAllocator struct {
	next atomic.Uint64
}

// NewIDAllocator seeds the allocator at base, defaulting to the epoch
// seconds at construction time when base is 0 (§4.5).
func NewIDAllocator(base uint64) *IDAllocator {
	if base == 0 {
		base = uint64(time.Now().Unix())
	}
	a := &IDAllocator{}
	a.next.Store(base)
	return a
}

// Next returns the next message id as a decimal string.
func (a *IDAllocator) Next() string {
	id := a.next.Add(1)
	return strconv.FormatUint(id, 10)
}
