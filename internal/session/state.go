package session

import "github.com/smppsim/smppsim/internal/smpppdu"

// BindState is a Session's position in the bind state machine (§3, §4.3).
type BindState int

const (
	Open BindState = iota
	Bound
	Unbinding
	Closed
)

func (s BindState) String() string {
	switch s {
	case Open:
		return "open"
	case Bound:
		return "bound"
	case Unbinding:
		return "unbinding"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// canSubmit reports whether a session in this bind kind may submit_sm.
func canSubmit(kind smpppdu.BindKind) bool {
	return kind == smpppdu.BindTX || kind == smpppdu.BindTRX
}

// canReceive reports whether a session in this bind kind may be handed a
// server-initiated deliver_sm (receipts or MO).
func canReceive(kind smpppdu.BindKind) bool {
	return kind == smpppdu.BindRX || kind == smpppdu.BindTRX
}
