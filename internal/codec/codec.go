// Package codec adapts the simulator's wire handling to the external
// gosmpp PDU library (github.com/linxGnu/gosmpp/pdu), the opaque binary
// codec named in the specification: decode(bytes) -> Pdu | Error,
// encode(Pdu) -> bytes, total over every PDU the core constructs.
package codec

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/linxGnu/gosmpp/pdu"

	"github.com/smppsim/smppsim/internal/smpppdu"
)

// Kind classifies a decode failure so the session can pick the right
// GenericNack status (§4.2).
type Kind int

const (
	// KindInvalidLength means the frame's declared length didn't match its
	// actual contents (ESME_RINVMSGLEN).
	KindInvalidLength Kind = iota
	// KindUnknownCommand means the command_id isn't one gosmpp recognizes
	// (ESME_RINVCMDID).
	KindUnknownCommand
	// KindSystem covers any other decode failure (ESME_RSYSERR).
	KindSystem
)

// DecodeError wraps a codec failure with the sequence number to echo (0 if
// the header itself couldn't be trusted) and the status to reply with.
type DecodeError struct {
	Kind   Kind
	Seq    uint32
	Status uint32
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("codec: decode failed (status=0x%x seq=%d): %v", e.Status, e.Seq, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode parses one complete frame (length prefix included, as produced by
// framing.Reader) into a gosmpp PDU. On failure it returns a *DecodeError
// classifying the status the session should reply with.
func Decode(frame []byte) (pdu.PDU, error) {
	if len(frame) < 16 {
		return nil, &DecodeError{Kind: KindInvalidLength, Seq: 0, Status: smpppdu.StatusInvMsgLen, Err: errors.New("frame shorter than header")}
	}

	p, err := pdu.Parse(bytes.NewReader(frame))
	if err != nil {
		seq := peekSequence(frame)
		cmdID := peekCommandID(frame)
		if !knownCommand(cmdID) {
			return nil, &DecodeError{Kind: KindUnknownCommand, Seq: seq, Status: smpppdu.StatusInvCmdID, Err: err}
		}
		return nil, &DecodeError{Kind: KindSystem, Seq: seq, Status: smpppdu.StatusSysErr, Err: err}
	}
	return p, nil
}

// Encode renders p to its wire frame (length prefix included). gosmpp's
// Marshal already writes the full frame, so encode is total: it cannot
// fail for any PDU the core constructs.
func Encode(p pdu.PDU) []byte {
	buf := pdu.NewBuffer(nil)
	p.Marshal(buf)
	return buf.Bytes()
}

func peekSequence(frame []byte) uint32 {
	if len(frame) < 16 {
		return 0
	}
	return beUint32(frame[12:16])
}

func peekCommandID(frame []byte) uint32 {
	if len(frame) < 8 {
		return 0
	}
	return beUint32(frame[4:8])
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func knownCommand(cmdID uint32) bool {
	switch cmdID {
	case smpppdu.CommandBindReceiver, smpppdu.CommandBindTransmitter, smpppdu.CommandBindTransceiver,
		smpppdu.CommandSubmitSM, smpppdu.CommandDeliverSM, smpppdu.CommandUnbind, smpppdu.CommandEnquireLink,
		smpppdu.CommandGenericNack,
		smpppdu.CommandBindReceiverResp, smpppdu.CommandBindTransmitterResp, smpppdu.CommandBindTransceiverResp,
		smpppdu.CommandSubmitSMResp, smpppdu.CommandDeliverSMResp, smpppdu.CommandUnbindResp, smpppdu.CommandEnquireLinkResp:
		return true
	default:
		return false
	}
}
