package codec

import (
	"testing"

	"github.com/smppsim/smppsim/internal/smpppdu"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := NewServerEnquireLink(7)
	frame := Encode(p)

	got, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if got.GetHeader().SequenceNumber != 7 {
		t.Errorf("decoded sequence_number = %d, want 7", got.GetHeader().SequenceNumber)
	}
	if uint32(got.GetHeader().CommandID) != smpppdu.CommandEnquireLink {
		t.Errorf("decoded command_id = 0x%x, want enquire_link", got.GetHeader().CommandID)
	}
}

func TestDecodeFrameTooShort(t *testing.T) {
	_, err := Decode(make([]byte, 8))
	decErr, ok := err.(*DecodeError)
	if !ok {
		t.Fatalf("expected a *DecodeError, got %T (%v)", err, err)
	}
	if decErr.Kind != KindInvalidLength {
		t.Errorf("Kind = %v, want KindInvalidLength", decErr.Kind)
	}
	if decErr.Status != smpppdu.StatusInvMsgLen {
		t.Errorf("Status = 0x%x, want ESME_RINVMSGLEN", decErr.Status)
	}
}

func TestNewDeliverSMReceiptRoundTrips(t *testing.T) {
	p, err := NewDeliverSM(DeliverSMParams{
		Seq:          1,
		SourceAddr:   "1234",
		DestAddr:     "5678",
		ShortMessage: "id:1 stat:DELIVRD",
		IsReceipt:    true,
	})
	if err != nil {
		t.Fatalf("NewDeliverSM returned error: %v", err)
	}
	frame := Encode(p)
	got, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode of an encoded deliver_sm failed: %v", err)
	}
	if uint32(got.GetHeader().CommandID) != smpppdu.CommandDeliverSM {
		t.Errorf("decoded command_id = 0x%x, want deliver_sm", got.GetHeader().CommandID)
	}
}

func TestNewDeliverSMRejectsInvalidAddress(t *testing.T) {
	_, err := NewDeliverSM(DeliverSMParams{
		Seq:        1,
		SourceAddr: string(make([]byte, 100)),
		DestAddr:   "5678",
	})
	if err == nil {
		t.Errorf("expected an error for an over-length source_addr")
	}
}

func TestGenericNackCarriesStatusAndSeq(t *testing.T) {
	p := GenericNack(99, smpppdu.StatusInvCmdID)
	if p.GetHeader().SequenceNumber != 99 {
		t.Errorf("sequence_number = %d, want 99", p.GetHeader().SequenceNumber)
	}
	if uint32(p.GetHeader().CommandStatus) != smpppdu.StatusInvCmdID {
		t.Errorf("command_status = 0x%x, want ESME_RINVCMDID", p.GetHeader().CommandStatus)
	}
}
