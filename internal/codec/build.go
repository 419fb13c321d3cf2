package codec

import (
	"fmt"

	"github.com/linxGnu/gosmpp/data"
	"github.com/linxGnu/gosmpp/pdu"

	"github.com/smppsim/smppsim/internal/smpppdu"
)

// setHeader stamps the command_status and sequence_number on a PDU built
// from scratch (server-initiated EnquireLink, DeliverSM, GenericNack).
func setHeader(h *pdu.Header, status, seq uint32) {
	h.CommandStatus = data.CommandStatusType(status)
	h.SequenceNumber = int32(seq)
}

// GenericNack builds a GenericNack for a malformed or rejected request,
// echoing seq when the sequence number could be trusted (0 otherwise).
func GenericNack(seq, status uint32) pdu.PDU {
	p := pdu.NewGenericNack().(*pdu.GenericNack)
	setHeader(&p.Header, status, seq)
	return p
}

// BindResponse builds the BindResp matching req's bind command, carrying
// status and (on success) the simulator's own system_id.
func BindResponse(req pdu.PDU, status uint32, serverSystemID string) (pdu.PDU, error) {
	if !req.CanResponse() {
		return nil, fmt.Errorf("codec: %T is not a bind request", req)
	}
	resp, ok := req.GetResponse().(*pdu.BindResp)
	if !ok {
		return nil, fmt.Errorf("codec: %T is not a bind request", req)
	}
	resp.CommandStatus = data.CommandStatusType(status)
	resp.SystemID = serverSystemID
	return resp, nil
}

// SubmitSMResponse builds the SubmitSMResp for an accepted or rejected
// submit_sm, carrying the allocated message_id on success.
func SubmitSMResponse(req *pdu.SubmitSM, status uint32, messageID string) pdu.PDU {
	resp := req.GetResponse().(*pdu.SubmitSMResp)
	resp.CommandStatus = data.CommandStatusType(status)
	if status == smpppdu.StatusOK {
		resp.MessageID = messageID
	}
	return resp
}

// UnbindResponse acknowledges an unbind request.
func UnbindResponse(req *pdu.Unbind) pdu.PDU {
	resp := req.GetResponse().(*pdu.UnbindResp)
	resp.CommandStatus = data.CommandStatusType(smpppdu.StatusOK)
	return resp
}

// EnquireLinkResponse acknowledges a client enquire_link.
func EnquireLinkResponse(req *pdu.EnquireLink) pdu.PDU {
	resp := req.GetResponse().(*pdu.EnquireLinkResp)
	resp.CommandStatus = data.CommandStatusType(smpppdu.StatusOK)
	return resp
}

// NewServerEnquireLink builds a server-initiated idle probe.
func NewServerEnquireLink(seq uint32) pdu.PDU {
	p := pdu.NewEnquireLink().(*pdu.EnquireLink)
	setHeader(&p.Header, smpppdu.StatusOK, seq)
	return p
}

// NewServerUnbind builds a server-initiated unbind, sent during graceful
// shutdown fan-out.
func NewServerUnbind(seq uint32) pdu.PDU {
	p := pdu.NewUnbind().(*pdu.Unbind)
	setHeader(&p.Header, smpppdu.StatusOK, seq)
	return p
}

// DeliverSMParams describes a server-initiated deliver_sm: either a
// delivery receipt (IsReceipt=true, EsmClass carries the receipt bit) or
// an injected MO message.
type DeliverSMParams struct {
	Seq                uint32
	SourceAddr         string
	DestAddr           string
	ShortMessage       string
	IsReceipt          bool
	RegisteredDelivery byte
}

// mcDeliveryReceipt is esm_class bit 2 (MC_DELIVERY_RECEIPT, value 0x04).
const mcDeliveryReceipt byte = 0x04

// NewDeliverSM builds a deliver_sm PDU: a delivery receipt when
// params.IsReceipt is set, otherwise a plain MO message.
func NewDeliverSM(params DeliverSMParams) (pdu.PDU, error) {
	p := pdu.NewDeliverSM().(*pdu.DeliverSM)

	src := pdu.NewAddress()
	src.SetTon(1)
	src.SetNpi(1)
	if err := src.SetAddress(params.SourceAddr); err != nil {
		return nil, fmt.Errorf("codec: invalid source_addr %q: %w", params.SourceAddr, err)
	}
	p.SourceAddr = src

	dst := pdu.NewAddress()
	dst.SetTon(1)
	dst.SetNpi(1)
	if err := dst.SetAddress(params.DestAddr); err != nil {
		return nil, fmt.Errorf("codec: invalid dest_addr %q: %w", params.DestAddr, err)
	}
	p.DestAddr = dst

	if err := p.Message.SetMessageWithEncoding(params.ShortMessage, data.GSM7BIT); err != nil {
		return nil, fmt.Errorf("codec: failed to set short_message: %w", err)
	}

	if params.IsReceipt {
		p.EsmClass = mcDeliveryReceipt
	}
	p.RegisteredDelivery = 0
	p.ProtocolID = 0

	setHeader(&p.Header, smpppdu.StatusOK, params.Seq)
	return p, nil
}
