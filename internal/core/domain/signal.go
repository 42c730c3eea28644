package domain

import "errors"

type SignalType string

const (
	SignalOffer     SignalType = "call-offer"
	SignalAnswer    SignalType = "call-answer"
	SignalCandidate SignalType = "ice-candidate"
	SignalCancel    SignalType = "call-cancel"
	SignalReject    SignalType = "call-reject"
)

// Reject reasons the core and the relay produce.
const (
	RejectBusy    = "busy"
	RejectOffline = "offline"
)

type EnvelopeType string

const (
	EnvelopeSignal EnvelopeType = "signal"
	EnvelopeError  EnvelopeType = "error"
)

// Envelope frames every websocket message between endpoint and relay.
type Envelope struct {
	Type   EnvelopeType `json:"type"`
	Signal *Signal      `json:"signal,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// Signal is one message on the signaling channel. From is stamped by the
// relay; clients may leave it empty.
type Signal struct {
	Type      SignalType          `json:"type"`
	CallID    CallID              `json:"call_id"`
	From      UserID              `json:"from"`
	FromName  string              `json:"from_name,omitempty"`
	To        UserID              `json:"to"`
	Kind      CallKind            `json:"kind,omitempty"`
	SDP       *SessionDescription `json:"sdp,omitempty"`
	Candidate *ICECandidate       `json:"candidate,omitempty"`
	Reason    string              `json:"reason,omitempty"`
}

func (s Signal) Validate() error {
	if s.To.IsZero() {
		return errors.New("signal has no recipient")
	}
	if s.CallID.IsZero() {
		return errors.New("signal has no call id")
	}
	switch s.Type {
	case SignalOffer:
		if !s.Kind.Valid() {
			return errors.New("offer has invalid call kind")
		}
		if s.SDP == nil || s.SDP.Type != SDPOffer {
			return errors.New("offer carries no offer sdp")
		}
	case SignalAnswer:
		if s.SDP == nil || s.SDP.Type != SDPAnswer {
			return errors.New("answer carries no answer sdp")
		}
	case SignalCandidate:
		if s.Candidate == nil {
			return errors.New("candidate signal has no candidate")
		}
	case SignalCancel, SignalReject:
	default:
		return errors.New("unknown signal type")
	}
	return nil
}
