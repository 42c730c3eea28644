package domain

import "time"

type CallState string

const (
	StateIdle    CallState = "idle"
	StateCalling CallState = "calling"
	StateRinging CallState = "ringing"
	StateActive  CallState = "active"
	StateEnded   CallState = "ended"
)

type CallKind string

const (
	KindVoice CallKind = "voice"
	KindVideo CallKind = "video"
)

func (k CallKind) Valid() bool {
	return k == KindVoice || k == KindVideo
}

// Constraints derived from the kind: audio always, video only for video calls.
func (k CallKind) Constraints() Constraints {
	return Constraints{Audio: true, Video: k == KindVideo}
}

// EndReason tells the UI why the last session ended.
type EndReason string

const (
	EndNone             EndReason = ""
	EndLocalHangup      EndReason = "local-hangup"
	EndRemoteHangup     EndReason = "remote-hangup"
	EndRemoteCancel     EndReason = "remote-cancel"
	EndRejected         EndReason = "rejected"
	EndLocalReject      EndReason = "local-reject"
	EndMediaFailure     EndReason = "media-failure"
	EndNegotiation      EndReason = "negotiation-failure"
	EndTransportFailure EndReason = "transport-failure"
)

// Notice is the user-facing text for the two failures the UI surfaces.
func (r EndReason) Notice() string {
	switch r {
	case EndMediaFailure:
		return "could not access camera/microphone"
	case EndTransportFailure:
		return "call ended unexpectedly"
	}
	return ""
}

type Party struct {
	ID          UserID `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
}

// IncomingCall is the buffered offer of a ringing session.
type IncomingCall struct {
	CallID CallID             `json:"call_id"`
	Caller Party              `json:"caller"`
	Kind   CallKind           `json:"kind"`
	Offer  SessionDescription `json:"offer"`
	At     time.Time          `json:"at"`
}

// Snapshot is what the UI renders. It is a value: holding one never keeps
// the session alive.
type Snapshot struct {
	State           CallState     `json:"state"`
	Kind            CallKind      `json:"kind,omitempty"`
	CallID          CallID        `json:"call_id"`
	Remote          *Party        `json:"remote,omitempty"`
	LocalStream     string        `json:"local_stream,omitempty"`
	RemoteStream    string        `json:"remote_stream,omitempty"`
	Muted           bool          `json:"muted"`
	VideoOff        bool          `json:"video_off"`
	DurationSeconds int           `json:"duration_seconds"`
	EndReason       EndReason     `json:"end_reason,omitempty"`
	Incoming        *IncomingCall `json:"incoming,omitempty"`
}
