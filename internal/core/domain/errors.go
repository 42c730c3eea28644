package domain

import "errors"

// Errors surfaced by the call core. Adapters wrap them with %w so callers
// can classify with errors.Is.
var (
	ErrMediaAcquisition  = errors.New("media acquisition failed")
	ErrPermissionDenied  = errors.New("media permission denied")
	ErrDeviceUnavailable = errors.New("media device unavailable")

	ErrNegotiation       = errors.New("negotiation failed")
	ErrTransportFailure  = errors.New("transport failure")
	ErrProtocolViolation = errors.New("protocol violation")

	ErrSessionBusy    = errors.New("a call is already in progress")
	ErrNoIncomingCall = errors.New("no matching incoming call")
	ErrNotRinging     = errors.New("no call is ringing")
	ErrCallCancelled  = errors.New("call cancelled")
	ErrInvalidKind    = errors.New("invalid call kind")
	ErrClosed         = errors.New("controller closed")

	ErrRecipientOffline = errors.New("recipient not connected")
)
