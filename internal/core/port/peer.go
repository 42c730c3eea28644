package port

import (
	"context"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// PeerObserver receives transport events of exactly one PeerSession.
type PeerObserver interface {
	OnIceCandidate(c domain.ICECandidate)
	OnRemoteTrack(s Stream)
	OnConnectionStateChange(s domain.ConnectionState)
}

type PeerSession interface {
	// CreateOffer creates the offer and installs it as local description.
	CreateOffer(ctx context.Context) (domain.SessionDescription, error)
	// CreateAnswer applies offer unless it already is the remote
	// description, then creates and installs the answer.
	CreateAnswer(ctx context.Context, offer domain.SessionDescription) (domain.SessionDescription, error)
	ApplyRemoteDescription(ctx context.Context, desc domain.SessionDescription) error
	// AddIceCandidate queues the candidate until a remote description is
	// applied, otherwise applies it immediately.
	AddIceCandidate(c domain.ICECandidate) error
	AddLocalTrack(t Track, s Stream) error
	Close() error
}

type PeerFactory interface {
	NewPeerSession(callID domain.CallID, obs PeerObserver) (PeerSession, error)
}
