package port

import (
	"context"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// SignalingBridge is the client side of the signaling channel.
type SignalingBridge interface {
	Send(ctx context.Context, signal domain.Signal) error
	// Subscribe registers handler for inbound signals until the returned
	// func is called.
	Subscribe(handler func(domain.Signal)) (unsubscribe func())
}
