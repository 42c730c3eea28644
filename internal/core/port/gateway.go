package port

import (
	"context"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// RealTimeGateway delivers a signal to a connected user on the relay side.
type RealTimeGateway interface {
	SendSignal(ctx context.Context, to domain.UserID, signal domain.Signal) error
}
