package port

import (
	"context"

	"github.com/Wyydra/yacall/internal/core/domain"
)

type Track interface {
	ID() string
	Kind() domain.TrackKind
	Enabled() bool
	SetEnabled(enabled bool)
	// Stop releases the underlying device or receiver. Safe to call twice.
	Stop()
}

type Stream interface {
	ID() string
	Tracks() []Track
}

// MediaSource acquires local capture streams. Errors wrap
// domain.ErrPermissionDenied or domain.ErrDeviceUnavailable. The caller owns
// the returned stream and must stop every track.
type MediaSource interface {
	Acquire(ctx context.Context, c domain.Constraints) (Stream, error)
}
