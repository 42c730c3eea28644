//go:build !linux

// Package device captures camera and microphone through pion/mediadevices.
// Capture drivers are only wired on Linux; elsewhere New fails and callers
// fall back to another source.
package device

import (
	"context"
	"fmt"
	"runtime"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
)

type Source struct{}

func New(cfg Config) (*Source, error) {
	_ = cfg.withDefaults()
	return nil, fmt.Errorf("%w: no capture drivers on %s", domain.ErrDeviceUnavailable, runtime.GOOS)
}

func (s *Source) Acquire(ctx context.Context, c domain.Constraints) (port.Stream, error) {
	return nil, fmt.Errorf("%w: no capture drivers on %s", domain.ErrDeviceUnavailable, runtime.GOOS)
}

var _ port.MediaSource = (*Source)(nil)
