package service

import (
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
)

func stopStream(s port.Stream) {
	if s == nil {
		return
	}
	for _, t := range s.Tracks() {
		t.Stop()
	}
}

func flipTracks(s port.Stream, kind domain.TrackKind) {
	if s == nil {
		return
	}
	for _, t := range s.Tracks() {
		if t.Kind() == kind {
			t.SetEnabled(!t.Enabled())
		}
	}
}
