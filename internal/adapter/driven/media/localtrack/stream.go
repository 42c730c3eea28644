package localtrack

import "github.com/Wyydra/yacall/internal/core/port"

type Stream struct {
	id     string
	tracks []*Track
}

// NewStream groups tracks under one stream id, which is what the remote
// side sees in its track events.
func NewStream(id string, tracks ...*Track) *Stream {
	for _, t := range tracks {
		t.streamID = id
	}
	return &Stream{id: id, tracks: tracks}
}

func (s *Stream) ID() string {
	return s.id
}

func (s *Stream) Tracks() []port.Track {
	out := make([]port.Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	return out
}

// Stop stops every track of the stream.
func (s *Stream) Stop() {
	for _, t := range s.tracks {
		t.Stop()
	}
}
