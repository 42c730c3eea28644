package pion

import (
	"sync"
	"sync/atomic"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/pion/webrtc/v4"
)

// remoteTrack is an inbound track. Packets are read and discarded so the
// receive interceptors keep producing reports; rendering is left to
// whatever consumes the stream.
type remoteTrack struct {
	track    *webrtc.TrackRemote
	receiver *webrtc.RTPReceiver
	enabled  atomic.Bool
	packets  atomic.Uint64
	stopOnce sync.Once
}

func (t *remoteTrack) ID() string { return t.track.ID() }

func (t *remoteTrack) Kind() domain.TrackKind {
	if t.track.Kind() == webrtc.RTPCodecTypeVideo {
		return domain.TrackVideo
	}
	return domain.TrackAudio
}

func (t *remoteTrack) Enabled() bool           { return t.enabled.Load() }
func (t *remoteTrack) SetEnabled(enabled bool) { t.enabled.Store(enabled) }

func (t *remoteTrack) Stop() {
	t.stopOnce.Do(func() {
		_ = t.receiver.Stop()
	})
}

func (t *remoteTrack) drain() {
	for {
		if _, _, err := t.track.ReadRTP(); err != nil {
			return
		}
		t.packets.Add(1)
	}
}

type remoteStream struct {
	id string

	mu     sync.Mutex
	tracks []*remoteTrack
}

func newRemoteStream(id string) *remoteStream {
	return &remoteStream{id: id}
}

func (s *remoteStream) ID() string { return s.id }

func (s *remoteStream) Tracks() []port.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]port.Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	return out
}

func (s *remoteStream) add(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) *remoteTrack {
	rt := &remoteTrack{track: track, receiver: receiver}
	rt.enabled.Store(true)
	s.mu.Lock()
	s.tracks = append(s.tracks, rt)
	s.mu.Unlock()
	return rt
}

// received is the number of RTP packets read across all tracks.
func (s *remoteStream) received() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n uint64
	for _, t := range s.tracks {
		n += t.packets.Load()
	}
	return n
}

func (s *remoteStream) stop() {
	for _, t := range s.Tracks() {
		t.Stop()
	}
}
