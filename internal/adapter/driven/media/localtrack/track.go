// Package localtrack wraps pion local tracks so they can be switched off
// without renegotiation.
package localtrack

import (
	"sync"
	"sync/atomic"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// Track is a capture track. While disabled, every packet the inner track
// writes is swallowed at the bound write stream; the sender and the
// negotiated m-line stay untouched.
type Track struct {
	inner    webrtc.TrackLocal
	streamID string
	enabled  atomic.Bool
	stopped  atomic.Bool

	stopOnce sync.Once
	release  func()
}

// New wraps inner. release is called once on Stop and should free the
// device behind the track; it may be nil.
func New(inner webrtc.TrackLocal, release func()) *Track {
	t := &Track{inner: inner, release: release}
	t.enabled.Store(true)
	return t
}

func (t *Track) ID() string {
	return t.inner.ID()
}

func (t *Track) Kind() domain.TrackKind {
	if t.inner.Kind() == webrtc.RTPCodecTypeVideo {
		return domain.TrackVideo
	}
	return domain.TrackAudio
}

func (t *Track) Enabled() bool {
	return t.enabled.Load()
}

func (t *Track) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

func (t *Track) Stop() {
	t.stopOnce.Do(func() {
		t.stopped.Store(true)
		if t.release != nil {
			t.release()
		}
	})
}

func (t *Track) Stopped() bool {
	return t.stopped.Load()
}

// Local is what gets handed to PeerConnection.AddTrack.
func (t *Track) Local() webrtc.TrackLocal {
	return gatedTrack{t: t}
}

type gatedTrack struct {
	t *Track
}

func (g gatedTrack) Bind(ctx webrtc.TrackLocalContext) (webrtc.RTPCodecParameters, error) {
	return g.t.inner.Bind(gatedContext{TrackLocalContext: ctx, t: g.t})
}

func (g gatedTrack) Unbind(ctx webrtc.TrackLocalContext) error {
	return g.t.inner.Unbind(gatedContext{TrackLocalContext: ctx, t: g.t})
}

func (g gatedTrack) ID() string               { return g.t.inner.ID() }
func (g gatedTrack) RID() string              { return g.t.inner.RID() }
func (g gatedTrack) Kind() webrtc.RTPCodecType { return g.t.inner.Kind() }

func (g gatedTrack) StreamID() string {
	if g.t.streamID != "" {
		return g.t.streamID
	}
	return g.t.inner.StreamID()
}

// gatedContext is comparable, so inner tracks keying bindings by context
// find the same entry on Unbind.
type gatedContext struct {
	webrtc.TrackLocalContext
	t *Track
}

func (c gatedContext) WriteStream() webrtc.TrackLocalWriter {
	return gatedWriter{w: c.TrackLocalContext.WriteStream(), t: c.t}
}

type gatedWriter struct {
	w webrtc.TrackLocalWriter
	t *Track
}

func (g gatedWriter) WriteRTP(header *rtp.Header, payload []byte) (int, error) {
	if !g.t.Enabled() {
		return header.MarshalSize() + len(payload), nil
	}
	return g.w.WriteRTP(header, payload)
}

func (g gatedWriter) Write(b []byte) (int, error) {
	if !g.t.Enabled() {
		return len(b), nil
	}
	return g.w.Write(b)
}

var _ port.Track = (*Track)(nil)
