package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
)

type fakeTrack struct {
	mu      sync.Mutex
	id      string
	kind    domain.TrackKind
	enabled bool
	stops   int
}

func (t *fakeTrack) ID() string             { return t.id }
func (t *fakeTrack) Kind() domain.TrackKind { return t.kind }

func (t *fakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *fakeTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	t.stops++
	t.mu.Unlock()
}

func (t *fakeTrack) stopped() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

type fakeStream struct {
	id     string
	tracks []*fakeTrack
}

func (s *fakeStream) ID() string { return s.id }

func (s *fakeStream) Tracks() []port.Track {
	out := make([]port.Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	return out
}

func (s *fakeStream) allStopped() bool {
	for _, t := range s.tracks {
		if t.stopped() == 0 {
			return false
		}
	}
	return true
}

type fakeMedia struct {
	mu       sync.Mutex
	err      error
	gate     chan struct{}
	acquired []*fakeStream
}

func (m *fakeMedia) Acquire(ctx context.Context, c domain.Constraints) (port.Stream, error) {
	m.mu.Lock()
	gate := m.gate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	n := len(m.acquired)
	s := &fakeStream{id: fmt.Sprintf("local-%d", n)}
	if c.Audio {
		s.tracks = append(s.tracks, &fakeTrack{id: fmt.Sprintf("mic-%d", n), kind: domain.TrackAudio, enabled: true})
	}
	if c.Video {
		s.tracks = append(s.tracks, &fakeTrack{id: fmt.Sprintf("cam-%d", n), kind: domain.TrackVideo, enabled: true})
	}
	m.acquired = append(m.acquired, s)
	return s, nil
}

func (m *fakeMedia) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.acquired)
}

func (m *fakeMedia) last() *fakeStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.acquired) == 0 {
		return nil
	}
	return m.acquired[len(m.acquired)-1]
}

type fakeBridge struct {
	mu       sync.Mutex
	sent     []domain.Signal
	sendErr  error
	handlers map[int]func(domain.Signal)
	next     int
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{handlers: make(map[int]func(domain.Signal))}
}

func (b *fakeBridge) Send(ctx context.Context, sig domain.Signal) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, sig)
	return nil
}

func (b *fakeBridge) Subscribe(handler func(domain.Signal)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.handlers[id] = handler
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

// deliver fans sig out the way the websocket bridge does: handlers are
// copied first and called without the lock.
func (b *fakeBridge) deliver(sig domain.Signal) {
	b.mu.Lock()
	hs := make([]func(domain.Signal), 0, len(b.handlers))
	for i := 0; i < b.next; i++ {
		if h, ok := b.handlers[i]; ok {
			hs = append(hs, h)
		}
	}
	b.mu.Unlock()
	for _, h := range hs {
		h(sig)
	}
}

func (b *fakeBridge) subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers)
}

func (b *fakeBridge) signals() []domain.Signal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Signal(nil), b.sent...)
}

func (b *fakeBridge) ofType(typ domain.SignalType) []domain.Signal {
	var out []domain.Signal
	for _, s := range b.signals() {
		if s.Type == typ {
			out = append(out, s)
		}
	}
	return out
}

type fakePeer struct {
	mu       sync.Mutex
	callID   domain.CallID
	obs      port.PeerObserver
	tracks   []port.Track
	remote   *domain.SessionDescription
	pending  []domain.ICECandidate
	applied  []domain.ICECandidate
	closes   int
	offerErr error
	applyErr error
	badCand  string
}

func (p *fakePeer) CreateOffer(ctx context.Context) (domain.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.offerErr != nil {
		return domain.SessionDescription{}, p.offerErr
	}
	return domain.SessionDescription{Type: domain.SDPOffer, SDP: "v=0 offer " + p.callID.String()}, nil
}

func (p *fakePeer) CreateAnswer(ctx context.Context, offer domain.SessionDescription) (domain.SessionDescription, error) {
	if err := p.ApplyRemoteDescription(ctx, offer); err != nil {
		return domain.SessionDescription{}, err
	}
	return domain.SessionDescription{Type: domain.SDPAnswer, SDP: "v=0 answer " + p.callID.String()}, nil
}

func (p *fakePeer) ApplyRemoteDescription(ctx context.Context, desc domain.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.applyErr != nil {
		return p.applyErr
	}
	p.remote = &desc
	p.applied = append(p.applied, p.pending...)
	p.pending = nil
	return nil
}

func (p *fakePeer) AddIceCandidate(c domain.ICECandidate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.badCand != "" && c.Candidate == p.badCand {
		return errors.New("unusable candidate")
	}
	if p.remote == nil {
		p.pending = append(p.pending, c)
		return nil
	}
	p.applied = append(p.applied, c)
	return nil
}

func (p *fakePeer) AddLocalTrack(t port.Track, s port.Stream) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks = append(p.tracks, t)
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	return nil
}

func (p *fakePeer) appliedCandidates() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.applied))
	for _, c := range p.applied {
		out = append(out, c.Candidate)
	}
	return out
}

func (p *fakePeer) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

type fakePeerFactory struct {
	mu       sync.Mutex
	err      error
	template fakePeer
	peers    []*fakePeer
}

func (f *fakePeerFactory) NewPeerSession(callID domain.CallID, obs port.PeerObserver) (port.PeerSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p := &fakePeer{
		callID:   callID,
		obs:      obs,
		offerErr: f.template.offerErr,
		applyErr: f.template.applyErr,
		badCand:  f.template.badCand,
	}
	f.peers = append(f.peers, p)
	return p, nil
}

func (f *fakePeerFactory) last() *fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.peers) == 0 {
		return nil
	}
	return f.peers[len(f.peers)-1]
}

func newRemoteStream(id string) *fakeStream {
	return &fakeStream{
		id: id,
		tracks: []*fakeTrack{
			{id: id + "-audio", kind: domain.TrackAudio, enabled: true},
			{id: id + "-video", kind: domain.TrackVideo, enabled: true},
		},
	}
}
