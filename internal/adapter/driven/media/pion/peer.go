// Package pion implements PeerSession on top of pion/webrtc.
package pion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	eventQueueSize = 256
	pliInterval    = 3 * time.Second
)

var errPeerClosed = errors.New("peer session closed")

// localTrack is implemented by tracks that can be attached to a sender.
type localTrack interface {
	Local() webrtc.TrackLocal
}

// Peer owns one PeerConnection. Observer callbacks run on a single
// goroutine in the order pion raised them, never on a pion goroutine, and
// stop the moment Close is called.
type Peer struct {
	callID domain.CallID
	pc     *webrtc.PeerConnection
	obs    port.PeerObserver
	log    zerolog.Logger

	events chan func()
	done   chan struct{}

	mu        sync.Mutex
	closed    bool
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	streams   map[string]*remoteStream

	// addCandidate is swapped in tests.
	addCandidate func(webrtc.ICECandidateInit) error
}

func newPeer(api *webrtc.API, cfg webrtc.Configuration, callID domain.CallID, obs port.PeerObserver) (*Peer, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTransportFailure, err)
	}

	p := &Peer{
		callID:  callID,
		pc:      pc,
		obs:     obs,
		log:     log.With().Str("call_id", callID.String()).Logger(),
		events:  make(chan func(), eventQueueSize),
		done:    make(chan struct{}),
		streams: make(map[string]*remoteStream),
	}
	p.addCandidate = pc.AddICECandidate

	pc.OnICECandidate(p.onICECandidate)
	pc.OnTrack(p.onTrack)
	pc.OnConnectionStateChange(p.onConnectionStateChange)

	go p.run()
	return p, nil
}

func (p *Peer) run() {
	for {
		select {
		case <-p.done:
			return
		case fn := <-p.events:
			select {
			case <-p.done:
				return
			default:
			}
			fn()
		}
	}
}

func (p *Peer) post(fn func()) {
	select {
	case p.events <- fn:
	case <-p.done:
	}
}

func (p *Peer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Peer) CreateOffer(ctx context.Context) (domain.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return domain.SessionDescription{}, errPeerClosed
	}
	if err := ctx.Err(); err != nil {
		return domain.SessionDescription{}, err
	}

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("%w: create offer: %w", domain.ErrNegotiation, err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return domain.SessionDescription{}, fmt.Errorf("%w: set local offer: %w", domain.ErrNegotiation, err)
	}
	return domain.SessionDescription{Type: domain.SDPOffer, SDP: offer.SDP}, nil
}

func (p *Peer) CreateAnswer(ctx context.Context, offer domain.SessionDescription) (domain.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return domain.SessionDescription{}, errPeerClosed
	}
	if err := ctx.Err(); err != nil {
		return domain.SessionDescription{}, err
	}

	if !p.remoteSet {
		if offer.Type != domain.SDPOffer {
			return domain.SessionDescription{}, fmt.Errorf("%w: expected offer, got %q", domain.ErrNegotiation, offer.Type)
		}
		if err := p.applyRemoteLocked(offer); err != nil {
			return domain.SessionDescription{}, err
		}
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("%w: create answer: %w", domain.ErrNegotiation, err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return domain.SessionDescription{}, fmt.Errorf("%w: set local answer: %w", domain.ErrNegotiation, err)
	}
	return domain.SessionDescription{Type: domain.SDPAnswer, SDP: answer.SDP}, nil
}

func (p *Peer) ApplyRemoteDescription(ctx context.Context, desc domain.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errPeerClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.applyRemoteLocked(desc)
}

func (p *Peer) applyRemoteLocked(desc domain.SessionDescription) error {
	kinds, err := parseDescription(desc)
	if err != nil {
		return err
	}
	p.log.Debug().Strs("media", kinds).Msgf("Applying remote %s", desc.Type)

	typ := webrtc.SDPTypeOffer
	if desc.Type == domain.SDPAnswer {
		typ = webrtc.SDPTypeAnswer
	}
	if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: typ, SDP: desc.SDP}); err != nil {
		return fmt.Errorf("%w: set remote %s: %w", domain.ErrNegotiation, desc.Type, err)
	}
	p.remoteSet = true

	// Candidates that raced ahead of the description go in arrival order.
	for _, c := range p.pending {
		if err := p.addCandidate(c); err != nil {
			p.log.Warn().Err(err).Str("candidate", c.Candidate).Msg("Queued candidate rejected")
		}
	}
	p.pending = nil
	return nil
}

func (p *Peer) AddIceCandidate(c domain.ICECandidate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errPeerClosed
	}

	init := webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
	if !p.remoteSet {
		p.pending = append(p.pending, init)
		return nil
	}
	return p.addCandidate(init)
}

func (p *Peer) AddLocalTrack(t port.Track, s port.Stream) error {
	lt, ok := t.(localTrack)
	if !ok {
		return fmt.Errorf("track %s of stream %s cannot be sent", t.ID(), s.ID())
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errPeerClosed
	}

	sender, err := p.pc.AddTrack(lt.Local())
	if err != nil {
		return fmt.Errorf("add %s track: %w", t.Kind(), err)
	}

	// Interceptors only see RTCP that is read off the sender.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

// Close is idempotent. The closed flag is set before the PeerConnection is
// torn down so the state change pion raises during Close is never
// delivered to the observer.
func (p *Peer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.pending = nil
	streams := p.streams
	p.streams = nil
	close(p.done)
	p.mu.Unlock()

	for _, s := range streams {
		p.log.Debug().Str("stream_id", s.ID()).Uint64("packets", s.received()).Msg("Remote stream closed")
		s.stop()
	}
	if err := p.pc.Close(); err != nil {
		return fmt.Errorf("close peer connection: %w", err)
	}
	p.log.Debug().Msg("Peer connection closed")
	return nil
}

func (p *Peer) onICECandidate(c *webrtc.ICECandidate) {
	// nil marks the end of gathering.
	if c == nil || p.isClosed() {
		return
	}
	init := c.ToJSON()
	cand := domain.ICECandidate{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	}
	p.post(func() { p.obs.OnIceCandidate(cand) })
}

func (p *Peer) onTrack(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	s, ok := p.streams[track.StreamID()]
	if !ok {
		s = newRemoteStream(track.StreamID())
		p.streams[track.StreamID()] = s
	}
	rt := s.add(track, receiver)
	p.mu.Unlock()

	p.log.Debug().
		Str("kind", track.Kind().String()).
		Str("stream_id", track.StreamID()).
		Str("codec", track.Codec().MimeType).
		Msg("Received remote track")

	go rt.drain()
	if track.Kind() == webrtc.RTPCodecTypeVideo {
		go p.requestKeyframes(track)
	}
	p.post(func() { p.obs.OnRemoteTrack(s) })
}

// requestKeyframes sends a PLI right away and then periodically until the
// session closes.
func (p *Peer) requestKeyframes(track *webrtc.TrackRemote) {
	send := func() {
		pli := []rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())}}
		if err := p.pc.WriteRTCP(pli); err != nil {
			p.log.Debug().Err(err).Msg("PLI not sent")
		}
	}
	send()

	ticker := time.NewTicker(pliInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			send()
		}
	}
}

func (p *Peer) onConnectionStateChange(state webrtc.PeerConnectionState) {
	if p.isClosed() {
		return
	}
	ds := connectionState(state)
	p.log.Debug().Str("state", string(ds)).Msg("Connection state changed")
	p.post(func() { p.obs.OnConnectionStateChange(ds) })
}

func connectionState(s webrtc.PeerConnectionState) domain.ConnectionState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return domain.ConnConnecting
	case webrtc.PeerConnectionStateConnected:
		return domain.ConnConnected
	case webrtc.PeerConnectionStateDisconnected:
		return domain.ConnDisconnected
	case webrtc.PeerConnectionStateFailed:
		return domain.ConnFailed
	case webrtc.PeerConnectionStateClosed:
		return domain.ConnClosed
	default:
		return domain.ConnNew
	}
}

var _ port.PeerSession = (*Peer)(nil)
