package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultSendTimeout = 5 * time.Second
	snapshotBuffer     = 32
)

// CallController is the state machine for a single call slot. Every
// operation runs under mu; media acquisition is the only step that releases
// it, and the session pointer is re-checked afterwards.
type CallController struct {
	self   domain.Party
	media  port.MediaSource
	peers  port.PeerFactory
	bridge port.SignalingBridge
	clock  clock.Clock

	sendTimeout time.Duration

	mu       sync.Mutex
	session  *callSession
	lastEnd  domain.EndReason
	lobbyOff func()
	closed   bool

	subMu      sync.Mutex
	subs       map[chan domain.Snapshot]struct{}
	subsClosed bool
}

type Option func(*CallController)

func WithClock(c clock.Clock) Option {
	return func(cc *CallController) { cc.clock = c }
}

func WithSendTimeout(d time.Duration) Option {
	return func(cc *CallController) { cc.sendTimeout = d }
}

// NewCallController wires the controller to its collaborators and starts
// listening for inbound offers.
func NewCallController(self domain.Party, media port.MediaSource, peers port.PeerFactory, bridge port.SignalingBridge, opts ...Option) *CallController {
	c := &CallController{
		self:        self,
		media:       media,
		peers:       peers,
		bridge:      bridge,
		clock:       clock.New(),
		sendTimeout: defaultSendTimeout,
		subs:        make(map[chan domain.Snapshot]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.lobbyOff = bridge.Subscribe(c.handleLobbySignal)
	return c
}

// callSession is the live CallSession. It is only touched under
// CallController.mu.
type callSession struct {
	id     domain.CallID
	state  domain.CallState
	kind   domain.CallKind
	remote domain.Party
	log    zerolog.Logger

	incoming  *domain.IncomingCall
	answering bool
	answered  bool
	// remoteKnows is set once the remote side has seen this call, so
	// teardown knows whether a cancel/reject must go out.
	remoteKnows bool

	local        port.Stream
	remoteStream port.Stream
	peer         port.PeerSession
	early        []domain.ICECandidate

	mutedAudio bool
	mutedVideo bool

	startedAt time.Time
	duration  int
	timer     *durationTimer

	unsubscribe func()
	released    bool
}

func newCallSession(id domain.CallID, state domain.CallState, kind domain.CallKind, remote domain.Party) *callSession {
	return &callSession{
		id:     id,
		state:  state,
		kind:   kind,
		remote: remote,
		log: log.With().
			Str("call_id", id.String()).
			Str("remote", remote.ID.String()).
			Str("kind", string(kind)).
			Logger(),
	}
}

// StartCall places an outgoing call. A second call while the slot is taken
// fails with domain.ErrSessionBusy before any media is touched.
func (c *CallController) StartCall(ctx context.Context, remote domain.Party, kind domain.CallKind) error {
	if !kind.Valid() {
		return fmt.Errorf("start call: %w", domain.ErrInvalidKind)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrClosed
	}
	if c.session != nil {
		c.mu.Unlock()
		return fmt.Errorf("start call: %w", domain.ErrSessionBusy)
	}
	s := newCallSession(domain.NewCallID(), domain.StateCalling, kind, remote)
	c.session = s
	c.lastEnd = domain.EndNone
	s.unsubscribe = c.bridge.Subscribe(c.sessionHandler(s))
	s.log.Info().Msg("Calling")
	c.emitLocked()
	c.mu.Unlock()

	stream, err := c.media.Acquire(ctx, kind.Constraints())

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != s {
		stopStream(stream)
		return fmt.Errorf("start call: %w", domain.ErrCallCancelled)
	}
	if err != nil {
		stopStream(stream)
		s.log.Error().Err(err).Msg("Could not acquire local media")
		c.teardownLocked(s, domain.EndMediaFailure, false)
		return fmt.Errorf("start call: %w: %w", domain.ErrMediaAcquisition, err)
	}
	c.adoptLocalStreamLocked(s, stream)

	peer, err := c.peers.NewPeerSession(s.id, &sessionObserver{c: c, s: s})
	if err != nil {
		c.teardownLocked(s, domain.EndNegotiation, false)
		return fmt.Errorf("start call: %w", negotiationErr(err))
	}
	s.peer = peer

	if err := c.attachLocalTracksLocked(s); err != nil {
		c.teardownLocked(s, domain.EndNegotiation, false)
		return fmt.Errorf("start call: %w", err)
	}

	offer, err := peer.CreateOffer(ctx)
	if err != nil {
		c.teardownLocked(s, domain.EndNegotiation, false)
		return fmt.Errorf("start call: %w", negotiationErr(err))
	}

	err = c.sendLocked(domain.Signal{
		Type:     domain.SignalOffer,
		CallID:   s.id,
		FromName: c.self.DisplayName,
		To:       s.remote.ID,
		Kind:     s.kind,
		SDP:      &offer,
	})
	if err != nil {
		c.teardownLocked(s, domain.EndTransportFailure, false)
		return fmt.Errorf("start call: send offer: %w: %w", domain.ErrTransportFailure, err)
	}
	s.remoteKnows = true
	s.log.Info().Msg("Offer sent")
	return nil
}

// AnswerCall accepts the ringing call described by in. The session is shown
// as active as soon as the answer is out; the duration timer still waits for
// the transport.
func (c *CallController) AnswerCall(ctx context.Context, in domain.IncomingCall) error {
	c.mu.Lock()
	s := c.session
	if s == nil || s.state != domain.StateRinging || s.incoming == nil ||
		s.incoming.CallID != in.CallID || s.remote.ID != in.Caller.ID {
		c.mu.Unlock()
		return fmt.Errorf("answer call: %w", domain.ErrNoIncomingCall)
	}
	if s.answering {
		c.mu.Unlock()
		return fmt.Errorf("answer call: %w", domain.ErrSessionBusy)
	}
	s.answering = true
	offer := s.incoming.Offer
	c.mu.Unlock()

	stream, err := c.media.Acquire(ctx, s.kind.Constraints())

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != s {
		stopStream(stream)
		return fmt.Errorf("answer call: %w", domain.ErrCallCancelled)
	}
	if err != nil {
		stopStream(stream)
		s.log.Error().Err(err).Msg("Could not acquire local media")
		c.teardownLocked(s, domain.EndMediaFailure, true)
		return fmt.Errorf("answer call: %w: %w", domain.ErrMediaAcquisition, err)
	}
	c.adoptLocalStreamLocked(s, stream)

	peer, err := c.peers.NewPeerSession(s.id, &sessionObserver{c: c, s: s})
	if err != nil {
		c.teardownLocked(s, domain.EndNegotiation, true)
		return fmt.Errorf("answer call: %w", negotiationErr(err))
	}
	s.peer = peer

	// The peer session keeps them queued until the offer is applied.
	for _, cand := range s.early {
		if err := peer.AddIceCandidate(cand); err != nil {
			s.log.Warn().Err(err).Msg("Early ICE candidate rejected")
		}
	}
	s.early = nil

	if err := c.attachLocalTracksLocked(s); err != nil {
		c.teardownLocked(s, domain.EndNegotiation, true)
		return fmt.Errorf("answer call: %w", err)
	}

	answer, err := peer.CreateAnswer(ctx, offer)
	if err != nil {
		c.teardownLocked(s, domain.EndNegotiation, true)
		return fmt.Errorf("answer call: %w", negotiationErr(err))
	}

	err = c.sendLocked(domain.Signal{
		Type:   domain.SignalAnswer,
		CallID: s.id,
		To:     s.remote.ID,
		SDP:    &answer,
	})
	if err != nil {
		c.teardownLocked(s, domain.EndTransportFailure, true)
		return fmt.Errorf("answer call: send answer: %w: %w", domain.ErrTransportFailure, err)
	}

	s.incoming = nil
	s.answered = true
	s.state = domain.StateActive
	s.log.Info().Msg("Call answered")
	c.emitLocked()
	return nil
}

// RejectCall declines the ringing call without touching media.
func (c *CallController) RejectCall() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session
	if s == nil || s.state != domain.StateRinging {
		return fmt.Errorf("reject call: %w", domain.ErrNotRinging)
	}
	c.teardownLocked(s, domain.EndLocalReject, true)
	return nil
}

// EndCall hangs up whatever is in progress. Calling it while idle does
// nothing.
func (c *CallController) EndCall() {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session
	if s == nil {
		return
	}
	reason := domain.EndLocalHangup
	if s.state == domain.StateRinging {
		reason = domain.EndLocalReject
	}
	c.teardownLocked(s, reason, true)
}

// HandleRemoteAnswer applies the callee's answer to the pending offer.
func (c *CallController) HandleRemoteAnswer(ctx context.Context, sig domain.Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.matchLocked(sig)
	if err != nil {
		return err
	}
	if s.state != domain.StateCalling || s.peer == nil || s.answered {
		return fmt.Errorf("%w: answer while %s", domain.ErrProtocolViolation, s.state)
	}
	if sig.SDP == nil {
		return fmt.Errorf("%w: answer without sdp", domain.ErrProtocolViolation)
	}

	if err := s.peer.ApplyRemoteDescription(ctx, *sig.SDP); err != nil {
		s.log.Error().Err(err).Msg("Could not apply answer")
		c.teardownLocked(s, domain.EndNegotiation, true)
		return negotiationErr(err)
	}
	s.answered = true
	s.log.Info().Msg("Answer applied")
	return nil
}

// HandleRemoteIceCandidate hands a remote candidate to the peer session, or
// buffers it while no peer session exists yet. Candidates that fail to apply
// are logged and otherwise ignored.
func (c *CallController) HandleRemoteIceCandidate(sig domain.Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.matchLocked(sig)
	if err != nil {
		return err
	}
	if sig.Candidate == nil {
		return fmt.Errorf("%w: candidate signal without candidate", domain.ErrProtocolViolation)
	}
	if s.peer == nil {
		s.early = append(s.early, *sig.Candidate)
		return nil
	}
	if err := s.peer.AddIceCandidate(*sig.Candidate); err != nil {
		s.log.Warn().Err(err).Msg("Remote ICE candidate rejected")
	}
	return nil
}

// ToggleMute flips the microphone and returns the new muted state.
func (c *CallController) ToggleMute() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session
	if s == nil {
		return false
	}
	s.mutedAudio = !s.mutedAudio
	flipTracks(s.local, domain.TrackAudio)
	c.emitLocked()
	return s.mutedAudio
}

// ToggleVideo flips the camera and returns the new video-off state. Voice
// calls have no camera, so nothing changes.
func (c *CallController) ToggleVideo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session
	if s == nil || s.kind != domain.KindVideo {
		return false
	}
	s.mutedVideo = !s.mutedVideo
	flipTracks(s.local, domain.TrackVideo)
	c.emitLocked()
	return s.mutedVideo
}

// Snapshot returns the current state as the UI would render it.
func (c *CallController) Snapshot() domain.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// RemoteStream returns the remote media of an active call, nil otherwise.
// The stream is only valid until the session ends.
func (c *CallController) RemoteStream() port.Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.session.state != domain.StateActive {
		return nil
	}
	return c.session.remoteStream
}

// Subscribe returns a channel receiving every snapshot from now on. Slow
// readers lose the oldest snapshots rather than stall the controller; the
// latest one is always delivered. After Close the channel comes back closed.
func (c *CallController) Subscribe() (<-chan domain.Snapshot, func()) {
	ch := make(chan domain.Snapshot, snapshotBuffer)
	c.subMu.Lock()
	if c.subsClosed {
		c.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	c.subs[ch] = struct{}{}
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			if _, ok := c.subs[ch]; ok {
				delete(c.subs, ch)
				close(ch)
			}
			c.subMu.Unlock()
		})
	}
}

// Close hangs up any call and detaches from the signaling bridge.
func (c *CallController) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if s := c.session; s != nil {
		c.teardownLocked(s, domain.EndLocalHangup, true)
	}
	if c.lobbyOff != nil {
		c.lobbyOff()
		c.lobbyOff = nil
	}
	c.mu.Unlock()

	c.subMu.Lock()
	c.subsClosed = true
	for ch := range c.subs {
		delete(c.subs, ch)
		close(ch)
	}
	c.subMu.Unlock()
}

// teardownLocked releases everything the session owns exactly once, then
// moves through ended to idle. notify sends call-cancel (call-reject while
// ringing) when the remote side knows about the call.
func (c *CallController) teardownLocked(s *callSession, reason domain.EndReason, notify bool) {
	if s.released {
		return
	}
	s.released = true

	if s.timer != nil {
		s.timer.stop()
		s.timer = nil
	}
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}

	if notify && s.remoteKnows {
		typ := domain.SignalCancel
		if s.state == domain.StateRinging {
			typ = domain.SignalReject
		}
		err := c.sendLocked(domain.Signal{
			Type:   typ,
			CallID: s.id,
			To:     s.remote.ID,
			Reason: string(reason),
		})
		if err != nil {
			s.log.Warn().Err(err).Str("type", string(typ)).Msg("Could not notify remote party")
		}
	}

	stopStream(s.local)
	stopStream(s.remoteStream)
	if s.peer != nil {
		if err := s.peer.Close(); err != nil {
			s.log.Warn().Err(err).Msg("Peer session close error")
		}
	}
	s.local = nil
	s.remoteStream = nil
	s.peer = nil
	s.early = nil
	s.incoming = nil

	s.state = domain.StateEnded
	c.lastEnd = reason
	s.log.Info().Str("reason", string(reason)).Int("duration", s.duration).Msg("Call ended")
	c.emitLocked()

	c.session = nil
	c.emitLocked()
}

// matchLocked resolves the live session a signal belongs to.
func (c *CallController) matchLocked(sig domain.Signal) (*callSession, error) {
	s := c.session
	if s == nil {
		return nil, fmt.Errorf("%w: %s with no session", domain.ErrProtocolViolation, sig.Type)
	}
	if s.id != sig.CallID || s.remote.ID != sig.From {
		return nil, fmt.Errorf("%w: %s for call %s from %s", domain.ErrProtocolViolation, sig.Type, sig.CallID, sig.From)
	}
	return s, nil
}

func (c *CallController) adoptLocalStreamLocked(s *callSession, stream port.Stream) {
	s.local = stream
	// Toggles made while ringing apply to the tracks we just got.
	if s.mutedAudio {
		flipTracks(stream, domain.TrackAudio)
	}
	if s.mutedVideo {
		flipTracks(stream, domain.TrackVideo)
	}
	c.emitLocked()
}

func (c *CallController) attachLocalTracksLocked(s *callSession) error {
	for _, t := range s.local.Tracks() {
		if err := s.peer.AddLocalTrack(t, s.local); err != nil {
			return negotiationErr(fmt.Errorf("add %s track: %w", t.Kind(), err))
		}
	}
	return nil
}

func (c *CallController) sendLocked(sig domain.Signal) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.sendTimeout)
	defer cancel()
	sig.From = c.self.ID
	return c.bridge.Send(ctx, sig)
}

func (c *CallController) snapshotLocked() domain.Snapshot {
	s := c.session
	if s == nil {
		return domain.Snapshot{State: domain.StateIdle, EndReason: c.lastEnd}
	}
	remote := s.remote
	snap := domain.Snapshot{
		State:           s.state,
		Kind:            s.kind,
		CallID:          s.id,
		Remote:          &remote,
		Muted:           s.mutedAudio,
		VideoOff:        s.mutedVideo,
		DurationSeconds: s.duration,
	}
	if s.local != nil {
		snap.LocalStream = s.local.ID()
	}
	if s.state == domain.StateActive && s.remoteStream != nil {
		snap.RemoteStream = s.remoteStream.ID()
	}
	if s.state == domain.StateRinging && s.incoming != nil {
		in := *s.incoming
		snap.Incoming = &in
	}
	if s.state == domain.StateEnded {
		snap.EndReason = c.lastEnd
	}
	return snap
}

func (c *CallController) emitLocked() {
	snap := c.snapshotLocked()
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		// Full: evict the oldest so the newest state always lands. Only
		// emitLocked sends, and it holds subMu, so the second send has room.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
		log.Warn().Str("state", string(snap.State)).Msg("Snapshot subscriber full, dropped oldest snapshot")
	}
}

func negotiationErr(err error) error {
	if errors.Is(err, domain.ErrNegotiation) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrNegotiation, err)
}
