package service

import (
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
)

// sessionObserver binds transport events to one session. Events for a
// session that is no longer current are dropped.
type sessionObserver struct {
	c *CallController
	s *callSession
}

func (o *sessionObserver) current() bool {
	return o.c.session == o.s && !o.s.released
}

func (o *sessionObserver) OnIceCandidate(cand domain.ICECandidate) {
	o.c.mu.Lock()
	defer o.c.mu.Unlock()
	if !o.current() {
		return
	}
	err := o.c.sendLocked(domain.Signal{
		Type:      domain.SignalCandidate,
		CallID:    o.s.id,
		To:        o.s.remote.ID,
		Candidate: &cand,
	})
	if err != nil {
		o.s.log.Warn().Err(err).Msg("Could not send local ICE candidate")
	}
}

func (o *sessionObserver) OnRemoteTrack(stream port.Stream) {
	o.c.mu.Lock()
	defer o.c.mu.Unlock()
	if !o.current() {
		return
	}
	if o.s.remoteStream != nil {
		if o.s.remoteStream.ID() != stream.ID() {
			o.s.log.Warn().Str("stream", stream.ID()).Msg("Ignoring second remote stream")
		}
		return
	}
	o.s.remoteStream = stream
	o.s.log.Info().Str("stream", stream.ID()).Msg("Remote stream arrived")
	if o.s.state == domain.StateActive {
		o.c.emitLocked()
	}
}

func (o *sessionObserver) OnConnectionStateChange(state domain.ConnectionState) {
	o.c.mu.Lock()
	defer o.c.mu.Unlock()
	if !o.current() {
		return
	}
	o.s.log.Debug().Str("connection", string(state)).Msg("Transport state changed")

	switch {
	case state == domain.ConnConnected:
		if o.s.state == domain.StateCalling {
			o.s.state = domain.StateActive
		}
		if o.s.timer == nil {
			o.c.startTimerLocked(o.s)
		}
		o.c.emitLocked()
	case state.Terminal():
		o.s.log.Error().Err(domain.ErrTransportFailure).Str("connection", string(state)).Msg("Transport lost")
		o.c.teardownLocked(o.s, domain.EndTransportFailure, true)
	}
}
