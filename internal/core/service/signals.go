package service

import (
	"context"
	"fmt"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/rs/zerolog/log"
)

// handleLobbySignal is the long-lived subscription. It only opens new
// sessions; everything else belongs to the per-session handler.
func (c *CallController) handleLobbySignal(sig domain.Signal) {
	if err := c.checkInbound(sig); err != nil {
		log.Warn().Err(err).Str("type", string(sig.Type)).Msg("Dropping signal")
		return
	}

	if sig.Type == domain.SignalOffer {
		if err := c.handleOffer(sig); err != nil {
			log.Warn().Err(err).Str("from", sig.From.String()).Msg("Dropping offer")
		}
		return
	}

	c.mu.Lock()
	idle := c.session == nil
	c.mu.Unlock()
	if idle {
		log.Warn().
			Err(domain.ErrProtocolViolation).
			Str("type", string(sig.Type)).
			Str("call_id", sig.CallID.String()).
			Msg("Signal for no session, dropping")
	}
}

// sessionHandler is subscribed for the lifetime of s and removed on
// teardown, so it never sees traffic meant for a later call.
func (c *CallController) sessionHandler(s *callSession) func(domain.Signal) {
	return func(sig domain.Signal) {
		if sig.Type == domain.SignalOffer {
			return
		}
		if err := c.checkInbound(sig); err != nil {
			s.log.Warn().Err(err).Str("type", string(sig.Type)).Msg("Dropping signal")
			return
		}

		var err error
		switch sig.Type {
		case domain.SignalAnswer:
			err = c.HandleRemoteAnswer(context.Background(), sig)
		case domain.SignalCandidate:
			err = c.HandleRemoteIceCandidate(sig)
		case domain.SignalCancel, domain.SignalReject:
			err = c.handleRemoteEnd(sig)
		}
		if err != nil {
			s.log.Warn().Err(err).Str("type", string(sig.Type)).Msg("Signal not applied")
		}
	}
}

func (c *CallController) checkInbound(sig domain.Signal) error {
	if err := sig.Validate(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrProtocolViolation, err)
	}
	if sig.To != c.self.ID {
		return fmt.Errorf("%w: addressed to %s", domain.ErrProtocolViolation, sig.To)
	}
	return nil
}

// handleOffer moves idle to ringing. An offer arriving while the slot is
// taken is turned down with a busy reject and leaves the live call alone.
func (c *CallController) handleOffer(sig domain.Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return domain.ErrClosed
	}
	if cur := c.session; cur != nil {
		if cur.id == sig.CallID {
			return fmt.Errorf("%w: duplicate offer", domain.ErrProtocolViolation)
		}
		cur.log.Info().Str("caller", sig.From.String()).Msg("Busy, rejecting incoming call")
		return c.sendLocked(domain.Signal{
			Type:   domain.SignalReject,
			CallID: sig.CallID,
			To:     sig.From,
			Reason: domain.RejectBusy,
		})
	}

	caller := domain.Party{ID: sig.From, DisplayName: sig.FromName}
	s := newCallSession(sig.CallID, domain.StateRinging, sig.Kind, caller)
	s.remoteKnows = true
	s.incoming = &domain.IncomingCall{
		CallID: sig.CallID,
		Caller: caller,
		Kind:   sig.Kind,
		Offer:  *sig.SDP,
		At:     c.clock.Now(),
	}
	c.session = s
	c.lastEnd = domain.EndNone
	s.unsubscribe = c.bridge.Subscribe(c.sessionHandler(s))
	s.log.Info().Str("caller_name", caller.DisplayName).Msg("Incoming call")
	c.emitLocked()
	return nil
}

// handleRemoteEnd reacts to call-cancel and call-reject from the remote
// party. Nothing is sent back.
func (c *CallController) handleRemoteEnd(sig domain.Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.matchLocked(sig)
	if err != nil {
		return err
	}

	var reason domain.EndReason
	switch {
	case sig.Type == domain.SignalReject && s.state == domain.StateCalling:
		reason = domain.EndRejected
	case sig.Type == domain.SignalCancel && s.state == domain.StateRinging:
		reason = domain.EndRemoteCancel
	case sig.Type == domain.SignalCancel:
		reason = domain.EndRemoteHangup
	default:
		return fmt.Errorf("%w: %s while %s", domain.ErrProtocolViolation, sig.Type, s.state)
	}
	s.log.Info().Str("reason", sig.Reason).Msgf("Remote sent %s", sig.Type)
	c.teardownLocked(s, reason, false)
	return nil
}
