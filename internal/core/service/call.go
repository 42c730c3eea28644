package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/rs/zerolog/log"
)

// RelayService forwards call signals between connected users. It keeps no
// call state of its own.
type RelayService struct {
	gateway port.RealTimeGateway
}

func NewRelayService(gateway port.RealTimeGateway) *RelayService {
	return &RelayService{
		gateway: gateway,
	}
}

// HandleSignal stamps the sender and routes the signal to its recipient. An
// offer to someone who is not connected bounces back as a reject so the
// caller does not ring forever.
func (s *RelayService) HandleSignal(ctx context.Context, from domain.UserID, sig domain.Signal) error {
	sig.From = from
	if err := sig.Validate(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrProtocolViolation, err)
	}
	if sig.To == from {
		return fmt.Errorf("%w: signal addressed to sender", domain.ErrProtocolViolation)
	}

	err := s.gateway.SendSignal(ctx, sig.To, sig)
	if errors.Is(err, domain.ErrRecipientOffline) && sig.Type == domain.SignalOffer {
		log.Info().
			Str("from", from.String()).
			Str("to", sig.To.String()).
			Msg("Callee offline, bouncing offer")
		return s.gateway.SendSignal(ctx, from, domain.Signal{
			Type:   domain.SignalReject,
			CallID: sig.CallID,
			From:   sig.To,
			To:     from,
			Reason: domain.RejectOffline,
		})
	}
	return err
}
