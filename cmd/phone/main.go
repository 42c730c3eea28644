package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Wyydra/yacall/internal/adapter/driven/media/device"
	"github.com/Wyydra/yacall/internal/adapter/driven/media/pion"
	"github.com/Wyydra/yacall/internal/adapter/driven/media/synthetic"
	"github.com/Wyydra/yacall/internal/adapter/driven/signaling/wsbridge"
	"github.com/Wyydra/yacall/internal/config"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/Wyydra/yacall/internal/core/service"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	cfg.Log.Setup()

	self := domain.NewUserID()
	if cfg.Identity.UserID != "" {
		if self, err = domain.NewUserIDFromString(cfg.Identity.UserID); err != nil {
			log.Fatal().Err(err).Msg("USER_ID is not a uuid")
		}
	}
	l := log.With().Str("user_id", self.String()).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bridge, err := wsbridge.Dial(ctx, cfg.Signaling.URL, self)
	if err != nil {
		l.Fatal().Err(err).Msg("Failed to reach signaling relay")
	}
	defer bridge.Close()

	peers, err := pion.NewFactory(pion.Config{
		ICEServers:          iceServers(cfg.ICE),
		DisconnectedTimeout: cfg.ICE.DisconnectedTimeout,
		FailedTimeout:       cfg.ICE.FailedTimeout,
		KeepAliveInterval:   cfg.ICE.KeepAliveInterval,
	})
	if err != nil {
		l.Fatal().Err(err).Msg("Failed to build WebRTC API")
	}

	ctrl := service.NewCallController(
		domain.Party{ID: self, DisplayName: cfg.Identity.DisplayName},
		mediaSource(cfg.Media),
		peers,
		bridge,
		service.WithSendTimeout(cfg.Signaling.SendTimeout),
	)
	defer ctrl.Close()

	snaps, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()
	go func() {
		for s := range snaps {
			ev := l.Info().Str("state", string(s.State))
			if s.Remote != nil {
				ev = ev.Str("remote", s.Remote.ID.String())
			}
			if s.EndReason != domain.EndNone {
				ev = ev.Str("end_reason", string(s.EndReason))
				if notice := s.EndReason.Notice(); notice != "" {
					ev = ev.Str("notice", notice)
				}
			}
			ev.Int("duration", s.DurationSeconds).Msg("Call state")
		}
	}()

	go func() {
		select {
		case <-bridge.Done():
			l.Error().Msg("Signaling relay went away")
			stop()
		case <-ctx.Done():
		}
	}()

	l.Info().Str("relay", cfg.Signaling.URL).Msg("Phone ready, type help for commands")
	con := newConsole(ctrl, os.Stdout)
	if err := con.run(ctx, os.Stdin); err != nil && ctx.Err() == nil {
		l.Error().Err(err).Msg("Console stopped")
	}
	ctrl.EndCall()
	con.wait()
	l.Info().Msg("Phone exited")
}

func mediaSource(cfg config.MediaConfig) port.MediaSource {
	if cfg.Source == config.MediaSynthetic {
		return synthetic.New()
	}
	src, err := device.New(device.Config{
		MaxWidth:     cfg.MaxWidth,
		MaxHeight:    cfg.MaxHeight,
		VideoBitrate: cfg.VideoBitrate,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Capture devices unavailable, using synthetic media")
		return synthetic.New()
	}
	return src
}

func iceServers(cfg config.ICEConfig) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		out = append(out, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return out
}
