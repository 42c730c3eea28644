//go:build linux

// Package device captures camera and microphone through pion/mediadevices.
package device

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/Wyydra/yacall/internal/adapter/driven/media/localtrack"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/google/uuid"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/rs/zerolog/log"
)

type Source struct {
	cfg      Config
	selector *mediadevices.CodecSelector
}

func New(cfg Config) (*Source, error) {
	cfg = cfg.withDefaults()

	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	vpxParams.BitRate = cfg.VideoBitrate

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}

	devices := mediadevices.EnumerateDevices()
	if len(devices) == 0 {
		log.Warn().Msg("No media devices found")
	}
	for _, d := range devices {
		log.Debug().Str("kind", fmt.Sprint(d.Kind)).Str("label", d.Label).Msg("Media device")
	}

	return &Source{
		cfg: cfg,
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
	}, nil
}

// Acquire opens the microphone first and the camera second, so a video
// call whose camera fails releases the microphone it already holds.
func (s *Source) Acquire(ctx context.Context, c domain.Constraints) (port.Stream, error) {
	if !c.Audio && !c.Video {
		return nil, fmt.Errorf("%w: no track requested", domain.ErrDeviceUnavailable)
	}

	var tracks []*localtrack.Track
	release := func() {
		for _, t := range tracks {
			t.Stop()
		}
	}

	if c.Audio {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		got, err := s.open(mediadevices.MediaStreamConstraints{
			Audio: func(*mediadevices.MediaTrackConstraints) {},
			Codec: s.selector,
		})
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, got...)
	}

	if c.Video {
		if err := ctx.Err(); err != nil {
			release()
			return nil, err
		}
		got, err := s.open(mediadevices.MediaStreamConstraints{
			Video: func(mc *mediadevices.MediaTrackConstraints) {
				// MJPEG nodes on some cameras yield frames the VP8 encoder
				// cannot digest.
				mc.FrameFormat = prop.FrameFormatOneOf{
					frame.FormatYUYV,
					frame.FormatI420,
					frame.FormatI444,
					frame.FormatRGBA,
				}
				mc.Width = prop.IntRanged{Max: s.cfg.MaxWidth}
				mc.Height = prop.IntRanged{Max: s.cfg.MaxHeight}
			},
			Codec: s.selector,
		})
		if err != nil {
			release()
			return nil, err
		}
		tracks = append(tracks, got...)
	}

	return localtrack.NewStream(uuid.NewString(), tracks...), nil
}

func (s *Source) open(constraints mediadevices.MediaStreamConstraints) ([]*localtrack.Track, error) {
	ms, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, classify(err)
	}

	var out []*localtrack.Track
	for _, t := range ms.GetTracks() {
		t := t
		t.OnEnded(func(err error) {
			if err != nil {
				log.Warn().Err(err).Str("track_id", t.ID()).Msg("Local track ended")
			}
		})
		out = append(out, localtrack.New(t, func() { t.Close() }))
	}
	return out, nil
}

func classify(err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%w: %w", domain.ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrDeviceUnavailable, err)
}

var _ port.MediaSource = (*Source)(nil)
