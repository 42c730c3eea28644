// Package synthetic produces capture streams without hardware: opus
// silence for audio and an unfed VP8 track for video. It backs headless
// endpoints and tests.
package synthetic

import (
	"context"
	"fmt"
	"time"

	"github.com/Wyydra/yacall/internal/adapter/driven/media/localtrack"
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

const frameDuration = 20 * time.Millisecond

// A silent 20ms opus frame.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

type Source struct{}

func New() *Source {
	return &Source{}
}

func (s *Source) Acquire(ctx context.Context, c domain.Constraints) (port.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !c.Audio && !c.Video {
		return nil, fmt.Errorf("%w: no track requested", domain.ErrDeviceUnavailable)
	}

	streamID := "synthetic-" + uuid.NewString()
	var tracks []*localtrack.Track

	if c.Audio {
		t, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
			"audio-"+uuid.NewString(), streamID,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrDeviceUnavailable, err)
		}
		stop := make(chan struct{})
		go feedSilence(t, stop)
		tracks = append(tracks, localtrack.New(t, func() { close(stop) }))
	}

	if c.Video {
		t, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			"video-"+uuid.NewString(), streamID,
		)
		if err != nil {
			for _, at := range tracks {
				at.Stop()
			}
			return nil, fmt.Errorf("%w: %w", domain.ErrDeviceUnavailable, err)
		}
		tracks = append(tracks, localtrack.New(t, nil))
	}

	return localtrack.NewStream(streamID, tracks...), nil
}

func feedSilence(t *webrtc.TrackLocalStaticSample, stop <-chan struct{}) {
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// Unbound tracks accept and drop samples.
			_ = t.WriteSample(media.Sample{Data: opusSilence, Duration: frameDuration})
		}
	}
}

var _ port.MediaSource = (*Source)(nil)
