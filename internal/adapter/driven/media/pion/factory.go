package pion

import (
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// pion/ice defaults. Passing zero to SetICETimeouts disables the timer
// instead, so unset fields are filled with these.
const (
	defaultDisconnectedTimeout = 5 * time.Second
	defaultFailedTimeout       = 25 * time.Second
	defaultKeepAliveInterval   = 2 * time.Second
)

// Config carries the transport settings shared by every session.
type Config struct {
	ICEServers []webrtc.ICEServer

	// Zero means the pion default.
	DisconnectedTimeout time.Duration
	FailedTimeout       time.Duration
	KeepAliveInterval   time.Duration
}

// iceTimeouts returns the three ICE timers with defaults filled in.
func (c Config) iceTimeouts() (disconnected, failed, keepAlive time.Duration) {
	disconnected, failed, keepAlive = c.DisconnectedTimeout, c.FailedTimeout, c.KeepAliveInterval
	if disconnected <= 0 {
		disconnected = defaultDisconnectedTimeout
	}
	if failed <= 0 {
		failed = defaultFailedTimeout
	}
	if keepAlive <= 0 {
		keepAlive = defaultKeepAliveInterval
	}
	return disconnected, failed, keepAlive
}

// Factory builds one PeerConnection per call from a shared API.
type Factory struct {
	api *webrtc.API
	cfg webrtc.Configuration
}

func NewFactory(cfg Config) (*Factory, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, err
	}

	se := webrtc.SettingEngine{}
	se.SetICETimeouts(cfg.iceTimeouts())

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(ir),
		webrtc.WithSettingEngine(se),
	)

	return &Factory{
		api: api,
		cfg: webrtc.Configuration{ICEServers: cfg.ICEServers},
	}, nil
}

func (f *Factory) NewPeerSession(callID domain.CallID, obs port.PeerObserver) (port.PeerSession, error) {
	p, err := newPeer(f.api, f.cfg, callID, obs)
	if err != nil {
		return nil, err
	}
	return p, nil
}
