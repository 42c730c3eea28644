package pion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestICETimeoutsFillUnsetFields(t *testing.T) {
	cases := []struct {
		name                            string
		cfg                             Config
		disconnected, failed, keepAlive time.Duration
	}{
		{"unset", Config{}, 5 * time.Second, 25 * time.Second, 2 * time.Second},
		{"failed only", Config{FailedTimeout: 10 * time.Second}, 5 * time.Second, 10 * time.Second, 2 * time.Second},
		{"all set", Config{
			DisconnectedTimeout: 30 * time.Second,
			FailedTimeout:       2 * time.Minute,
			KeepAliveInterval:   time.Second,
		}, 30 * time.Second, 2 * time.Minute, time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, f, k := tc.cfg.iceTimeouts()
			assert.Equal(t, tc.disconnected, d)
			assert.Equal(t, tc.failed, f)
			assert.Equal(t, tc.keepAlive, k)
		})
	}
}

func TestNewFactoryWithPartialTimeouts(t *testing.T) {
	f, err := NewFactory(Config{FailedTimeout: 10 * time.Second})
	assert.NoError(t, err)
	assert.NotNil(t, f)
}

func TestRemoteStreamCountsPackets(t *testing.T) {
	s := newRemoteStream("remote")
	a, v := &remoteTrack{}, &remoteTrack{}
	s.tracks = append(s.tracks, a, v)

	a.packets.Add(3)
	v.packets.Add(40)

	assert.Equal(t, uint64(43), s.received())
}
