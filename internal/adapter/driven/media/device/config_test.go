package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigDefaults(t *testing.T) {
	c := Config{}.withDefaults()
	assert.Equal(t, 640, c.MaxWidth)
	assert.Equal(t, 480, c.MaxHeight)
	assert.Equal(t, 1_500_000, c.VideoBitrate)

	c = Config{MaxWidth: 1280, MaxHeight: 720, VideoBitrate: 500_000}.withDefaults()
	assert.Equal(t, 1280, c.MaxWidth)
	assert.Equal(t, 720, c.MaxHeight)
	assert.Equal(t, 500_000, c.VideoBitrate)
}
