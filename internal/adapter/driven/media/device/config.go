package device

const (
	defaultMaxWidth     = 640
	defaultMaxHeight    = 480
	defaultVideoBitrate = 1_500_000
)

type Config struct {
	MaxWidth     int
	MaxHeight    int
	VideoBitrate int
}

func (c Config) withDefaults() Config {
	if c.MaxWidth <= 0 {
		c.MaxWidth = defaultMaxWidth
	}
	if c.MaxHeight <= 0 {
		c.MaxHeight = defaultMaxHeight
	}
	if c.VideoBitrate <= 0 {
		c.VideoBitrate = defaultVideoBitrate
	}
	return c
}
