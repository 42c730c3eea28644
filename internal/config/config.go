// Package config loads settings for both binaries from the environment. A
// .env file in the working directory is read first when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	MediaDevice    = "device"
	MediaSynthetic = "synthetic"
)

type Config struct {
	Server    ServerConfig
	Signaling SignalingConfig
	Identity  IdentityConfig
	ICE       ICEConfig
	Media     MediaConfig
	Log       LogConfig
}

type ServerConfig struct {
	Addr string
}

type SignalingConfig struct {
	URL         string
	SendTimeout time.Duration
}

type IdentityConfig struct {
	UserID      string // empty means a fresh id per run
	DisplayName string
}

type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

type ICEConfig struct {
	Servers             []ICEServer
	DisconnectedTimeout time.Duration
	FailedTimeout       time.Duration
	KeepAliveInterval   time.Duration
}

type MediaConfig struct {
	Source       string // device or synthetic
	MaxWidth     int
	MaxHeight    int
	VideoBitrate int
}

type LogConfig struct {
	Level  string
	Pretty bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	sendTimeout, err := getDuration("SIGNALING_SEND_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	disconnected, err := getDuration("ICE_DISCONNECTED_TIMEOUT", 0)
	if err != nil {
		return nil, err
	}
	failed, err := getDuration("ICE_FAILED_TIMEOUT", 0)
	if err != nil {
		return nil, err
	}
	keepAlive, err := getDuration("ICE_KEEPALIVE_INTERVAL", 0)
	if err != nil {
		return nil, err
	}
	maxWidth, err := getInt("VIDEO_MAX_WIDTH", 640)
	if err != nil {
		return nil, err
	}
	maxHeight, err := getInt("VIDEO_MAX_HEIGHT", 480)
	if err != nil {
		return nil, err
	}
	bitrate, err := getInt("VIDEO_BITRATE", 1_500_000)
	if err != nil {
		return nil, err
	}
	pretty, err := strconv.ParseBool(getEnv("LOG_PRETTY", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_PRETTY: %w", err)
	}

	source := getEnv("MEDIA_SOURCE", MediaDevice)
	if source != MediaDevice && source != MediaSynthetic {
		return nil, fmt.Errorf("invalid MEDIA_SOURCE %q: want %s or %s", source, MediaDevice, MediaSynthetic)
	}

	servers := parseICEServers(getEnv("ICE_SERVERS", "stun:stun.l.google.com:19302,stun:stun1.l.google.com:19302"))
	if turn := getEnv("TURN_URL", ""); turn != "" {
		servers = append(servers, ICEServer{
			URLs:       []string{turn},
			Username:   getEnv("TURN_USERNAME", ""),
			Credential: getEnv("TURN_CREDENTIAL", ""),
		})
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr: getEnv("SERVER_ADDR", ":8080"),
		},
		Signaling: SignalingConfig{
			URL:         getEnv("SIGNALING_URL", "ws://localhost:8080/ws"),
			SendTimeout: sendTimeout,
		},
		Identity: IdentityConfig{
			UserID:      getEnv("USER_ID", ""),
			DisplayName: getEnv("DISPLAY_NAME", ""),
		},
		ICE: ICEConfig{
			Servers:             servers,
			DisconnectedTimeout: disconnected,
			FailedTimeout:       failed,
			KeepAliveInterval:   keepAlive,
		},
		Media: MediaConfig{
			Source:       source,
			MaxWidth:     maxWidth,
			MaxHeight:    maxHeight,
			VideoBitrate: bitrate,
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Pretty: pretty,
		},
	}
	return cfg, nil
}

// parseICEServers turns a comma separated url list into one server per url.
func parseICEServers(raw string) []ICEServer {
	var out []ICEServer
	for _, u := range strings.Split(raw, ",") {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		out = append(out, ICEServer{URLs: []string{u}})
	}
	return out
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v, err := time.ParseDuration(getEnv(key, fallback.String()))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
