package webmonitor

import (
	"path/filepath"
	"time"

	"github.com/dj-oyu/reefwatch/internal/config"
)

// Config defines the runtime configuration for the fish stream web server.
type Config struct {
	Addr            string        `validate:"required"`
	AssetsDir       string
	RecordingPath   string        `validate:"required"`
	JPEGQuality     int           `validate:"gte=1,lte=100"`
	StreamInterval  time.Duration `validate:"gte=0"` // minimum gap between MJPEG parts per client, 0 = every new frame
	WarmupInterval  time.Duration `validate:"gt=0"`  // placeholder / keepalive period while no new frame arrives
	StatusInterval  time.Duration `validate:"gt=0"`
	KeepAlive       time.Duration `validate:"gt=0"` // SSE comment keepalive
	MaxWebRTC       int           `validate:"gte=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
}

// DefaultConfig returns the server defaults, overridden by FISH_* variables.
func DefaultConfig() Config {
	return Config{
		Addr:            config.GetEnv("FISH_ADDR", ":8000"),
		AssetsDir:       config.GetEnv("FISH_ASSETS_DIR", filepath.Clean("./web_assets")),
		RecordingPath:   config.GetEnv("FISH_RECORD_PATH", "./recordings"),
		JPEGQuality:     config.GetEnvInt("FISH_JPEG_QUALITY", 80),
		StreamInterval:  config.GetEnvDuration("FISH_STREAM_INTERVAL", 0),
		WarmupInterval:  config.GetEnvDuration("FISH_WARMUP_INTERVAL", 5*time.Second),
		StatusInterval:  2 * time.Second,
		KeepAlive:       30 * time.Second,
		MaxWebRTC:       config.GetEnvInt("FISH_MAX_WEBRTC_CLIENTS", 10),
		ShutdownTimeout: 5 * time.Second,
	}
}

// Validate checks the config.
func (c Config) Validate() error {
	return config.Validate(c)
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.JPEGQuality <= 0 {
		c.JPEGQuality = def.JPEGQuality
	}
	if c.WarmupInterval <= 0 {
		c.WarmupInterval = def.WarmupInterval
	}
	if c.StatusInterval <= 0 {
		c.StatusInterval = def.StatusInterval
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = def.KeepAlive
	}
	if c.RecordingPath == "" {
		c.RecordingPath = def.RecordingPath
	}
	return c
}
