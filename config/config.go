package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"strzcam.com/depthcast/device"
)

// Config is the full server configuration, read from DEPTHCAST_* environment
// variables. Defaults match the stream geometry and cadences the cameras are
// known to support.
type Config struct {
	Host          string        `envconfig:"HOST" default:"0.0.0.0"`
	Port          int           `envconfig:"PORT" default:"8765"`
	Source        string        `envconfig:"SOURCE" default:"shm"` // shm or sim
	ShmDir        string        `envconfig:"SHM_DIR" default:"/dev/shm/depthcast"`
	SimCameras    int           `envconfig:"SIM_CAMERAS" default:"2"`
	Width         int           `envconfig:"WIDTH" default:"640"`
	Height        int           `envconfig:"HEIGHT" default:"480"`
	FPS           int           `envconfig:"FPS" default:"30"`
	FrameTimeout  time.Duration `envconfig:"FRAME_TIMEOUT" default:"1s"`
	CaptureDelay  time.Duration `envconfig:"CAPTURE_DELAY" default:"16ms"`
	BroadcastRate int           `envconfig:"BROADCAST_RATE" default:"30"`
	JPEGQuality   int           `envconfig:"JPEG_QUALITY" default:"90"`
	DepthScale    float64       `envconfig:"DEPTH_SCALE" default:"0.03"`
	RecordingsDir string        `envconfig:"RECORDINGS_DIR" default:"recordings"`
	LogLevel      string        `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty     bool          `envconfig:"LOG_PRETTY" default:"true"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("depthcast", &cfg); err != nil {
		return nil, err
	}
	if cfg.BroadcastRate <= 0 {
		return nil, fmt.Errorf("broadcast rate must be positive, got %d", cfg.BroadcastRate)
	}
	return &cfg, nil
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) Stream() device.StreamConfig {
	return device.StreamConfig{Width: c.Width, Height: c.Height, FPS: c.FPS}
}

func (c *Config) BroadcastInterval() time.Duration {
	return time.Second / time.Duration(c.BroadcastRate)
}
