package capture

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"strzcam.com/depthcast/device"
	"strzcam.com/depthcast/frame"
)

// ErrIncomplete marks a cycle where only one of the two streams arrived
// within the wait. The frame set is discarded; a tuple is only ever built
// from a color and a depth plane captured together.
var ErrIncomplete = errors.New("incomplete frame set")

// Session owns one open camera and turns its raw frame sets into frame
// tuples. Consecutive timeouts are counted for diagnostics only.
type Session struct {
	ID         device.Identity
	dev        device.Device
	depthScale float64
	timeouts   int
}

func NewSession(id device.Identity, dev device.Device, depthScale float64) *Session {
	return &Session{ID: id, dev: dev, depthScale: depthScale}
}

// CaptureOnce waits up to timeout for a complete color+depth frame set and
// derives the depth visualization while the tuple is built.
func (s *Session) CaptureOnce(timeout time.Duration) (*frame.Tuple, error) {
	raw, err := s.dev.WaitFrames(timeout)
	if err != nil {
		if errors.Is(err, device.ErrTimeout) {
			s.timeouts++
			if s.timeouts%20 == 0 {
				log.Warn().Str("serial", s.ID.Serial).Int("count", s.timeouts).Msg("camera timeout")
			}
		}
		return nil, err
	}
	if len(raw.Color) == 0 || len(raw.Depth) == 0 {
		return nil, ErrIncomplete
	}
	s.timeouts = 0
	return &frame.Tuple{
		Serial:    s.ID.Serial,
		Index:     s.ID.Index,
		Width:     raw.Width,
		Height:    raw.Height,
		Color:     raw.Color,
		Depth:     raw.Depth,
		DepthVis:  frame.ApplyColorMap(raw.Depth, raw.Width, raw.Height, s.depthScale),
		Timestamp: raw.Timestamp,
	}, nil
}

// Timeouts reports the consecutive timeout count since the last success.
func (s *Session) Timeouts() int {
	return s.timeouts
}

func (s *Session) Close() error {
	return s.dev.Close()
}
