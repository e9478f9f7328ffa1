package device

import (
	"fmt"
	"sync"
	"time"
)

// SimRegistry yields a fixed number of synthetic cameras producing moving
// gradient frames at the configured rate. Used by tests and for running the
// full pipeline without hardware attached.
type SimRegistry struct {
	Cameras int
}

func (r *SimRegistry) Enumerate() ([]Identity, error) {
	if r.Cameras <= 0 {
		return nil, ErrNoDevices
	}
	ids := make([]Identity, r.Cameras)
	for i := range ids {
		ids[i] = Identity{
			Serial: fmt.Sprintf("SIM%04d", i),
			Index:  i,
			Name:   "simulated depth camera",
		}
	}
	return ids, nil
}

func (r *SimRegistry) Open(id Identity, cfg StreamConfig) (Device, error) {
	interval := time.Second / 30
	if cfg.FPS > 0 {
		interval = time.Second / time.Duration(cfg.FPS)
	}
	return &simDevice{id: id, cfg: cfg, interval: interval}, nil
}

type simDevice struct {
	id       Identity
	cfg      StreamConfig
	interval time.Duration

	mu     sync.Mutex
	seq    int
	closed bool
}

func (d *simDevice) WaitFrames(timeout time.Duration) (*RawFrames, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDisconnected
	}
	if d.interval > timeout {
		time.Sleep(timeout)
		return nil, ErrTimeout
	}
	// paced like a real sensor delivering at its configured rate
	time.Sleep(d.interval)
	d.seq++
	return SyntheticFrames(d.seq, d.id.Index, d.cfg.Width, d.cfg.Height), nil
}

func (d *simDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// SyntheticFrames builds one deterministic frame set: a scrolling color
// gradient and a depth ramp, both keyed by sequence number and camera index.
func SyntheticFrames(seq, camIndex, width, height int) *RawFrames {
	color := make([]byte, width*height*3)
	depth := make([]uint16, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			color[i*3] = byte((x + seq) % 256)
			color[i*3+1] = byte((y + seq*2) % 256)
			color[i*3+2] = byte((camIndex*64 + seq) % 256)
			depth[i] = uint16((x + y + seq*16) % 8000)
		}
	}
	return &RawFrames{
		Color:     color,
		Depth:     depth,
		Width:     width,
		Height:    height,
		Timestamp: float64(time.Now().UnixMicro()) / 1000,
	}
}
