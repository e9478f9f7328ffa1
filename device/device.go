package device

import (
	"errors"
	"time"
)

var (
	// ErrNoDevices is returned by Enumerate when the source reports zero
	// cameras. Fatal at startup; the caller decides whether to retry.
	ErrNoDevices = errors.New("no depth cameras found")
	// ErrTimeout means no complete frame set arrived within the wait.
	ErrTimeout = errors.New("timed out waiting for frames")
	// ErrDisconnected means the device handle is gone for good.
	ErrDisconnected = errors.New("device disconnected")
)

// Identity names one physical camera. The serial is globally unique; the
// index is assigned at enumeration time and stable for the process lifetime.
type Identity struct {
	Serial string
	Index  int
	Name   string
}

// StreamConfig fixes the geometry and rate both streams are opened with.
type StreamConfig struct {
	Width  int
	Height int
	FPS    int
}

// RawFrames is one frame set pulled from a device. Either plane may be nil
// when the device delivered only one of the two streams within the wait.
type RawFrames struct {
	Color     []byte   // packed BGR24, Width*Height*3 bytes
	Depth     []uint16 // Width*Height samples
	Width     int
	Height    int
	Timestamp float64 // milliseconds since the Unix epoch
}

// Device is the narrow capture capability the pipeline depends on.
type Device interface {
	// WaitFrames blocks up to timeout for the next frame set.
	WaitFrames(timeout time.Duration) (*RawFrames, error)
	Close() error
}

// Registry enumerates attached cameras. It never retries internally.
type Registry interface {
	Enumerate() ([]Identity, error)
}

// Opener opens a camera by identity with a fixed stream configuration.
type Opener interface {
	Open(id Identity, cfg StreamConfig) (Device, error)
}
