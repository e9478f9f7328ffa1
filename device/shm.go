package device

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const shmFilePrefix = "cam_"
const shmHeaderSize = 24

// ShmRegistry discovers cameras published by a bridge process as frame files
// in a shared directory, typically under /dev/shm. Each camera is one file
// named cam_<serial>, rewritten atomically per frame.
type ShmRegistry struct {
	Dir string
}

func (r *ShmRegistry) Enumerate() ([]Identity, error) {
	entries, err := os.ReadDir(r.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoDevices
		}
		return nil, fmt.Errorf("reading %s: %w", r.Dir, err)
	}
	var ids []Identity
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), shmFilePrefix) {
			continue
		}
		if strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		serial := strings.TrimPrefix(entry.Name(), shmFilePrefix)
		ids = append(ids, Identity{
			Serial: serial,
			Index:  len(ids),
			Name:   fmt.Sprintf("shm bridge camera %s", serial),
		})
	}
	if len(ids) == 0 {
		return nil, ErrNoDevices
	}
	return ids, nil
}

func (r *ShmRegistry) Open(id Identity, cfg StreamConfig) (Device, error) {
	path := filepath.Join(r.Dir, shmFilePrefix+id.Serial)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory, not the file: the bridge replaces the file by
	// rename, which would silently drop a file-level watch.
	if err := watcher.Add(r.Dir); err != nil {
		watcher.Close()
		return nil, err
	}
	return &shmDevice{path: path, watcher: watcher, cfg: cfg}, nil
}

type shmDevice struct {
	path          string
	watcher       *fsnotify.Watcher
	cfg           StreamConfig
	lastTimestamp float64
}

func (d *shmDevice) WaitFrames(timeout time.Duration) (*RawFrames, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case event, ok := <-d.watcher.Events:
			if !ok {
				return nil, ErrDisconnected
			}
			if event.Name != d.path {
				continue
			}
			if event.Op&fsnotify.Remove == fsnotify.Remove {
				return nil, ErrDisconnected
			}
			if event.Op&fsnotify.Write != fsnotify.Write && event.Op&fsnotify.Create != fsnotify.Create {
				continue
			}
			raw, err := ReadFrameFile(d.path)
			if err != nil {
				if os.IsNotExist(err) {
					return nil, ErrDisconnected
				}
				// partial write, the rename event will follow
				continue
			}
			// skip the same frame delivered by a duplicate event
			if raw.Timestamp == d.lastTimestamp {
				continue
			}
			d.lastTimestamp = raw.Timestamp
			return raw, nil
		case _, ok := <-d.watcher.Errors:
			if !ok {
				return nil, ErrDisconnected
			}
		case <-deadline.C:
			return nil, ErrTimeout
		}
	}
}

func (d *shmDevice) Close() error {
	return d.watcher.Close()
}

// ReadFrameFile parses one frame set from the bridge layout:
// u32 width | u32 height | f64 timestampMs | u32 colorLen | u32 depthLen,
// all little-endian, followed by the color and depth payloads. A zero
// length means that plane was not delivered this cycle.
func ReadFrameFile(path string) (*RawFrames, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < shmHeaderSize {
		return nil, fmt.Errorf("frame file too short: %d bytes", len(data))
	}
	width := int(binary.LittleEndian.Uint32(data[0:4]))
	height := int(binary.LittleEndian.Uint32(data[4:8]))
	timestamp := math.Float64frombits(binary.LittleEndian.Uint64(data[8:16]))
	colorLen := int(binary.LittleEndian.Uint32(data[16:20]))
	depthLen := int(binary.LittleEndian.Uint32(data[20:24]))
	if len(data) < shmHeaderSize+colorLen+depthLen {
		return nil, fmt.Errorf("frame file truncated: want %d bytes, have %d",
			shmHeaderSize+colorLen+depthLen, len(data))
	}
	if colorLen != 0 && colorLen != width*height*3 {
		return nil, fmt.Errorf("color payload %d bytes does not match %dx%d",
			colorLen, width, height)
	}
	if depthLen != 0 && depthLen != width*height*2 {
		return nil, fmt.Errorf("depth payload %d bytes does not match %dx%d",
			depthLen, width, height)
	}
	raw := &RawFrames{Width: width, Height: height, Timestamp: timestamp}
	if colorLen > 0 {
		raw.Color = append([]byte(nil), data[shmHeaderSize:shmHeaderSize+colorLen]...)
	}
	if depthLen > 0 {
		depth := make([]uint16, depthLen/2)
		for i := range depth {
			off := shmHeaderSize + colorLen + i*2
			depth[i] = binary.LittleEndian.Uint16(data[off : off+2])
		}
		raw.Depth = depth
	}
	return raw, nil
}

// WriteFrameFile publishes one frame set in the bridge layout. The write goes
// through a temp file and rename so readers never observe a half-written frame.
func WriteFrameFile(path string, raw *RawFrames) error {
	buf := make([]byte, shmHeaderSize+len(raw.Color)+len(raw.Depth)*2)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(raw.Width))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(raw.Height))
	binary.LittleEndian.PutUint64(buf[8:16], math.Float64bits(raw.Timestamp))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(raw.Color)))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(len(raw.Depth)*2))
	copy(buf[shmHeaderSize:], raw.Color)
	for i, d := range raw.Depth {
		binary.LittleEndian.PutUint16(buf[shmHeaderSize+len(raw.Color)+i*2:], d)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
