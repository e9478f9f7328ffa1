package record

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"strzcam.com/depthcast/device"
	"strzcam.com/depthcast/frame"
)

// Recorder persists each capture cycle's frames while a recording session is
// active. A session owns, per camera, a color video sink, a combined
// side-by-side video sink and an in-memory depth accumulator that is
// materialized exactly once, at deactivation. Activation and deactivation
// are idempotent; a fresh activation always creates a new session.
type Recorder struct {
	baseDir string
	cameras []device.Identity
	cfg     device.StreamConfig
	newSink SinkFactory

	mu      sync.Mutex
	session *session
}

type session struct {
	dir     string
	cameras map[string]*cameraSinks
}

type cameraSinks struct {
	dir      string
	color    VideoSink
	combined VideoSink
	depth    [][]uint16
	failed   bool
}

func NewRecorder(baseDir string, cameras []device.Identity, cfg device.StreamConfig) *Recorder {
	return NewRecorderWithSinkFactory(baseDir, cameras, cfg, NewFFmpegSink)
}

func NewRecorderWithSinkFactory(baseDir string, cameras []device.Identity, cfg device.StreamConfig, factory SinkFactory) *Recorder {
	return &Recorder{baseDir: baseDir, cameras: cameras, cfg: cfg, newSink: factory}
}

// Active reports whether a recording session is in progress.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session != nil
}

// Activate creates a timestamp-named session directory with per-camera sinks
// and starts recording. When a session is already active its directory is
// returned unchanged.
func (r *Recorder) Activate() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != nil {
		return r.session.dir, nil
	}
	dir := filepath.Join(r.baseDir, "session_"+time.Now().Format("20060102_150405"))
	sess := &session{dir: dir, cameras: make(map[string]*cameraSinks)}
	for _, id := range r.cameras {
		cam, err := r.openCamera(dir, id)
		if err != nil {
			// one camera's sinks failing does not abort the session
			log.Error().Err(err).Str("serial", id.Serial).Msg("opening recording sinks, camera disabled for this session")
			sess.cameras[id.Serial] = &cameraSinks{failed: true}
			continue
		}
		sess.cameras[id.Serial] = cam
	}
	r.session = sess
	log.Info().Str("dir", dir).Int("cameras", len(sess.cameras)).Msg("recording started")
	return dir, nil
}

func (r *Recorder) openCamera(sessionDir string, id device.Identity) (*cameraSinks, error) {
	camDir := filepath.Join(sessionDir, "camera_"+id.Serial)
	if err := os.MkdirAll(camDir, 0755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", camDir, err)
	}
	color, err := r.newSink(filepath.Join(camDir, "rgb.mp4"), r.cfg.Width, r.cfg.Height, r.cfg.FPS)
	if err != nil {
		return nil, err
	}
	combined, err := r.newSink(filepath.Join(camDir, "combined.mp4"), r.cfg.Width*2, r.cfg.Height, r.cfg.FPS)
	if err != nil {
		color.Close()
		return nil, err
	}
	return &cameraSinks{dir: camDir, color: color, combined: combined}, nil
}

// Ingest writes one published batch to the active session. Called once per
// capture cycle from the capture loop; no-op while idle. A write failure
// disables that camera's sinks for the remainder of the session.
func (r *Recorder) Ingest(batch map[string]*frame.Tuple) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return
	}
	for serial, tuple := range batch {
		cam := r.session.cameras[serial]
		if cam == nil || cam.failed {
			continue
		}
		if err := cam.write(tuple, r.cfg); err != nil {
			log.Error().Err(err).Str("serial", serial).Msg("recording sink failed, camera disabled for this session")
			cam.failed = true
		}
	}
}

func (c *cameraSinks) write(t *frame.Tuple, cfg device.StreamConfig) error {
	color := t.Color
	vis := t.DepthVis
	if t.Width != cfg.Width || t.Height != cfg.Height {
		color = frame.Resize(color, t.Width, t.Height, cfg.Width, cfg.Height)
		vis = frame.Resize(vis, t.Width, t.Height, cfg.Width, cfg.Height)
	}
	if err := c.color.WriteFrame(color); err != nil {
		return err
	}
	if err := c.combined.WriteFrame(frame.HStack(color, cfg.Width, vis, cfg.Width, cfg.Height)); err != nil {
		return err
	}
	c.depth = append(c.depth, t.Depth)
	return nil
}

// Deactivate finalizes every sink, materializes each camera's depth
// accumulator as a single array artifact and discards the session. No-op
// when no session is active.
func (r *Recorder) Deactivate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return
	}
	for serial, cam := range r.session.cameras {
		if cam.color != nil {
			if err := cam.color.Close(); err != nil {
				log.Error().Err(err).Str("serial", serial).Msg("closing color sink")
			}
		}
		if cam.combined != nil {
			if err := cam.combined.Close(); err != nil {
				log.Error().Err(err).Str("serial", serial).Msg("closing combined sink")
			}
		}
		if len(cam.depth) > 0 {
			path := filepath.Join(cam.dir, "depth.npy")
			if err := WriteDepthNPY(path, cam.depth, r.cfg.Width, r.cfg.Height); err != nil {
				log.Error().Err(err).Str("serial", serial).Msg("writing depth array")
			}
		}
		cam.depth = nil
	}
	log.Info().Str("dir", r.session.dir).Msg("recording stopped")
	r.session = nil
}
