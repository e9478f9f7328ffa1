package record

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strzcam.com/depthcast/device"
	"strzcam.com/depthcast/frame"
)

type memorySink struct {
	frames  [][]byte
	closed  bool
	failing bool
}

func (s *memorySink) WriteFrame(bgr []byte) error {
	if s.failing {
		return errors.New("disk full")
	}
	s.frames = append(s.frames, append([]byte(nil), bgr...))
	return nil
}

func (s *memorySink) Close() error {
	s.closed = true
	return nil
}

type sinkMap map[string]*memorySink

func (m sinkMap) factory(path string, width, height, fps int) (VideoSink, error) {
	sink := &memorySink{}
	m[path] = sink
	return sink, nil
}

var testCfg = device.StreamConfig{Width: 4, Height: 2, FPS: 30}

func testIdentities() []device.Identity {
	return []device.Identity{
		{Serial: "AAA", Index: 0},
		{Serial: "BBB", Index: 1},
	}
}

func testTuple(serial string, seq int) *frame.Tuple {
	depth := make([]uint16, testCfg.Width*testCfg.Height)
	for i := range depth {
		depth[i] = uint16(seq)
	}
	return &frame.Tuple{
		Serial:   serial,
		Width:    testCfg.Width,
		Height:   testCfg.Height,
		Color:    make([]byte, testCfg.Width*testCfg.Height*3),
		Depth:    depth,
		DepthVis: make([]byte, testCfg.Width*testCfg.Height*3),
	}
}

func batchFor(seq int, serials ...string) map[string]*frame.Tuple {
	batch := make(map[string]*frame.Tuple)
	for _, serial := range serials {
		batch[serial] = testTuple(serial, seq)
	}
	return batch
}

func TestActivateCreatesSessionLayout(t *testing.T) {
	dir := t.TempDir()
	sinks := sinkMap{}
	r := NewRecorderWithSinkFactory(dir, testIdentities(), testCfg, sinks.factory)

	sessionDir, err := r.Activate()
	require.NoError(t, err)
	assert.True(t, r.Active())

	for _, id := range testIdentities() {
		camDir := filepath.Join(sessionDir, "camera_"+id.Serial)
		info, err := os.Stat(camDir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
		assert.Contains(t, sinks, filepath.Join(camDir, "rgb.mp4"))
		assert.Contains(t, sinks, filepath.Join(camDir, "combined.mp4"))
	}
}

func TestActivateIsIdempotentWhileActive(t *testing.T) {
	sinks := sinkMap{}
	r := NewRecorderWithSinkFactory(t.TempDir(), testIdentities(), testCfg, sinks.factory)

	first, err := r.Activate()
	require.NoError(t, err)
	second, err := r.Activate()
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, sinks, 4, "a second activation must not open new sinks")
}

func TestDeactivateWhenIdleIsNoop(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorderWithSinkFactory(dir, testIdentities(), testCfg, sinkMap{}.factory)

	r.Deactivate()
	assert.False(t, r.Active())
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "idle deactivation must not create artifacts")
}

func TestIngestWhileIdleIsNoop(t *testing.T) {
	sinks := sinkMap{}
	r := NewRecorderWithSinkFactory(t.TempDir(), testIdentities(), testCfg, sinks.factory)
	r.Ingest(batchFor(1, "AAA", "BBB"))
	assert.Empty(t, sinks)
}

func TestRecordingRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sinks := sinkMap{}
	r := NewRecorderWithSinkFactory(dir, testIdentities(), testCfg, sinks.factory)

	sessionDir, err := r.Activate()
	require.NoError(t, err)

	const cycles = 10
	for i := 0; i < cycles; i++ {
		r.Ingest(batchFor(i, "AAA", "BBB"))
	}
	r.Deactivate()
	assert.False(t, r.Active())

	for _, id := range testIdentities() {
		camDir := filepath.Join(sessionDir, "camera_"+id.Serial)

		color := sinks[filepath.Join(camDir, "rgb.mp4")]
		require.NotNil(t, color)
		assert.Len(t, color.frames, cycles)
		assert.True(t, color.closed)

		combined := sinks[filepath.Join(camDir, "combined.mp4")]
		require.NotNil(t, combined)
		assert.Len(t, combined.frames, cycles)
		for _, f := range combined.frames {
			assert.Len(t, f, testCfg.Width*2*testCfg.Height*3, "combined frames are side by side")
		}

		count, height, width, payload := readNPY(t, filepath.Join(camDir, "depth.npy"))
		assert.Equal(t, cycles, count)
		assert.Equal(t, testCfg.Height, height)
		assert.Equal(t, testCfg.Width, width)
		// frames are stacked in ingestion order
		frameSize := testCfg.Width * testCfg.Height
		for i := 0; i < cycles; i++ {
			assert.Equal(t, uint16(i), payload[i*frameSize])
		}
	}
}

func TestSinkFailureDisablesOneCamera(t *testing.T) {
	dir := t.TempDir()
	sinks := sinkMap{}
	r := NewRecorderWithSinkFactory(dir, testIdentities(), testCfg, sinks.factory)

	sessionDir, err := r.Activate()
	require.NoError(t, err)

	r.Ingest(batchFor(0, "AAA", "BBB"))
	sinks[filepath.Join(sessionDir, "camera_AAA", "rgb.mp4")].failing = true
	for i := 1; i < 5; i++ {
		r.Ingest(batchFor(i, "AAA", "BBB"))
	}
	r.Deactivate()

	// AAA stops at the frame before the failure, BBB records everything
	assert.Len(t, sinks[filepath.Join(sessionDir, "camera_AAA", "rgb.mp4")].frames, 1)
	assert.Len(t, sinks[filepath.Join(sessionDir, "camera_BBB", "rgb.mp4")].frames, 5)
}

func TestFreshActivationCreatesNewSession(t *testing.T) {
	sinks := sinkMap{}
	r := NewRecorderWithSinkFactory(t.TempDir(), testIdentities(), testCfg, sinks.factory)

	_, err := r.Activate()
	require.NoError(t, err)
	r.Ingest(batchFor(0, "AAA"))
	r.Deactivate()

	_, err = r.Activate()
	require.NoError(t, err)
	defer r.Deactivate()
	assert.True(t, r.Active())
}

func TestIngestUnknownCameraIsIgnored(t *testing.T) {
	sinks := sinkMap{}
	r := NewRecorderWithSinkFactory(t.TempDir(), testIdentities(), testCfg, sinks.factory)
	_, err := r.Activate()
	require.NoError(t, err)
	defer r.Deactivate()

	r.Ingest(batchFor(0, "UNKNOWN"))
	for _, sink := range sinks {
		assert.Empty(t, sink.frames)
	}
}
