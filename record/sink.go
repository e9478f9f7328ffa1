package record

// VideoSink consumes BGR24 frames and persists them as one video file.
type VideoSink interface {
	WriteFrame(bgr []byte) error
	Close() error
}

// SinkFactory opens a sink writing width x height frames at fps to path.
type SinkFactory func(path string, width, height, fps int) (VideoSink, error)
