package record

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"strconv"
)

// NewFFmpegSink starts an ffmpeg process encoding raw BGR24 frames from
// stdin into an H.264 mp4 at path.
func NewFFmpegSink(path string, width, height, fps int) (VideoSink, error) {
	args := []string{
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "bgr24",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-framerate", strconv.Itoa(fps),
		"-i", "-",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-profile:v", "baseline",
		"-level", "3.1",
		"-bf", "0",
		path,
	}
	cmd := exec.Command("ffmpeg", args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting ffmpeg for %s: %w", path, err)
	}
	return &ffmpegSink{cmd: cmd, stdin: stdin, stderr: &stderr, path: path}, nil
}

type ffmpegSink struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *bytes.Buffer
	path   string
}

func (s *ffmpegSink) WriteFrame(bgr []byte) error {
	if _, err := s.stdin.Write(bgr); err != nil {
		return fmt.Errorf("writing frame to ffmpeg: %w", err)
	}
	return nil
}

func (s *ffmpegSink) Close() error {
	s.stdin.Close()
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg exited for %s: %w (%s)", s.path, err, s.stderr.String())
	}
	return nil
}
