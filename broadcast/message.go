package broadcast

import (
	"encoding/base64"
	"sort"

	"github.com/rs/zerolog/log"

	"strzcam.com/depthcast/frame"
)

// Message is the per-tick fan-out payload sent to every viewer.
type Message struct {
	FrameNumber uint64          `json:"frame_number"`
	IsRecording bool            `json:"is_recording"`
	SyncDiff    float64         `json:"sync_diff"`
	NumCameras  int             `json:"num_cameras"`
	Cameras     []CameraPayload `json:"cameras"`
}

type CameraPayload struct {
	Index     int     `json:"index"`
	Serial    string  `json:"serial"`
	Color     string  `json:"color"`
	Depth     string  `json:"depth"`
	Timestamp float64 `json:"timestamp"`
}

// Control is one viewer -> server command. Unknown actions are ignored.
type Control struct {
	Action string `json:"action"`
}

const (
	actionStartRecord = "start_record"
	actionStopRecord  = "stop_record"
)

// BuildMessage assembles one broadcast message from a cache snapshot,
// JPEG-encoding each camera's color and depth-visualization images.
func BuildMessage(snapshot map[string]*frame.Tuple, count uint64, recording bool, quality int) Message {
	msg := Message{
		FrameNumber: count,
		IsRecording: recording,
		SyncDiff:    SyncDiff(snapshot),
		Cameras:     make([]CameraPayload, 0, len(snapshot)),
	}
	for _, t := range snapshot {
		color, err := frame.EncodeJPEG(t.Color, t.Width, t.Height, quality)
		if err != nil {
			log.Error().Err(err).Str("serial", t.Serial).Msg("encoding color frame")
			continue
		}
		depth, err := frame.EncodeJPEG(t.DepthVis, t.Width, t.Height, quality)
		if err != nil {
			log.Error().Err(err).Str("serial", t.Serial).Msg("encoding depth frame")
			continue
		}
		msg.Cameras = append(msg.Cameras, CameraPayload{
			Index:     t.Index,
			Serial:    t.Serial,
			Color:     base64.StdEncoding.EncodeToString(color),
			Depth:     base64.StdEncoding.EncodeToString(depth),
			Timestamp: t.Timestamp,
		})
	}
	sort.Slice(msg.Cameras, func(i, j int) bool {
		return msg.Cameras[i].Index < msg.Cameras[j].Index
	})
	msg.NumCameras = len(msg.Cameras)
	return msg
}

// SyncDiff reports the spread between the newest and oldest camera
// timestamps in a snapshot, in milliseconds. Zero with at most one camera.
func SyncDiff(snapshot map[string]*frame.Tuple) float64 {
	if len(snapshot) < 2 {
		return 0
	}
	first := true
	var oldest, newest float64
	for _, t := range snapshot {
		if first {
			oldest, newest = t.Timestamp, t.Timestamp
			first = false
			continue
		}
		if t.Timestamp < oldest {
			oldest = t.Timestamp
		}
		if t.Timestamp > newest {
			newest = t.Timestamp
		}
	}
	return newest - oldest
}
