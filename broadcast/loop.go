package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"strzcam.com/depthcast/capture"
)

// RecordControl is the slice of the recorder the broadcast side touches.
type RecordControl interface {
	Activate() (string, error)
	Deactivate()
	Active() bool
}

// Loop snapshots the frame cache at a fixed cadence, independent of the
// capture cadence, and fans the encoded message out to every viewer. A tick
// with no viewers or with a never-published cache is skipped.
type Loop struct {
	hub      *Hub
	cache    *capture.Cache
	rec      RecordControl
	interval time.Duration
	quality  int
}

func NewLoop(hub *Hub, cache *capture.Cache, rec RecordControl, interval time.Duration, quality int) *Loop {
	return &Loop{
		hub:      hub,
		cache:    cache,
		rec:      rec,
		interval: interval,
		quality:  quality,
	}
}

// Run ticks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	log.Info().Dur("interval", l.interval).Msg("broadcast loop started")
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("broadcast loop stopped")
			return
		case <-ticker.C:
			l.tick()
		}
	}
}

func (l *Loop) tick() {
	if l.hub.Count() == 0 {
		return
	}
	snapshot, count := l.cache.Snapshot()
	if count == 0 || len(snapshot) == 0 {
		return
	}
	msg := BuildMessage(snapshot, count, l.rec.Active(), l.quality)
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("encoding broadcast message")
		return
	}
	l.hub.Broadcast(payload)
}
