package capture

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"strzcam.com/depthcast/device"
	"strzcam.com/depthcast/frame"
)

// Recorder is the slice of the recording subsystem the capture loop feeds.
// Ingest must be a no-op while no recording session is active.
type Recorder interface {
	Ingest(batch map[string]*frame.Tuple)
}

// Loop drives every open capture session once per cycle, publishes the
// cycle's complete frame sets to the cache as one batch, and hands the same
// batch to the recorder. A disconnected camera is dropped from the active
// set; timeouts and incomplete frame sets are retried next cycle.
type Loop struct {
	cache    *Cache
	rec      Recorder
	sessions []*Session
	timeout  time.Duration
	delay    time.Duration
}

func NewLoop(cache *Cache, rec Recorder, sessions []*Session, timeout, delay time.Duration) *Loop {
	return &Loop{
		cache:    cache,
		rec:      rec,
		sessions: sessions,
		timeout:  timeout,
		delay:    delay,
	}
}

// Run executes capture cycles until ctx is cancelled. An in-flight wait is
// allowed to finish or time out naturally; the loop only exits between
// cycles. All sessions are closed on the way out.
func (l *Loop) Run(ctx context.Context) {
	log.Info().Int("cameras", len(l.sessions)).Msg("capture loop started")
	defer l.closeAll()
	for {
		batch := make(map[string]*frame.Tuple)
		live := l.sessions[:0]
		for _, s := range l.sessions {
			tuple, err := s.CaptureOnce(l.timeout)
			switch {
			case err == nil:
				batch[s.ID.Serial] = tuple
				live = append(live, s)
			case errors.Is(err, device.ErrDisconnected):
				log.Error().Str("serial", s.ID.Serial).Msg("camera disconnected, dropping from capture")
				if cerr := s.Close(); cerr != nil {
					log.Warn().Err(cerr).Str("serial", s.ID.Serial).Msg("closing disconnected camera")
				}
				l.cache.Remove(s.ID.Serial)
			default:
				// timeout or incomplete, retry next cycle
				live = append(live, s)
			}
		}
		l.sessions = live
		if len(batch) > 0 {
			l.cache.Publish(batch)
			if l.rec != nil {
				l.rec.Ingest(batch)
			}
		}
		select {
		case <-ctx.Done():
			log.Info().Msg("capture loop stopped")
			return
		case <-time.After(l.delay):
		}
	}
}

func (l *Loop) closeAll() {
	for _, s := range l.sessions {
		if err := s.Close(); err != nil {
			log.Warn().Err(err).Str("serial", s.ID.Serial).Msg("closing camera")
		}
	}
}
