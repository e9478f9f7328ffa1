// simbridge publishes synthetic camera frames in the shared-memory bridge
// layout so the server can run end to end without depth cameras attached.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"strzcam.com/depthcast/device"
)

func main() {
	dir := flag.String("dir", "/dev/shm/depthcast", "bridge directory")
	cameras := flag.Int("cameras", 2, "number of synthetic cameras")
	width := flag.Int("width", 640, "frame width")
	height := flag.Int("height", 480, "frame height")
	fps := flag.Int("fps", 30, "frames per second")
	flag.Parse()

	if err := os.MkdirAll(*dir, 0755); err != nil {
		log.Fatal().Err(err).Str("dir", *dir).Msg("creating bridge directory")
	}
	paths := make([]string, *cameras)
	for i := range paths {
		paths[i] = filepath.Join(*dir, fmt.Sprintf("cam_SIM%04d", i))
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	ticker := time.NewTicker(time.Second / time.Duration(*fps))
	defer ticker.Stop()

	log.Info().Int("cameras", *cameras).Str("dir", *dir).Msg("simbridge publishing frames")
	seq := 0
	for {
		select {
		case <-sig:
			for _, path := range paths {
				os.Remove(path)
			}
			log.Info().Msg("simbridge stopped")
			return
		case <-ticker.C:
			seq++
			for i, path := range paths {
				raw := device.SyntheticFrames(seq, i, *width, *height)
				if err := device.WriteFrameFile(path, raw); err != nil {
					log.Error().Err(err).Str("path", path).Msg("writing frame file")
				}
			}
		}
	}
}
