package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"strzcam.com/depthcast/broadcast"
	"strzcam.com/depthcast/capture"
	"strzcam.com/depthcast/config"
	"strzcam.com/depthcast/device"
	"strzcam.com/depthcast/record"
)

func main() {
	godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration")
	}
	setupLogging(cfg)

	registry, opener := buildSource(cfg)
	var ids []device.Identity
	err = retry.Do(
		func() error {
			var err error
			ids, err = registry.Enumerate()
			return err
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("camera enumeration failed")
	}
	for _, id := range ids {
		log.Info().Int("index", id.Index).Str("serial", id.Serial).Str("name", id.Name).Msg("found camera")
	}

	var sessions []*capture.Session
	var opened []device.Identity
	for _, id := range ids {
		dev, err := opener.Open(id, cfg.Stream())
		if err != nil {
			log.Error().Err(err).Str("serial", id.Serial).Msg("failed to open camera, skipping")
			continue
		}
		sessions = append(sessions, capture.NewSession(id, dev, cfg.DepthScale))
		opened = append(opened, id)
	}
	if len(sessions) == 0 {
		log.Fatal().Msg("no cameras could be opened")
	}

	cache := capture.NewCache()
	recorder := record.NewRecorder(cfg.RecordingsDir, opened, cfg.Stream())
	hub := broadcast.NewHub()

	ctx, cancel := context.WithCancel(context.Background())
	captureLoop := capture.NewLoop(cache, recorder, sessions, cfg.FrameTimeout, cfg.CaptureDelay)
	broadcastLoop := broadcast.NewLoop(hub, cache, recorder, cfg.BroadcastInterval(), cfg.JPEGQuality)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		captureLoop.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		broadcastLoop.Run(ctx)
	}()

	server := broadcast.NewServer(hub, recorder, cfg.RecordingsDir)
	httpServer := &http.Server{Addr: cfg.ListenAddr(), Handler: server.Router()}
	go func() {
		log.Info().Str("addr", cfg.ListenAddr()).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")

	cancel()
	wg.Wait()
	recorder.Deactivate()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func buildSource(cfg *config.Config) (device.Registry, device.Opener) {
	if cfg.Source == "sim" {
		r := &device.SimRegistry{Cameras: cfg.SimCameras}
		return r, r
	}
	r := &device.ShmRegistry{Dir: cfg.ShmDir}
	return r, r
}
