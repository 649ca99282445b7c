package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"duckreplay/player/internal/config"
	"duckreplay/player/internal/events"
	httpapi "duckreplay/player/internal/http"
	"duckreplay/player/internal/logging"
	"duckreplay/player/internal/playback"
	"duckreplay/player/internal/replay"
	"duckreplay/player/internal/session"
	"duckreplay/player/internal/simulation"
)

// recording groups the components that exist only when a replay directory is configured.
type recording struct {
	recorder *replay.Recorder
	cleaner  *replay.Cleaner
}

// opsSources is everything the operational endpoint reports on. Nil members are skipped.
type opsSources struct {
	session  *session.Session
	stream   *events.Stream
	record   *recording
	autoplay *simulation.Autoplay
}

func (s opsSources) ready() error {
	return s.session.Do(func(*playback.Game) error { return nil })
}

func (s opsSources) roll(name string) (string, error) {
	location, err := s.record.recorder.Roll(name)
	if errors.Is(err, replay.ErrNothingRecorded) {
		return "", httpapi.ErrNothingToRoll
	}
	return location, err
}

func (s opsSources) samples() []httpapi.Sample {
	var samples []httpapi.Sample
	gauge := func(name, help string, value float64) {
		samples = append(samples, httpapi.Sample{Name: name, Help: help, Kind: "gauge", Value: value})
	}
	counter := func(name, help string, value float64) {
		samples = append(samples, httpapi.Sample{Name: name, Help: help, Kind: "counter", Value: value})
	}

	loaded := 0.0
	_ = s.session.Do(func(g *playback.Game) error {
		loaded = 1
		gauge("replayd_matches", "Matches in the loaded game.", float64(len(g.Matches)))
		return nil
	})
	gauge("replayd_game_loaded", "Whether a game is available for playback.", loaded)
	_ = s.session.DoMatch(func(m *playback.Match) error {
		gauge("replayd_current_match", "Index of the match on screen.", float64(m.Index()))
		gauge("replayd_max_turn", "Turns received for the current match.", float64(m.MaxTurn()))
		if turn := m.CurrentTurn(); turn != nil {
			gauge("replayd_current_turn", "Turn on screen.", float64(turn.Number))
			gauge("replayd_bodies", "Robots on the board at the current turn.", float64(turn.Bodies.Len()))
		}
		return nil
	})
	if s.stream != nil {
		gauge("replayd_events_retained", "Notifications awaiting acknowledgement.", float64(s.stream.Retained()))
	}
	if s.autoplay != nil {
		tick := s.autoplay.Monitor().Report()
		counter("replayd_autoplay_ticks_total", "Autoplay ticks that advanced the match.", float64(tick.Ticks))
		counter("replayd_autoplay_overruns_total", "Autoplay ticks slower than their step.", float64(tick.Overruns))
		gauge("replayd_autoplay_utilisation", "Average share of the tick budget spent advancing.", tick.Utilisation())
		gauge("replayd_autoplay_tick_max_seconds", "Slowest observed autoplay tick.", tick.Slowest.Seconds())
	}
	if s.record != nil {
		rec := s.record.recorder.Snapshot()
		gauge("replayd_recorder_buffered_events", "Events buffered for the game being recorded.", float64(rec.BufferedEvents))
		counter("replayd_recorder_rolls_total", "Replay files written.", float64(rec.Rolls))
		store := s.record.cleaner.Stats()
		gauge("replayd_storage_games", "Recorded games on disk.", float64(store.Games))
		gauge("replayd_storage_bytes", "Bytes used by recorded games.", float64(store.Bytes))
		counter("replayd_storage_removed_total", "Recorded games removed by retention.", float64(store.Removed))
	}
	return samples
}

// startOps serves the operational endpoint until ctx ends. An empty address disables it.
func startOps(ctx context.Context, cfg config.OpsConfig, src opsSources, log *logging.Logger, wg *sync.WaitGroup) error {
	if cfg.Address == "" {
		return nil
	}
	listener, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Address, err)
	}

	opts := httpapi.Options{
		Logger:      log.With(logging.String("component", "ops")),
		Readiness:   src.ready,
		Metrics:     src.samples,
		AdminToken:  cfg.AdminToken,
		RateLimiter: httpapi.NewTokenBucket(cfg.RollWindow, cfg.RollLimit, nil),
	}
	if src.record != nil {
		opts.Roller = httpapi.RollerFunc(src.roll)
	}
	mux := http.NewServeMux()
	httpapi.NewHandlerSet(opts).Register(mux)
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	wg.Add(2)
	go func() {
		defer wg.Done()
		log.Info("ops endpoint listening", logging.String("address", advertisedAddress(listener.Addr().String())))
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("ops endpoint failed", logging.Error(err))
		}
	}()
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	return nil
}
