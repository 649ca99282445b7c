package simulation

import (
	"context"
	"errors"
	"sync"
	"time"

	"duckreplay/player/internal/logging"
	"duckreplay/player/internal/playback"
)

// Advancer moves the shown match by a fractional number of turns.
type Advancer func(updates float64) error

// Autoplay converts wall-clock ticks into simulation updates at a configurable speed.
type Autoplay struct {
	mu             sync.Mutex
	turnsPerSecond float64
	paused         bool
	lastErr        error

	loop    *Loop
	advance Advancer
	monitor *TickMonitor
	log     *logging.Logger
}

// NewAutoplay drives advance tickRate times per second at turnsPerSecond.
func NewAutoplay(tickRate, turnsPerSecond float64, advance Advancer, log *logging.Logger) *Autoplay {
	if log == nil {
		log = logging.L()
	}
	a := &Autoplay{
		turnsPerSecond: turnsPerSecond,
		advance:        advance,
		monitor:        NewTickMonitor(),
		log:            log,
	}
	a.loop = NewLoop(tickRate, a.tick)
	return a
}

// Start runs the loop in the background until ctx ends or Stop is called.
func (a *Autoplay) Start(ctx context.Context) { a.loop.Start(ctx) }

// Stop halts the loop and logs the observed tick timings.
func (a *Autoplay) Stop() {
	a.loop.Stop()
	report := a.monitor.Report()
	a.log.Info("autoplay stopped",
		logging.Int("ticks", report.Ticks),
		logging.Int("overruns", report.Overruns),
		logging.String("average", report.Average.String()),
		logging.String("slowest", report.Slowest.String()))
}

// SetSpeed changes the playback speed. Negative speeds play backwards.
func (a *Autoplay) SetSpeed(turnsPerSecond float64) {
	a.mu.Lock()
	a.turnsPerSecond = turnsPerSecond
	a.mu.Unlock()
}

// Pause stops advancing without stopping the loop.
func (a *Autoplay) Pause() {
	a.mu.Lock()
	a.paused = true
	a.mu.Unlock()
}

// Resume continues after Pause or after an advance error.
func (a *Autoplay) Resume() {
	a.mu.Lock()
	a.paused = false
	a.lastErr = nil
	a.mu.Unlock()
}

// Paused reports whether ticks are currently ignored, and the error that paused playback if any.
func (a *Autoplay) Paused() (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.paused, a.lastErr
}

// Monitor exposes the tick timing statistics.
func (a *Autoplay) Monitor() *TickMonitor { return a.monitor }

func (a *Autoplay) tick(step time.Duration) {
	a.mu.Lock()
	if a.paused || a.advance == nil {
		a.mu.Unlock()
		return
	}
	updates := step.Seconds() * a.turnsPerSecond
	a.mu.Unlock()

	//1.- Time the advance so slow turns show up in the monitor.
	started := time.Now()
	err := a.advance(updates)
	a.monitor.Observe(time.Since(started), step, updates)
	if err == nil || errors.Is(err, playback.ErrNotPlayable) {
		return
	}

	//2.- Any other failure stops playback until someone resumes it.
	a.mu.Lock()
	a.paused = true
	a.lastErr = err
	a.mu.Unlock()
	a.log.Error("autoplay paused", logging.Error(err))
}
