package simulation

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"duckreplay/player/internal/logging"
	"duckreplay/player/internal/playback"
)

type recorder struct {
	mu      sync.Mutex
	updates []float64
	err     error
}

func (r *recorder) advance(updates float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, updates)
	return r.err
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestAutoplayScalesUpdatesBySpeed(t *testing.T) {
	rec := &recorder{}
	a := NewAutoplay(50, 10, rec.advance, logging.NewTestLogger())

	//1.- One 20ms tick at 10 turns per second is a fifth of a turn.
	a.tick(20 * time.Millisecond)
	a.SetSpeed(-5)
	a.tick(20 * time.Millisecond)
	if len(rec.updates) != 2 || !near(rec.updates[0], 0.2) || !near(rec.updates[1], -0.1) {
		t.Fatalf("unexpected updates %v", rec.updates)
	}

	//2.- Paused autoplay ignores ticks.
	a.Pause()
	a.tick(20 * time.Millisecond)
	if len(rec.updates) != 2 {
		t.Fatalf("paused autoplay advanced")
	}
}

func TestAutoplayPausesOnError(t *testing.T) {
	rec := &recorder{err: playback.ErrMatchCorrupted}
	a := NewAutoplay(50, 10, rec.advance, logging.NewTestLogger())
	a.tick(20 * time.Millisecond)
	paused, err := a.Paused()
	if !paused || !errors.Is(err, playback.ErrMatchCorrupted) {
		t.Fatalf("expected autoplay to pause on a corrupted match, got %v %v", paused, err)
	}

	a.Resume()
	if paused, err := a.Paused(); paused || err != nil {
		t.Fatalf("resume did not clear the pause")
	}

	//1.- Map editor games are skipped without pausing.
	rec.err = playback.ErrNotPlayable
	a.tick(20 * time.Millisecond)
	if paused, _ := a.Paused(); paused {
		t.Fatalf("ErrNotPlayable should not pause autoplay")
	}
}

func TestAutoplayRunsInBackground(t *testing.T) {
	rec := &recorder{}
	a := NewAutoplay(200, 10, rec.advance, logging.NewTestLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Start(ctx)
	time.Sleep(60 * time.Millisecond)
	a.Stop()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.updates) == 0 {
		t.Fatalf("expected background ticks")
	}
	for _, u := range rec.updates {
		if !near(u, 0.05) {
			t.Fatalf("unexpected update %v", u)
		}
	}
}
