// Package simulation runs the autoplay clock that moves a match forward in real time.
package simulation

import (
	"context"
	"sync"
	"time"
)

// StepFunc is called once per fixed timestep.
type StepFunc func(step time.Duration)

// Loop calls a StepFunc at a fixed rate, catching up with extra steps after a slow tick.
type Loop struct {
	step     time.Duration
	stepFunc StepFunc
	ticker   *time.Ticker
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
}

// NewLoop configures a loop that targets the provided frames per second.
func NewLoop(targetHz float64, step StepFunc) *Loop {
	if targetHz <= 0 {
		targetHz = 60
	}
	if step == nil {
		step = func(time.Duration) {}
	}
	interval := time.Duration(float64(time.Second) / targetHz)
	if interval <= 0 {
		interval = time.Second / 60
	}
	return &Loop{step: interval, stepFunc: step}
}

// Start begins ticking until the context is cancelled or Stop is invoked. Starting a running
// loop does nothing.
func (l *Loop) Start(ctx context.Context) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done != nil {
		return
	}

	ctx, l.cancel = context.WithCancel(ctx)
	l.ticker = time.NewTicker(l.step)
	l.done = make(chan struct{})
	go l.run(ctx, l.ticker, l.done)
}

func (l *Loop) run(ctx context.Context, ticker *time.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	last := time.Now()
	var accumulator time.Duration
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			//1.- Accumulate elapsed time and run fixed steps while catching up.
			accumulator += now.Sub(last)
			last = now
			for accumulator >= l.step {
				l.stepFunc(l.step)
				accumulator -= l.step
			}
		}
	}
}

// Stop cancels the loop and waits for the goroutine to exit.
func (l *Loop) Stop() {
	if l == nil {
		return
	}
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// StepDuration exposes the configured timestep.
func (l *Loop) StepDuration() time.Duration {
	if l == nil {
		return 0
	}
	return l.step
}
