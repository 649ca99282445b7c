package main

import (
	"sync"
	"time"

	"duckreplay/player/internal/logging"
	"duckreplay/player/internal/replay"
	"duckreplay/player/internal/schema"
	"duckreplay/player/internal/session"
)

// feed hands every live event to the recorders and then to the session. Recording failures
// are logged and never interrupt playback.
type feed struct {
	mu        sync.Mutex
	session   *session.Session
	recorder  *replay.Recorder
	bundleDir string
	now       func() time.Time
	bundle    *replay.Writer
	log       *logging.Logger
}

func (f *feed) handle(event schema.Event) error {
	f.record(event)
	return f.session.Ingest(event)
}

func (f *feed) record(event schema.Event) {
	if f.recorder != nil {
		if err := f.recorder.Record(event); err != nil {
			f.log.Warn("replay recording failed", logging.Error(err))
		}
	}
	if f.bundleDir == "" {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	//1.- A game header opens a fresh bundle, closing one left unfinished.
	if _, ok := event.(*schema.GameHeader); ok {
		f.closeBundleLocked()
		writer, _, err := replay.NewWriter(f.bundleDir, "live", f.now)
		if err != nil {
			f.log.Warn("bundle open failed", logging.Error(err))
			return
		}
		f.bundle = writer
	}
	if f.bundle == nil {
		return
	}
	if err := f.bundle.Append(event); err != nil {
		f.log.Warn("bundle append failed", logging.Error(err), logging.String("bundle", f.bundle.Directory()))
	}
	//2.- The game footer completes the bundle.
	if _, ok := event.(*schema.GameFooter); ok {
		f.closeBundleLocked()
	}
}

func (f *feed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeBundleLocked()
}

func (f *feed) closeBundleLocked() {
	if f.bundle == nil {
		return
	}
	if err := f.bundle.Close(); err != nil {
		f.log.Warn("bundle close failed", logging.Error(err), logging.String("bundle", f.bundle.Directory()))
	} else {
		f.log.Info("bundle written", logging.String("bundle", f.bundle.Directory()))
	}
	f.bundle = nil
}
