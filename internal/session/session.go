// Package session guards the one Game shown by the daemon. Playback state is single-writer, so
// every adapter (live feed, control service, autoplay) goes through Session.
package session

import (
	"errors"
	"sync"

	"duckreplay/player/internal/logging"
	"duckreplay/player/internal/playback"
	"duckreplay/player/internal/schema"
)

// ErrNoGame is returned by Do before any game was loaded or streamed.
var ErrNoGame = errors.New("no game loaded")

// Session owns at most one Game at a time.
type Session struct {
	mu   sync.Mutex
	game *playback.Game
	opts []playback.Option
	log  *logging.Logger
}

// New returns an empty session. opts are applied to every game it creates.
func New(log *logging.Logger, opts ...playback.Option) *Session {
	if log == nil {
		log = logging.L()
	}
	return &Session{log: log, opts: append([]playback.Option{playback.WithLogger(log)}, opts...)}
}

// Ingest feeds one streamed event. A game header starts a new game when no game is shown or
// the shown one already finished; everything else goes to the current game.
func (s *Session) Ingest(event schema.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if header, ok := event.(*schema.GameHeader); ok && (s.game == nil || s.game.Winner() != nil) {
		g, err := playback.NewGame(header, s.opts...)
		if err != nil {
			return err
		}
		s.replaceLocked(g)
		return nil
	}
	if s.game == nil {
		return playback.ErrFirstEvent
	}
	return s.game.AddEvent(event)
}

// Load replaces the current game with a complete replay file.
func (s *Session) Load(raw []byte) error {
	g, err := playback.LoadFullGameRaw(raw, s.opts...)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.replaceLocked(g)
	s.mu.Unlock()
	return nil
}

// LoadMap replaces the current game with a map editor game holding the given map file.
func (s *Session) LoadMap(raw []byte) error {
	g, _, err := playback.LoadMapFile(raw, s.opts...)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.replaceLocked(g)
	s.mu.Unlock()
	return nil
}

func (s *Session) replaceLocked(g *playback.Game) {
	if s.game != nil {
		s.log.Info("replacing game", logging.String("previous", s.game.ID), logging.String("game_id", g.ID))
	} else {
		s.log.Info("game loaded", logging.String("game_id", g.ID))
	}
	s.game = g
}

// Do runs fn with exclusive access to the current game. fn must not keep g or anything
// reachable from it after returning.
func (s *Session) Do(fn func(g *playback.Game) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.game == nil {
		return ErrNoGame
	}
	return fn(s.game)
}

// DoMatch runs fn on the current match of the current game.
func (s *Session) DoMatch(fn func(m *playback.Match) error) error {
	return s.Do(func(g *playback.Game) error {
		m := g.CurrentMatch()
		if m == nil {
			return playback.ErrNoMatch
		}
		return fn(m)
	})
}
