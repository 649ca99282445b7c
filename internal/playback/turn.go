package playback

import (
	"fmt"

	"duckreplay/player/internal/actions"
	"duckreplay/player/internal/bodies"
	"duckreplay/player/internal/gamemap"
	"duckreplay/player/internal/logging"
	"duckreplay/player/internal/schema"
	"duckreplay/player/internal/stats"
)

// Turn is the complete state of a match at one turn.
type Turn struct {
	Number  int
	Map     *gamemap.CurrentMap
	Bodies  *bodies.Table
	Actions *actions.Log
	Stat    *stats.TurnStat
}

// Clone deep-copies the turn. The static map and the game environment stay shared.
func (t *Turn) Clone() *Turn {
	return &Turn{
		Number:  t.Number,
		Map:     t.Map.Clone(),
		Bodies:  t.Bodies.Clone(),
		Actions: t.Actions.Clone(),
		Stat:    t.Stat.Clone(),
	}
}

// statLedger caches the finalized stat of every turn reached so far, indexed by turn number.
type statLedger struct {
	stats []*stats.TurnStat
	// finalized counts stat computations, so reuse of cached turns is observable.
	finalized int
}

// applyDelta advances the turn by one. Bodies go first so actions see spawned units, and
// actions go before the map because they read traps the map delta removes.
func (t *Turn) applyDelta(ledger *statLedger, delta, next *schema.Round, log *logging.Logger) error {
	if err := delta.Validate(); err != nil {
		return err
	}
	t.Number++

	firstVisit := len(ledger.stats) <= t.Number
	if firstVisit {
		t.Stat.Completed = false
	} else {
		t.Stat = ledger.stats[t.Number].Clone()
	}

	if err := t.Bodies.ApplyDelta(t.Stat, delta, next); err != nil {
		return fmt.Errorf("turn %d bodies: %w", t.Number, err)
	}
	if err := t.Actions.ApplyDelta(actions.Scene{Map: t.Map, Bodies: t.Bodies, Log: log}, delta); err != nil {
		return fmt.Errorf("turn %d actions: %w", t.Number, err)
	}
	if err := t.Map.ApplyDelta(delta); err != nil {
		return fmt.Errorf("turn %d map: %w", t.Number, err)
	}

	if firstVisit {
		if err := t.Stat.ApplyDelta(t.Number, delta, ledger.stats); err != nil {
			return fmt.Errorf("turn %d stat: %w", t.Number, err)
		}
		if len(ledger.stats) != t.Number {
			return fmt.Errorf("turn %d stat: ledger holds %d turns", t.Number, len(ledger.stats))
		}
		ledger.stats = append(ledger.stats, t.Stat.Clone())
		ledger.finalized++
	}
	return nil
}
