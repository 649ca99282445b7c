package playback

import (
	"errors"
	"fmt"
	"slices"

	"duckreplay/player/internal/actions"
	"duckreplay/player/internal/bodies"
	"duckreplay/player/internal/gamemap"
	"duckreplay/player/internal/schema"
	"duckreplay/player/internal/stats"
	"duckreplay/player/internal/team"
)

const (
	// SnapshotEvery is the turn spacing of cached snapshots used for backward seeks.
	SnapshotEvery = 50
	// MaxSimulationSteps is the resolution of the interpolation clock inside one turn.
	MaxSimulationSteps = 500
)

var (
	// ErrMatchCorrupted is returned by every navigation call after a delta failed to apply.
	ErrMatchCorrupted = errors.New("match state is corrupted")
	// ErrNotPlayable reports a navigation request on a map editor game.
	ErrNotPlayable = errors.New("game is not playable")
	// ErrRoundOutOfOrder reports a streamed round whose id does not follow the last one.
	ErrRoundOutOfOrder = errors.New("wrong turn id")
	// ErrNoSuchTurn reports a request for a delta the match does not hold.
	ErrNoSuchTurn = errors.New("turn not recorded")
)

// Match owns the deltas of one match, the snapshot cache and the live turn.
type Match struct {
	game      *Game
	index     int
	static    *gamemap.StaticMap
	maxRounds int32
	winner    *team.Team

	deltas    []*schema.Round
	current   *Turn
	snapshots []*Turn
	ledger    statLedger
	simStep   float64

	// err poisons the match once a delta failed half way.
	err error
}

func newMatch(g *Game, static *gamemap.StaticMap, firstBodies *bodies.Table) (*Match, error) {
	current, err := gamemap.NewCurrentMap(static)
	if err != nil {
		return nil, err
	}
	turn := &Turn{Map: current, Bodies: firstBodies, Actions: actions.NewLog(), Stat: stats.New()}
	m := &Match{game: g, index: len(g.Matches), static: static, current: turn}
	m.snapshots = []*Turn{turn.Clone()}
	m.ledger.stats = []*stats.TurnStat{m.snapshots[0].Stat}
	return m, nil
}

// matchFromHeader starts a streamed match with no rounds yet.
func matchFromHeader(g *Game, header *schema.MatchHeader) (*Match, error) {
	if header.Map == nil {
		return nil, fmt.Errorf("%w: match header map", schema.ErrMissingField)
	}
	if header.Map.Bodies == nil {
		return nil, fmt.Errorf("%w: initial bodies", schema.ErrMissingField)
	}
	static, err := gamemap.FromSchema(header.Map)
	if err != nil {
		return nil, err
	}
	table, err := bodies.NewTable(g.env, header.Map.Bodies, nil)
	if err != nil {
		return nil, err
	}
	m, err := newMatch(g, static, table)
	if err != nil {
		return nil, err
	}
	m.maxRounds = header.MaxRounds
	return m, nil
}

// Index is the position of the match within its game.
func (m *Match) Index() int { return m.index }

// Game returns the owning game.
func (m *Match) Game() *Game { return m.game }

// Static returns the terrain shared by every turn of the match.
func (m *Match) Static() *gamemap.StaticMap { return m.static }

// MaxRounds is the round limit announced by the match header.
func (m *Match) MaxRounds() int32 { return m.maxRounds }

// MaxTurn is the number of recorded turns.
func (m *Match) MaxTurn() int { return len(m.deltas) }

// Winner returns the winning team, or nil until the match footer arrived.
func (m *Match) Winner() *team.Team { return m.winner }

// CurrentTurn returns the live turn. Callers must treat it as read-only.
func (m *Match) CurrentTurn() *Turn { return m.current }

// Err returns the error that corrupted the match, if any.
func (m *Match) Err() error { return m.err }

// Delta returns the recorded delta that produces turn n (1-based).
func (m *Match) Delta(n int) (*schema.Round, error) {
	if n < 1 || n > len(m.deltas) {
		return nil, fmt.Errorf("%w: %d of %d", ErrNoSuchTurn, n, len(m.deltas))
	}
	return m.deltas[n-1], nil
}

// Stats returns the finalized stats of every turn reached so far, indexed by turn number.
// The values must not be modified.
func (m *Match) Stats() []*stats.TurnStat { return slices.Clone(m.ledger.stats) }

// finalizedStats counts how many turn stats were computed rather than reused.
func (m *Match) finalizedStats() int { return m.ledger.finalized }

func (m *Match) corrupted() error {
	if m.err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrMatchCorrupted, m.err)
}

// JumpToTurn moves the live turn to n, clamped to [0, MaxTurn]. Backward seeks and seeks that
// pass a cached snapshot restart from a copy of that snapshot.
func (m *Match) JumpToTurn(n int, rerender bool) error {
	if err := m.corrupted(); err != nil {
		return err
	}
	if !m.game.Playable {
		return nil
	}

	n = max(0, min(n, len(m.deltas)))
	if n == m.current.Number {
		return nil
	}

	//1.- Pick the starting point.
	reversed := n < m.current.Number
	snapshotIndex := n / SnapshotEvery
	closeSnapshot := snapshotIndex > m.current.Number/SnapshotEvery && snapshotIndex < len(m.snapshots)
	updating := m.current
	if reversed || closeSnapshot {
		updating = m.snapshots[snapshotIndex].Clone()
	}

	//2.- Replay forward, caching a snapshot on every new multiple of SnapshotEvery.
	if err := m.advance(updating, n); err != nil {
		return err
	}

	m.current = updating
	m.game.notify(TurnProgress, m)
	if rerender {
		m.game.notify(Render, m)
	}
	return nil
}

func (m *Match) advance(turn *Turn, target int) error {
	for turn.Number < target {
		delta := m.deltas[turn.Number]
		var next *schema.Round
		if turn.Number < len(m.deltas)-1 {
			next = m.deltas[turn.Number+1]
		}
		if err := turn.applyDelta(&m.ledger, delta, next, m.game.log); err != nil {
			m.err = err
			m.game.log.Error("match corrupted while applying delta",
				loggingMatchFields(m, turn.Number, err)...)
			return fmt.Errorf("%w: %w", ErrMatchCorrupted, err)
		}
		if turn.Number%SnapshotEvery == 0 && len(m.snapshots) < turn.Number/SnapshotEvery+1 {
			m.snapshots = append(m.snapshots, turn.Clone())
		}
	}
	return nil
}

// StepTurn moves the live turn by delta turns.
func (m *Match) StepTurn(delta int, rerender bool) error {
	return m.JumpToTurn(m.current.Number+delta, rerender)
}

// JumpToEnd moves the live turn to the last recorded turn.
func (m *Match) JumpToEnd(rerender bool) error {
	return m.JumpToTurn(len(m.deltas), rerender)
}

// InterpolationFactor reports the progress inside the current turn in [0, 1].
func (m *Match) InterpolationFactor() float64 {
	return max(0, min(m.simStep, MaxSimulationSteps)) / MaxSimulationSteps
}

// SimulationStep returns the raw interpolation clock.
func (m *Match) SimulationStep() float64 { return m.simStep }

// RoundSimulation drops any progress inside the current turn.
func (m *Match) RoundSimulation() { m.simStep = 0 }

// StepSimulation advances the interpolation clock by updates turns (fractional, possibly
// negative). Crossing a turn boundary steps the live turn once; at either end of the match the
// clock is clamped instead.
func (m *Match) StepSimulation(updates float64) error {
	if !m.game.Playable {
		return ErrNotPlayable
	}
	if err := m.corrupted(); err != nil {
		return err
	}

	delta := updates * MaxSimulationSteps
	m.simStep += delta

	if m.current.Number == len(m.deltas) && delta > 0 {
		// Keep drawing until units finished their final move.
		if m.simStep-delta < MaxSimulationSteps {
			m.game.notify(Render, m)
		}
		m.simStep = min(m.simStep, MaxSimulationSteps)
		return nil
	}
	if m.current.Number == 0 && delta < 0 {
		if m.simStep-delta > 0 {
			m.game.notify(Render, m)
		}
		m.simStep = max(0, m.simStep)
		return nil
	}

	var err error
	if m.simStep < 0 {
		err = m.StepTurn(-1, false)
	} else if m.simStep >= MaxSimulationSteps {
		err = m.StepTurn(1, false)
	}
	if err != nil {
		return err
	}
	m.simStep = wrapStep(m.simStep + MaxSimulationSteps)
	m.game.notify(Render, m)
	return nil
}

func wrapStep(step float64) float64 {
	for step >= MaxSimulationSteps {
		step -= MaxSimulationSteps
	}
	for step < 0 {
		step += MaxSimulationSteps
	}
	return step
}

// AddNewTurn appends a streamed round. When the live turn was at the previous end it follows
// the new round, unless the game is ingesting a complete file.
func (m *Match) AddNewTurn(round *schema.Round) error {
	if err := m.corrupted(); err != nil {
		return err
	}
	if want := int32(len(m.deltas) + 1); round.RoundID != want {
		return fmt.Errorf("%w: is %d, should be %d", ErrRoundOutOfOrder, round.RoundID, want)
	}
	following := m.current.Number == len(m.deltas)
	if err := m.aimTail(round); err != nil {
		return err
	}
	m.deltas = append(m.deltas, round)
	if !following || m.game.batch || !m.game.Playable {
		return nil
	}
	return m.JumpToTurn(len(m.deltas), false)
}

// aimTail gives the turns built at the previous end of the stream the look-ahead they were
// missing: the live turn when it sits there and the snapshot cached for it.
func (m *Match) aimTail(next *schema.Round) error {
	tail := len(m.deltas)
	if tail == 0 {
		return nil
	}
	var turns []*Turn
	if m.current.Number == tail {
		turns = append(turns, m.current)
	}
	if tail%SnapshotEvery == 0 && tail/SnapshotEvery < len(m.snapshots) {
		turns = append(turns, m.snapshots[tail/SnapshotEvery])
	}
	for _, turn := range turns {
		if err := turn.Bodies.Aim(next); err != nil {
			m.err = err
			m.game.log.Error("match corrupted while aiming at a streamed round",
				loggingMatchFields(m, tail, err)...)
			return fmt.Errorf("%w: %w", ErrMatchCorrupted, err)
		}
	}
	return nil
}

// AddMatchFooter records the winner of the match.
func (m *Match) AddMatchFooter(footer *schema.MatchFooter) error {
	winner, err := m.game.Teams.ByID(footer.Winner)
	if err != nil {
		return fmt.Errorf("match footer: %w", err)
	}
	m.winner = &winner
	return nil
}
