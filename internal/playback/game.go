// Package playback turns the recorded deltas of a game into seekable turn state. A Game
// assembles Matches from a stream of events, and each Match materializes Turns on demand from
// periodic snapshots.
package playback

import (
	"errors"
	"fmt"
	"sync/atomic"

	"duckreplay/player/internal/bodies"
	"duckreplay/player/internal/gamemap"
	"duckreplay/player/internal/logging"
	"duckreplay/player/internal/schema"
	"duckreplay/player/internal/team"
)

// SpecVersion is the schema version written by the map editor.
const SpecVersion = "3.0.6"

var (
	// ErrUnknownSpecVersion reports a game header without a spec version.
	ErrUnknownSpecVersion = errors.New("unknown spec version")
	// ErrFirstEvent reports a stream that does not open with a game header.
	ErrFirstEvent = errors.New("first event must be a game header")
	// ErrDuplicateHeader reports a second game header in one stream.
	ErrDuplicateHeader = errors.New("cannot add another game header to a game")
	// ErrNoMatch reports a round or match footer that arrived before any match header.
	ErrNoMatch = errors.New("no match header has been added")
	// ErrDuplicateFooter reports a second game footer in one stream.
	ErrDuplicateFooter = errors.New("cannot add another game footer to a game")
)

var nextGameID atomic.Uint64

// Option customizes a Game.
type Option func(*Game)

// WithNotifier routes turn and render notifications to n.
func WithNotifier(n Notifier) Option {
	return func(g *Game) {
		if n != nil {
			g.notifier = n
		}
	}
}

// WithLogger sets the logger used for recoverable anomalies.
func WithLogger(l *logging.Logger) Option {
	return func(g *Game) {
		if l != nil {
			g.log = l
		}
	}
}

// WithID overrides the generated game id.
func WithID(id string) Option {
	return func(g *Game) {
		if id != "" {
			g.ID = id
		}
	}
}

// Game is a series of matches between the same two teams.
type Game struct {
	ID          string
	Teams       team.Roster
	Playable    bool
	SpecVersion string
	Constants   schema.GameplayConstants

	// SpecializationMetadata lists the levels of every specialization in header order.
	SpecializationMetadata map[schema.SpecializationType][]schema.SpecializationMetadata
	BuildActionMetadata    map[schema.BuildActionType]schema.BuildActionMetadata
	GlobalUpgradeMetadata  map[schema.GlobalUpgradeType]schema.GlobalUpgradeMetadata

	Matches []*Match
	current *Match
	winner  *team.Team

	env      *bodies.Env
	notifier Notifier
	log      *logging.Logger
	// batch suppresses live following while a complete file is ingested.
	batch bool
}

func newGame(opts []Option) *Game {
	g := &Game{
		ID:                     fmt.Sprintf("game-%d", nextGameID.Add(1)),
		SpecializationMetadata: make(map[schema.SpecializationType][]schema.SpecializationMetadata),
		BuildActionMetadata:    make(map[schema.BuildActionType]schema.BuildActionMetadata),
		GlobalUpgradeMetadata:  make(map[schema.GlobalUpgradeType]schema.GlobalUpgradeMetadata),
		notifier:               discardNotifier{},
		log:                    logging.L(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.log = g.log.With(logging.String("game_id", g.ID))
	return g
}

// NewGame starts a playable game from its header. Matches are added with AddEvent.
func NewGame(header *schema.GameHeader, opts ...Option) (*Game, error) {
	if header.SpecVersion == "" {
		return nil, ErrUnknownSpecVersion
	}
	if header.Constants == nil {
		return nil, fmt.Errorf("%w: gameplay constants", schema.ErrMissingField)
	}
	roster, err := team.FromHeader(header)
	if err != nil {
		return nil, err
	}

	g := newGame(opts)
	g.Playable = true
	g.SpecVersion = header.SpecVersion
	g.Teams = roster
	g.Constants = *header.Constants
	for _, meta := range header.SpecializationMetadata {
		g.SpecializationMetadata[meta.Type] = append(g.SpecializationMetadata[meta.Type], meta)
	}
	for _, meta := range header.BuildActionMetadata {
		g.BuildActionMetadata[meta.Type] = meta
	}
	for _, meta := range header.GlobalUpgradeMetadata {
		g.GlobalUpgradeMetadata[meta.Type] = meta
	}
	g.env = &bodies.Env{Roster: g.Teams, Constants: g.Constants, Playable: true, Log: g.log}
	return g, nil
}

// NewEditorGame returns the non-playable game backing the map editor. Its first team is
// recorded as the winner.
func NewEditorGame(opts ...Option) *Game {
	g := newGame(opts)
	g.SpecVersion = SpecVersion
	g.Teams = team.EditorRoster()
	winner := g.Teams[0]
	g.winner = &winner
	g.env = &bodies.Env{Roster: g.Teams, Log: g.log}
	return g
}

// FromWrapper builds a game from a complete decoded replay.
func FromWrapper(wrapper *schema.GameWrapper, opts ...Option) (*Game, error) {
	if len(wrapper.Events) == 0 {
		return nil, ErrFirstEvent
	}
	header, ok := wrapper.Events[0].(*schema.GameHeader)
	if !ok {
		return nil, fmt.Errorf("%w: got %s", ErrFirstEvent, wrapper.Events[0].Type())
	}
	g, err := NewGame(header, opts...)
	if err != nil {
		return nil, err
	}
	g.batch = true
	defer func() { g.batch = false }()
	for i, event := range wrapper.Events[1:] {
		if err := g.AddEvent(event); err != nil {
			return nil, fmt.Errorf("event %d: %w", i+1, err)
		}
	}
	return g, nil
}

// AddEvent ingests one event after the game header. Full loads and live streams go through
// the same path.
func (g *Game) AddEvent(event schema.Event) error {
	switch e := event.(type) {
	case *schema.GameHeader:
		return ErrDuplicateHeader
	case *schema.MatchHeader:
		m, err := matchFromHeader(g, e)
		if err != nil {
			return fmt.Errorf("match header: %w", err)
		}
		g.Matches = append(g.Matches, m)
		g.current = m
		g.log.Debug("match started", logging.Int("match", m.index), logging.String("map", m.static.Name))
		return nil
	case *schema.Round:
		last, err := g.lastMatch()
		if err != nil {
			return err
		}
		return last.AddNewTurn(e)
	case *schema.MatchFooter:
		last, err := g.lastMatch()
		if err != nil {
			return err
		}
		return last.AddMatchFooter(e)
	case *schema.GameFooter:
		if g.winner != nil {
			return ErrDuplicateFooter
		}
		winner, err := g.Teams.ByID(e.Winner)
		if err != nil {
			return fmt.Errorf("game footer: %w", err)
		}
		g.winner = &winner
		return nil
	default:
		g.log.Warn("unknown event type", logging.String("event", event.Type().String()))
		return nil
	}
}

func (g *Game) lastMatch() (*Match, error) {
	if len(g.Matches) == 0 {
		return nil, ErrNoMatch
	}
	return g.Matches[len(g.Matches)-1], nil
}

// Winner returns the overall winner, or nil until the game footer arrived.
func (g *Game) Winner() *team.Team { return g.winner }

// CurrentMatch returns the match being shown, or nil.
func (g *Game) CurrentMatch() *Match { return g.current }

// SelectMatch makes the i-th match current.
func (g *Game) SelectMatch(i int) (*Match, error) {
	if i < 0 || i >= len(g.Matches) {
		return nil, fmt.Errorf("%w: match %d of %d", ErrNoMatch, i, len(g.Matches))
	}
	g.current = g.Matches[i]
	return g.current, nil
}

// CreateBlankMatch adds an empty match on static for the map editor and makes it current.
func (g *Game) CreateBlankMatch(static *gamemap.StaticMap) (*Match, error) {
	table, err := bodies.NewTable(g.env, nil, nil)
	if err != nil {
		return nil, err
	}
	return g.addEditorMatch(static, table)
}

// CreateMatchFromMap adds a match holding a loaded map file and its bodies, which must stand
// on open land.
func (g *Game) CreateMatchFromMap(m *schema.GameMap) (*Match, error) {
	if m.Bodies == nil {
		return nil, fmt.Errorf("%w: initial bodies", schema.ErrMissingField)
	}
	static, err := gamemap.FromSchema(m)
	if err != nil {
		return nil, err
	}
	table, err := bodies.NewTable(g.env, m.Bodies, static)
	if err != nil {
		return nil, err
	}
	return g.addEditorMatch(static, table)
}

func (g *Game) addEditorMatch(static *gamemap.StaticMap, table *bodies.Table) (*Match, error) {
	m, err := newMatch(g, static, table)
	if err != nil {
		return nil, err
	}
	winner := g.Teams[0]
	m.winner = &winner
	g.Matches = append(g.Matches, m)
	g.current = m
	return m, nil
}

func (g *Game) notify(kind NotificationKind, m *Match) {
	g.notifier.Notify(Notification{Kind: kind, GameID: g.ID, Match: m.index, Turn: m.current.Number})
}

func loggingMatchFields(m *Match, turn int, err error) []logging.Field {
	return []logging.Field{logging.Int("match", m.index), logging.Int("turn", turn), logging.Error(err)}
}
