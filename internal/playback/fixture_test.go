package playback

import (
	"fmt"
	"testing"

	"duckreplay/player/internal/codec"
	"duckreplay/player/internal/geom"
	"duckreplay/player/internal/schema"
)

func testHeader() *schema.GameHeader {
	return &schema.GameHeader{
		SpecVersion: SpecVersion,
		Teams: []schema.TeamData{
			{Name: "mallards", PackageName: "mallards.bot", TeamID: 1},
			{Name: "geese", PackageName: "geese.bot", TeamID: 2},
		},
		SpecializationMetadata: []schema.SpecializationMetadata{
			{Type: schema.SpecializationAttack, Level: 0},
			{Type: schema.SpecializationAttack, Level: 1, DamageIncrease: 5},
		},
		BuildActionMetadata: []schema.BuildActionMetadata{{Type: schema.BuildStunTrap, Cost: 100}},
		Constants:           &schema.GameplayConstants{RobotBaseHealth: 1000, ActionRadius: 4, VisionRadius: 20},
	}
}

// testMap is a 10x10 map with one spawn zone per team and a single crumb pile.
func testMap(initial *schema.SpawnedBodyTable) *schema.GameMap {
	tiles := 100
	return &schema.GameMap{
		Name:                "pond",
		Size:                geom.Vec{X: 10, Y: 10},
		Bodies:              initial,
		Walls:               make([]bool, tiles),
		Water:               make([]bool, tiles),
		Divider:             make([]bool, tiles),
		SpawnLocations:      schema.NewVecTable(geom.Vec{X: 1, Y: 1}, geom.Vec{X: 8, Y: 8}),
		ResourcePiles:       schema.NewVecTable(geom.Vec{X: 5, Y: 5}),
		ResourcePileAmounts: []int32{30},
	}
}

// unit is one body listed in a round.
type unit struct {
	id  int32
	pos geom.Vec
	hp  int32
}

func roundWith(id int32, units ...unit) *schema.Round {
	r := schema.NewRound(id)
	r.TeamIDs = []int32{1, 2}
	r.TeamResourceAmounts = []int32{id * 2, id * 3}
	r.RobotLocs = &schema.VecTable{}
	for _, u := range units {
		r.RobotIDs = append(r.RobotIDs, u.id)
		r.RobotLocs.Xs = append(r.RobotLocs.Xs, u.pos.X)
		r.RobotLocs.Ys = append(r.RobotLocs.Ys, u.pos.Y)
		r.RobotHealths = append(r.RobotHealths, u.hp)
		r.RobotMoveCooldowns = append(r.RobotMoveCooldowns, id%3)
		r.RobotActionCooldowns = append(r.RobotActionCooldowns, id%5)
		r.AttackLevels = append(r.AttackLevels, min(id/40, 6))
		r.BuildLevels = append(r.BuildLevels, 0)
		r.HealLevels = append(r.HealLevels, 1)
		r.AttacksPerformed = append(r.AttacksPerformed, id)
		r.BuildsPerformed = append(r.BuildsPerformed, 0)
		r.HealsPerformed = append(r.HealsPerformed, id/2)
	}
	return r
}

// longRounds scripts a match of n turns. Duck 1 (White) and duck 2 (Brown) walk back and forth
// along the map edges; duck 3 (White) spawns on turn 3, dies on every turn 20 mod 40 and
// respawns five turns later. Duck 1 digs on even turns and fills on odd turns, and a trap is
// placed on turn 10 and triggered on turn 11.
func longRounds(n int) []*schema.Round {
	rounds := make([]*schema.Round, 0, n)
	for turn := int32(1); turn <= int32(n); turn++ {
		units := []unit{
			{id: 1, pos: geom.Vec{X: turn % 10}, hp: 1000 - turn},
			{id: 2, pos: geom.Vec{X: 9 - turn%10, Y: 9}, hp: 1000},
		}
		phase := turn % 40
		thirdAlive := turn >= 3 && (phase < 20 || phase >= 25)
		if thirdAlive || phase == 20 {
			hp := int32(500)
			if phase == 20 {
				hp = 0
			}
			units = append(units, unit{id: 3, pos: geom.Vec{X: turn % 10, Y: 5}, hp: hp})
		}
		r := roundWith(turn, units...)
		if turn == 3 || (turn > 3 && phase == 25) {
			r.SpawnedBodies = &schema.SpawnedBodyTable{
				RobotIDs: []int32{3},
				TeamIDs:  []int8{1},
				Locs:     schema.NewVecTable(geom.Vec{X: 0, Y: 5}),
			}
		}
		if phase == 20 && turn > 3 {
			r.DiedIDs = []int32{3}
		}
		kind := schema.ActionDig
		if turn%2 == 1 {
			kind = schema.ActionFill
		}
		r.Actions = []schema.ActionType{kind}
		r.ActionIDs = []int32{1}
		r.ActionTargets = []int32{30 + turn%10}
		if turn == 10 {
			r.TrapAddedIDs = []int32{77}
			r.TrapAddedLocations = schema.NewVecTable(geom.Vec{X: 4, Y: 4})
			r.TrapAddedTypes = []schema.BuildActionType{schema.BuildStunTrap}
			r.TrapAddedTeams = []int8{2}
		}
		if turn == 11 {
			r.TrapTriggeredIDs = []int32{77}
		}
		r.IndicatorStringIDs = []int32{1}
		r.IndicatorStrings = []string{fmt.Sprintf("turn %d", turn)}
		r.BytecodeIDs = []int32{1, 2}
		r.BytecodesUsed = []int32{turn * 10, turn * 20}
		rounds = append(rounds, r)
	}
	return rounds
}

func initialBodies() *schema.SpawnedBodyTable {
	return &schema.SpawnedBodyTable{
		RobotIDs: []int32{1, 2},
		TeamIDs:  []int8{1, 2},
		Locs:     schema.NewVecTable(geom.Vec{}, geom.Vec{X: 9, Y: 9}),
	}
}

// longWrapper is a single-match replay of n turns won by Brown.
func longWrapper(n int) *schema.GameWrapper {
	events := []schema.Event{
		testHeader(),
		&schema.MatchHeader{Map: testMap(initialBodies()), MaxRounds: 2000},
	}
	for _, r := range longRounds(n) {
		events = append(events, r)
	}
	events = append(events, &schema.MatchFooter{Winner: 2, TotalRounds: int32(n)}, &schema.GameFooter{Winner: 2})
	return &schema.GameWrapper{Events: events}
}

func loadGame(t *testing.T, wrapper *schema.GameWrapper, opts ...Option) (*Game, *Match) {
	t.Helper()
	g, err := FromWrapper(wrapper, opts...)
	if err != nil {
		t.Fatalf("FromWrapper: %v", err)
	}
	if len(g.Matches) != 1 {
		t.Fatalf("expected one match, got %d", len(g.Matches))
	}
	return g, g.Matches[0]
}

func replayFile(t *testing.T, wrapper *schema.GameWrapper) []byte {
	t.Helper()
	raw, err := codec.Gzip().Compress(schema.EncodeGameWrapper(wrapper))
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	return raw
}

// turnState projects a turn onto plain values so turns of different games compare equal.
type turnState struct {
	Number  int
	Water   []bool
	Piles   map[int]int32
	Traps   any
	Flags   any
	Bodies  []any
	Actions any
	Stat    any
}

func stateOf(turn *Turn) turnState {
	state := turnState{
		Number:  turn.Number,
		Water:   turn.Map.Water,
		Piles:   turn.Map.Piles,
		Traps:   turn.Map.Traps,
		Flags:   turn.Map.Flags,
		Actions: turn.Actions.Actions,
		Stat:    *turn.Stat,
	}
	for _, b := range turn.Bodies.All() {
		state.Bodies = append(state.Bodies, *b)
	}
	return state
}

func jump(t *testing.T, m *Match, n int) {
	t.Helper()
	if err := m.JumpToTurn(n, true); err != nil {
		t.Fatalf("jump to %d: %v", n, err)
	}
}
