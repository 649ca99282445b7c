package statsexport

import (
	"path/filepath"
	"testing"

	"duckreplay/player/internal/geom"
	"duckreplay/player/internal/logging"
	"duckreplay/player/internal/playback"
	"duckreplay/player/internal/schema"
)

func loadGame(t *testing.T, rounds int) *playback.Game {
	t.Helper()
	events := []schema.Event{
		&schema.GameHeader{
			SpecVersion: playback.SpecVersion,
			Teams: []schema.TeamData{
				{Name: "mallards", TeamID: 1},
				{Name: "geese", TeamID: 2},
			},
			Constants: &schema.GameplayConstants{RobotBaseHealth: 1000},
		},
		&schema.MatchHeader{MaxRounds: 100, Map: &schema.GameMap{
			Name:    "pond",
			Size:    geom.Vec{X: 4, Y: 4},
			Walls:   make([]bool, 16),
			Water:   make([]bool, 16),
			Divider: make([]bool, 16),
			Bodies: &schema.SpawnedBodyTable{
				RobotIDs: []int32{1},
				TeamIDs:  []int8{1},
				Locs:     schema.NewVecTable(geom.Vec{}),
			},
			SpawnLocations: schema.NewVecTable(),
			ResourcePiles:  schema.NewVecTable(),
		}},
	}
	for i := 1; i <= rounds; i++ {
		r := schema.NewRound(int32(i))
		r.TeamIDs = []int32{1, 2}
		r.TeamResourceAmounts = []int32{int32(10 * i), 5}
		r.RobotLocs = schema.NewVecTable()
		events = append(events, r)
	}
	events = append(events, &schema.MatchFooter{Winner: 1, TotalRounds: int32(rounds)}, &schema.GameFooter{Winner: 1})

	game, err := playback.FromWrapper(&schema.GameWrapper{Events: events},
		playback.WithLogger(logging.NewTestLogger()), playback.WithID("pond-game"))
	if err != nil {
		t.Fatalf("FromWrapper: %v", err)
	}
	return game
}

func TestCollectFinalizesAndRestoresTurn(t *testing.T) {
	game := loadGame(t, 12)
	m := game.Matches[0]
	if err := m.JumpToTurn(4, false); err != nil {
		t.Fatalf("JumpToTurn: %v", err)
	}

	rows, err := Collect(game)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	//1.- Turns 0 through 12 for both teams.
	if len(rows) != 26 {
		t.Fatalf("expected 26 rows, got %d", len(rows))
	}
	if m.CurrentTurn().Number != 4 {
		t.Fatalf("expected the match to be back on turn 4, got %d", m.CurrentTurn().Number)
	}

	turn10 := rows[20]
	if turn10.Turn != 10 || turn10.Team != "mallards" || turn10.ResourceAmount != 100 {
		t.Fatalf("unexpected turn 10 row: %+v", turn10)
	}
	if turn10.ResourceAverage == nil {
		t.Fatalf("expected a rolling average on turn 10")
	}
	if rows[18].ResourceAverage != nil {
		t.Fatalf("turn 9 precedes the first average: %+v", rows[18])
	}
	if turn10.BaseRobots != 1 || rows[21].BaseRobots != 0 {
		t.Fatalf("unexpected robot counts: %+v %+v", turn10, rows[21])
	}
}

func TestWriteAndReadBack(t *testing.T) {
	rows, err := Collect(loadGame(t, 10))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	path := filepath.Join(t.TempDir(), "out", "stats.parquet")
	if err := Write(path, rows); err != nil {
		t.Fatalf("Write: %v", err)
	}
	loaded, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(loaded) != len(rows) {
		t.Fatalf("expected %d rows, got %d", len(rows), len(loaded))
	}
	last := loaded[len(loaded)-2]
	if last.GameID != "pond-game" || last.Turn != 10 || last.ResourceAmount != 100 {
		t.Fatalf("unexpected last row: %+v", last)
	}
	if last.ResourceAverage == nil || *last.ResourceAverage != *rows[len(rows)-2].ResourceAverage {
		t.Fatalf("average lost across the file: %+v", last.ResourceAverage)
	}
}
