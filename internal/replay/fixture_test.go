package replay

import (
	"duckreplay/player/internal/geom"
	"duckreplay/player/internal/playback"
	"duckreplay/player/internal/schema"
)

func gameHeader() *schema.GameHeader {
	return &schema.GameHeader{
		SpecVersion: playback.SpecVersion,
		Teams: []schema.TeamData{
			{Name: "mallards", PackageName: "mallards.bot", TeamID: 1},
			{Name: "geese", PackageName: "geese.bot", TeamID: 2},
		},
		Constants: &schema.GameplayConstants{RobotBaseHealth: 1000},
	}
}

func matchHeader(name string) *schema.MatchHeader {
	return &schema.MatchHeader{MaxRounds: 20, Map: &schema.GameMap{
		Name:    name,
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
	}}
}

func emptyRound(id int32) *schema.Round {
	r := schema.NewRound(id)
	r.TeamIDs = []int32{1, 2}
	r.TeamResourceAmounts = []int32{int32(id), 0}
	r.RobotLocs = schema.NewVecTable()
	return r
}

// gameEvents returns the events of a one match game won by team winner.
func gameEvents(mapName string, winner int32, rounds int) []schema.Event {
	events := []schema.Event{gameHeader(), matchHeader(mapName)}
	for i := 1; i <= rounds; i++ {
		events = append(events, emptyRound(int32(i)))
	}
	return append(events,
		&schema.MatchFooter{Winner: winner, TotalRounds: int32(rounds)},
		&schema.GameFooter{Winner: winner})
}
