package schema

import (
	"bytes"
	"encoding/binary"
	"errors"
	"reflect"
	"testing"

	"duckreplay/player/internal/geom"
)

func sampleWrapper() *GameWrapper {
	round := NewRound(1)
	round.TeamIDs = []int32{1, 2}
	round.TeamResourceAmounts = []int32{200, 210}
	round.RobotIDs = []int32{5}
	round.RobotLocs = NewVecTable(geom.Vec{X: 2, Y: 3})
	round.RobotMoveCooldowns = []int32{0}
	round.RobotActionCooldowns = []int32{10}
	round.RobotHealths = []int32{900}
	round.AttacksPerformed = []int32{1}
	round.AttackLevels = []int32{0}
	round.BuildsPerformed = []int32{0}
	round.BuildLevels = []int32{0}
	round.HealsPerformed = []int32{0}
	round.HealLevels = []int32{0}
	round.SpawnedBodies = &SpawnedBodyTable{
		RobotIDs: []int32{5},
		TeamIDs:  []int8{1},
		Locs:     NewVecTable(geom.Vec{X: 1, Y: 1}),
	}
	round.ActionIDs = []int32{5}
	round.Actions = []ActionType{ActionDig}
	round.ActionTargets = []int32{12}
	round.TrapAddedIDs = []int32{40}
	round.TrapAddedLocations = NewVecTable(geom.Vec{X: 4, Y: 4})
	round.TrapAddedTypes = []BuildActionType{BuildStunTrap}
	round.TrapAddedTeams = []int8{2}
	round.IndicatorStringIDs = []int32{5}
	round.IndicatorStrings = []string{"scouting"}
	round.IndicatorDotIDs = []int32{5}
	round.IndicatorDotLocs = NewVecTable(geom.Vec{X: 0, Y: 1})
	round.IndicatorDotRGBs = &RGBTable{Red: []int32{255}, Green: []int32{0}, Blue: []int32{10}}

	return &GameWrapper{
		Events: []Event{
			&GameHeader{
				SpecVersion: "1",
				Teams: []TeamData{
					{Name: "alpha", PackageName: "alpha.bot", TeamID: 1},
					{Name: "beta", PackageName: "beta.bot", TeamID: 2},
				},
				BuildActionMetadata: []BuildActionMetadata{{Type: BuildWaterTrap, Cost: 100, BuildCooldown: 5}},
				Constants:           &GameplayConstants{RobotBaseHealth: 1000, ActionRadius: 4},
			},
			&MatchHeader{
				MaxRounds: 2000,
				Map: &GameMap{
					Name:                "tiny",
					Size:                geom.Vec{X: 3, Y: 2},
					Symmetry:            1,
					Walls:               []bool{false, true, false, false, false, false},
					Water:               []bool{false, false, false, false, true, false},
					Divider:             []bool{false, false, false, false, false, false},
					SpawnLocations:      NewVecTable(geom.Vec{X: 0, Y: 0}),
					ResourcePiles:       NewVecTable(geom.Vec{X: 2, Y: 1}),
					ResourcePileAmounts: []int32{50},
				},
			},
			round,
			&MatchFooter{Winner: 2, TotalRounds: 1},
			&GameFooter{Winner: 2},
		},
	}
}

func TestGameWrapperRoundTrip(t *testing.T) {
	//1.- Encode a wrapper with every event kind.
	original := sampleWrapper()
	buf := EncodeGameWrapper(original)

	//2.- Decode it again and compare field by field.
	decoded, err := DecodeGameWrapper(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(decoded.MatchHeaders, []int32{1}) || !reflect.DeepEqual(decoded.MatchFooters, []int32{3}) {
		t.Fatalf("unexpected indices: headers=%v footers=%v", decoded.MatchHeaders, decoded.MatchFooters)
	}
	if len(decoded.Events) != len(original.Events) {
		t.Fatalf("expected %d events, got %d", len(original.Events), len(decoded.Events))
	}
	for i := range original.Events {
		if !reflect.DeepEqual(decoded.Events[i], original.Events[i]) {
			t.Fatalf("event %d mismatch:\n got %#v\nwant %#v", i, decoded.Events[i], original.Events[i])
		}
	}
}

func TestEncodeEventRoundTrip(t *testing.T) {
	round := NewRound(7)
	round.DiedIDs = []int32{3, 4}

	event, err := DecodeEvent(EncodeEvent(round))
	if err != nil {
		t.Fatalf("decode event: %v", err)
	}
	got, ok := event.(*Round)
	if !ok {
		t.Fatalf("expected round, got %T", event)
	}
	if !reflect.DeepEqual(got, round) {
		t.Fatalf("round mismatch:\n got %#v\nwant %#v", got, round)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestGameMapRoundTrip(t *testing.T) {
	m := sampleWrapper().Events[1].(*MatchHeader).Map
	decoded, err := DecodeGameMap(EncodeGameMap(m))
	if err != nil {
		t.Fatalf("decode map: %v", err)
	}
	if !reflect.DeepEqual(decoded, m) {
		t.Fatalf("map mismatch:\n got %#v\nwant %#v", decoded, m)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, buf := range [][]byte{nil, {1, 2, 3}, {0xff, 0xff, 0xff, 0x7f, 0, 0, 0, 0, 1, 2}} {
		if _, err := DecodeGameWrapper(buf); !errors.Is(err, ErrMalformed) {
			t.Fatalf("expected ErrMalformed for %v, got %v", buf, err)
		}
	}
}

func TestDecodeRejectsOversizedVectorLength(t *testing.T) {
	//1.- Encode a round whose died ids are the only {3, 4} vector in the buffer.
	round := NewRound(7)
	round.DiedIDs = []int32{3, 4}
	buf := EncodeEvent(round)
	vector := []byte{2, 0, 0, 0, 3, 0, 0, 0, 4, 0, 0, 0}
	at := bytes.Index(buf, vector)
	if at < 0 {
		t.Fatalf("died ids vector not found in %v", buf)
	}

	//2.- Claim two billion elements in the length prefix.
	binary.LittleEndian.PutUint32(buf[at:], 0x7fffffff)
	if _, err := DecodeEvent(buf); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestRoundValidateNamesMissingTable(t *testing.T) {
	round := NewRound(3)
	round.FillLocations = nil
	err := round.Validate()
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
}

func TestVecTableLenMismatch(t *testing.T) {
	table := &VecTable{Xs: []int32{1, 2}, Ys: []int32{1}}
	if _, err := table.Len(); !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
}
