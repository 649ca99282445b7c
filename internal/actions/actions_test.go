package actions

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"duckreplay/player/internal/bodies"
	"duckreplay/player/internal/gamemap"
	"duckreplay/player/internal/geom"
	"duckreplay/player/internal/logging"
	"duckreplay/player/internal/schema"
	"duckreplay/player/internal/team"
)

// scene returns a 5x5 map with flags 6 (White, at (1,1)) and 18 (Brown, at (3,3)) and two
// ducks: 1 for White at (0,0) and 2 for Brown at (4,4).
func scene(t *testing.T) Scene {
	t.Helper()
	static, err := gamemap.FromParams(5, 5, gamemap.SymmetryRotational)
	if err != nil {
		t.Fatalf("FromParams: %v", err)
	}
	static.SpawnLocations = []geom.Vec{{X: 1, Y: 1}, {X: 3, Y: 3}}
	current, err := gamemap.NewCurrentMap(static)
	if err != nil {
		t.Fatalf("NewCurrentMap: %v", err)
	}
	env := &bodies.Env{Roster: team.EditorRoster(), Playable: true, Log: logging.NewTestLogger()}
	table, err := bodies.NewTable(env, &schema.SpawnedBodyTable{
		RobotIDs: []int32{1, 2},
		TeamIDs:  []int8{1, 2},
		Locs:     schema.NewVecTable(geom.Vec{}, geom.Vec{X: 4, Y: 4}),
	}, nil)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return Scene{Map: current, Bodies: table, Log: logging.NewTestLogger()}
}

func round(id int32, records ...Action) *schema.Round {
	r := schema.NewRound(id)
	for _, a := range records {
		r.Actions = append(r.Actions, a.Kind)
		r.ActionIDs = append(r.ActionIDs, a.RobotID)
		r.ActionTargets = append(r.ActionTargets, a.Target)
	}
	return r
}

func TestActionsExpireAfterOneTurn(t *testing.T) {
	s := scene(t)
	log := NewLog()
	if err := log.ApplyDelta(s, round(1, Action{Kind: schema.ActionAttack, RobotID: 1, Target: 2})); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if len(log.Actions) != 1 || log.Actions[0].Duration != DefaultDuration {
		t.Fatalf("unexpected log: %+v", log.Actions)
	}
	snapshot := log.Clone()
	if err := log.ApplyDelta(s, round(2, Action{Kind: schema.ActionHeal, RobotID: 2, Target: 2})); err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if len(log.Actions) != 1 || log.Actions[0].Kind != schema.ActionHeal {
		t.Fatalf("expected only the heal to remain: %+v", log.Actions)
	}
	if snapshot.Actions[0].Kind != schema.ActionAttack {
		t.Fatalf("clone aliases the log: %+v", snapshot.Actions)
	}
}

func TestDigAndFillToggleWater(t *testing.T) {
	s := scene(t)
	log := NewLog()
	if err := log.ApplyDelta(s, round(1, Action{Kind: schema.ActionDig, RobotID: 1, Target: 7})); err != nil {
		t.Fatalf("dig: %v", err)
	}
	if !s.Map.Water[7] {
		t.Fatalf("dig should flood tile 7")
	}
	if err := log.ApplyDelta(s, round(2, Action{Kind: schema.ActionFill, RobotID: 1, Target: 7})); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if s.Map.Water[7] {
		t.Fatalf("fill should drain tile 7")
	}
	if err := log.ApplyDelta(s, round(3, Action{Kind: schema.ActionDig, RobotID: 1, Target: 25})); !errors.Is(err, gamemap.ErrOutOfBounds) {
		t.Fatalf("expected out of bounds dig to fail, got %v", err)
	}
}

func TestFlagLifecycle(t *testing.T) {
	s := scene(t)
	log := NewLog()

	//1.- Brown picks up the White flag.
	if err := log.ApplyDelta(s, round(1, Action{Kind: schema.ActionPickupFlag, RobotID: 2, Target: 6})); err != nil {
		t.Fatalf("pickup: %v", err)
	}
	brown, _ := s.Bodies.ByID(2)
	if s.Map.Flags[6].Carrier != 2 || brown.CarriedFlag != 6 {
		t.Fatalf("pickup not recorded: %+v %+v", s.Map.Flags[6], brown)
	}

	//2.- Dropping moves the flag and frees the carrier.
	if err := log.ApplyDelta(s, round(2, Action{Kind: schema.ActionDropFlag, RobotID: 6, Target: 12})); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if flag := s.Map.Flags[6]; flag.Carrier != gamemap.NoCarrier || flag.Location != (geom.Vec{X: 2, Y: 2}) {
		t.Fatalf("drop not recorded: %+v", flag)
	}
	if brown.HasFlag() {
		t.Fatalf("carrier still holds the flag")
	}

	//3.- Capturing removes the flag.
	if err := log.ApplyDelta(s, round(3,
		Action{Kind: schema.ActionPickupFlag, RobotID: 2, Target: 6},
		Action{Kind: schema.ActionCaptureFlag, RobotID: 2, Target: 6},
	)); err != nil {
		t.Fatalf("capture: %v", err)
	}
	if _, ok := s.Map.Flags[6]; ok || brown.HasFlag() {
		t.Fatalf("capture not recorded: %+v", s.Map.Flags)
	}
	if len(log.Actions) != 2 {
		t.Fatalf("expected both actions of turn 3, got %+v", log.Actions)
	}
}

func TestCaptureWithoutCarrierFails(t *testing.T) {
	s := scene(t)
	err := NewLog().ApplyDelta(s, round(1, Action{Kind: schema.ActionCaptureFlag, RobotID: 1, Target: 18}))
	if !errors.Is(err, ErrNoCarrier) {
		t.Fatalf("expected ErrNoCarrier, got %v", err)
	}
	err = NewLog().ApplyDelta(s, round(1, Action{Kind: schema.ActionPickupFlag, RobotID: 1, Target: 99}))
	if !errors.Is(err, ErrUnknownFlag) {
		t.Fatalf("expected ErrUnknownFlag, got %v", err)
	}
}

func TestUnknownActionFails(t *testing.T) {
	err := NewLog().ApplyDelta(scene(t), round(1, Action{Kind: schema.ActionType(42)}))
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}

func TestDieExceptionIsLogged(t *testing.T) {
	var buf bytes.Buffer
	s := scene(t)
	s.Log = logging.NewWriterLogger(&buf)
	if err := NewLog().ApplyDelta(s, round(1, Action{Kind: schema.ActionDieException, RobotID: 2, Target: 3})); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !strings.Contains(buf.String(), "exception") || !strings.Contains(buf.String(), `"robot_id":2`) {
		t.Fatalf("expected an exception warning, got %s", buf.String())
	}
}

func TestRaggedActionColumnsFail(t *testing.T) {
	r := round(1, Action{Kind: schema.ActionAttack, RobotID: 1, Target: 2})
	r.ActionTargets = nil
	if err := NewLog().ApplyDelta(scene(t), r); !errors.Is(err, schema.ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
}
