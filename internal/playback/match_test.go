package playback

import (
	"errors"
	"reflect"
	"testing"

	"duckreplay/player/internal/bodies"
	"duckreplay/player/internal/geom"
	"duckreplay/player/internal/schema"
)

func TestDuckDiesAndSeekingBackRestoresIt(t *testing.T) {
	//1.- Arrange a two-turn match where duck 5 steps right and then dies.
	first := roundWith(1, unit{id: 5, pos: geom.Vec{X: 1}, hp: 1000})
	second := roundWith(2, unit{id: 5, pos: geom.Vec{X: 1}, hp: 0})
	second.DiedIDs = []int32{5}
	initial := &schema.SpawnedBodyTable{RobotIDs: []int32{5}, TeamIDs: []int8{1}, Locs: schema.NewVecTable(geom.Vec{})}
	_, m := loadGame(t, &schema.GameWrapper{Events: []schema.Event{
		testHeader(),
		&schema.MatchHeader{Map: testMap(initial)},
		first,
		second,
	}})

	//2.- Turn 1 shows the duck alive on its new tile.
	jump(t, m, 1)
	duck, err := m.CurrentTurn().Bodies.ByID(5)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if duck.Pos != (geom.Vec{X: 1}) || duck.IsDead() {
		t.Fatalf("unexpected duck at turn 1: %+v", duck)
	}
	firstVisit := stateOf(m.CurrentTurn())

	//3.- Turn 2 kills it.
	jump(t, m, 2)
	duck, _ = m.CurrentTurn().Bodies.ByID(5)
	if !duck.IsDead() || duck.HP != 0 {
		t.Fatalf("unexpected duck at turn 2: %+v", duck)
	}

	//4.- Seeking back reproduces the first visit exactly.
	jump(t, m, 1)
	if got := stateOf(m.CurrentTurn()); !reflect.DeepEqual(got, firstVisit) {
		t.Fatalf("turn 1 differs after seeking back:\n%+v\n%+v", got, firstVisit)
	}
}

func TestJumpToTurnIsDeterministic(t *testing.T) {
	wrapper := longWrapper(140)
	_, a := loadGame(t, wrapper)
	_, b := loadGame(t, wrapper)
	jump(t, a, 117)
	jump(t, b, 117)
	if !reflect.DeepEqual(stateOf(a.CurrentTurn()), stateOf(b.CurrentTurn())) {
		t.Fatalf("two fresh matches disagree at turn 117")
	}
}

func TestSeekingToCurrentTurnIsNoop(t *testing.T) {
	var notes []Notification
	_, m := loadGame(t, longWrapper(80), WithNotifier(NotifierFunc(func(n Notification) { notes = append(notes, n) })))
	jump(t, m, 64)
	finalized, seen := m.finalizedStats(), len(notes)
	turn := m.CurrentTurn()

	jump(t, m, 64)
	if m.finalizedStats() != finalized || len(notes) != seen || m.CurrentTurn() != turn {
		t.Fatalf("second jump to the same turn was not a no-op")
	}
}

func TestSnapshotReplayMatchesLinearReplay(t *testing.T) {
	wrapper := longWrapper(140)
	_, seeker := loadGame(t, wrapper)
	if err := seeker.JumpToEnd(false); err != nil {
		t.Fatalf("JumpToEnd: %v", err)
	}
	if len(seeker.snapshots) != 3 {
		t.Fatalf("expected snapshots for turns 0, 50 and 100, got %d", len(seeker.snapshots))
	}

	for _, target := range []int{0, 1, 49, 50, 51, 99, 100, 117, 140} {
		_, walker := loadGame(t, wrapper)
		for walker.CurrentTurn().Number < target {
			if err := walker.StepTurn(1, false); err != nil {
				t.Fatalf("step: %v", err)
			}
		}
		jump(t, seeker, target)
		if !reflect.DeepEqual(stateOf(seeker.CurrentTurn()), stateOf(walker.CurrentTurn())) {
			t.Fatalf("turn %d differs between snapshot and linear replay", target)
		}
	}
}

func TestForwardBackwardRoundTrip(t *testing.T) {
	wrapper := longWrapper(130)
	_, direct := loadGame(t, wrapper)
	jump(t, direct, 93)

	_, roundTrip := loadGame(t, wrapper)
	jump(t, roundTrip, 93)
	jump(t, roundTrip, 0)
	jump(t, roundTrip, 93)

	if !reflect.DeepEqual(stateOf(direct.CurrentTurn()), stateOf(roundTrip.CurrentTurn())) {
		t.Fatalf("round trip changed turn 93")
	}
}

func TestStreamedMatchMatchesLoadedMatch(t *testing.T) {
	//1.- Stream sixty rounds while following the end, crossing the snapshot at turn 50.
	g, err := NewGame(testHeader())
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	if err := g.AddEvent(&schema.MatchHeader{Map: testMap(initialBodies()), MaxRounds: 2000}); err != nil {
		t.Fatalf("match header: %v", err)
	}
	for _, r := range longRounds(60) {
		if err := g.AddEvent(r); err != nil {
			t.Fatalf("round %d: %v", r.RoundID, err)
		}
	}
	streamed := g.CurrentMatch()
	if streamed.CurrentTurn().Number != 60 {
		t.Fatalf("expected to follow to turn 60, at %d", streamed.CurrentTurn().Number)
	}

	//2.- The same rounds loaded whole serve as the reference.
	_, loaded := loadGame(t, longWrapper(60))
	compare := func(target int) {
		t.Helper()
		jump(t, streamed, target)
		jump(t, loaded, target)
		if got, want := stateOf(streamed.CurrentTurn()), stateOf(loaded.CurrentTurn()); !reflect.DeepEqual(got, want) {
			t.Fatalf("turn %d differs between streamed and loaded match:\n%+v\n%+v", target, got, want)
		}
	}
	compare(60)
	if len(streamed.snapshots) != 2 || len(loaded.snapshots) != 2 {
		t.Fatalf("expected snapshots for turns 0 and 50, got %d and %d", len(streamed.snapshots), len(loaded.snapshots))
	}
	if !reflect.DeepEqual(stateOf(streamed.snapshots[1]), stateOf(loaded.snapshots[1])) {
		t.Fatalf("snapshot of turn 50 differs between streamed and loaded match")
	}

	//3.- Seeks that restart from the turn 50 snapshot, and from turn 0 behind it, agree.
	compare(50)
	duck, err := streamed.CurrentTurn().Bodies.ByID(1)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if duck.Pos != (geom.Vec{}) || duck.NextPos != (geom.Vec{X: 1}) {
		t.Fatalf("duck 1 at turn 50 is not aimed at turn 51: %+v %+v", duck.Pos, duck.NextPos)
	}
	compare(53)
	compare(49)
	compare(53)
}

func TestStreamedTailMatchesLoadedTail(t *testing.T) {
	g, err := NewGame(testHeader())
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	if err := g.AddEvent(&schema.MatchHeader{Map: testMap(initialBodies()), MaxRounds: 2000}); err != nil {
		t.Fatalf("match header: %v", err)
	}

	//1.- After every round the followed tail equals the last turn of a file holding the same rounds.
	for _, r := range longRounds(12) {
		if err := g.AddEvent(r); err != nil {
			t.Fatalf("round %d: %v", r.RoundID, err)
		}
		n := int(r.RoundID)
		_, loaded := loadGame(t, longWrapper(n))
		jump(t, loaded, n)
		streamed := g.CurrentMatch().CurrentTurn()
		if !reflect.DeepEqual(stateOf(streamed), stateOf(loaded.CurrentTurn())) {
			t.Fatalf("tail turn %d differs between streamed and loaded match", n)
		}
	}

	//2.- The tail itself does not move before the next round is known.
	duck, err := g.CurrentMatch().CurrentTurn().Bodies.ByID(1)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if duck.Pos != (geom.Vec{X: 2}) || duck.NextPos != duck.Pos {
		t.Fatalf("unexpected tail position %+v %+v", duck.Pos, duck.NextPos)
	}
	if want := []geom.Vec{{X: 5}, {X: 6}, {X: 7}, {X: 8}, {X: 9}, {}, {X: 1}, {X: 2}}; !reflect.DeepEqual(duck.Trail, want) {
		t.Fatalf("unexpected trail %v", duck.Trail)
	}
}

func TestSnapshotsAreNotMutatedBySeeks(t *testing.T) {
	_, m := loadGame(t, longWrapper(60))
	before := stateOf(m.snapshots[0].Clone())
	jump(t, m, 60)
	jump(t, m, 10)
	jump(t, m, 55)
	if !reflect.DeepEqual(stateOf(m.snapshots[0]), before) {
		t.Fatalf("snapshot 0 was mutated")
	}
}

func TestStatsAreFinalizedOnce(t *testing.T) {
	_, m := loadGame(t, longWrapper(120))
	jump(t, m, 75)
	if m.finalizedStats() != 75 {
		t.Fatalf("expected 75 finalized stats, got %d", m.finalizedStats())
	}
	cached := m.Stats()[30]

	//1.- Re-entering visited turns reuses the cache.
	jump(t, m, 0)
	jump(t, m, 75)
	if m.finalizedStats() != 75 {
		t.Fatalf("revisiting recomputed stats: %d", m.finalizedStats())
	}
	if m.Stats()[30] != cached {
		t.Fatalf("cached stat of turn 30 was replaced")
	}

	//2.- Going further computes only the new turns.
	jump(t, m, 80)
	if m.finalizedStats() != 80 || len(m.Stats()) != 81 {
		t.Fatalf("expected 80 finalized stats, got %d", m.finalizedStats())
	}

	//3.- The current stat equals the cached one.
	if !reflect.DeepEqual(*m.CurrentTurn().Stat, *m.Stats()[80]) {
		t.Fatalf("current stat differs from the cached one")
	}
}

func TestStatsCountUnits(t *testing.T) {
	_, m := loadGame(t, longWrapper(30))
	jump(t, m, 21)
	white := m.CurrentTurn().Stat.Teams[0]
	// Duck 1 alive, duck 3 died on turn 20 and is jailed now.
	if white.Robots != [5]int{1, 0, 0, 0, 1} {
		t.Fatalf("unexpected white robots at turn 21: %v", white.Robots)
	}
	if white.ResourceAmount != 42 {
		t.Fatalf("unexpected resources: %d", white.ResourceAmount)
	}
	avg := m.Stats()[20].Teams[1].ResourceAverage
	// Brown earns 3 per turn: mean of 0, 3, ..., 60 over 21 turns.
	if avg == nil || *avg != 30 {
		t.Fatalf("unexpected rolling average at turn 20: %v", avg)
	}
}

func TestJumpClampsToRecordedTurns(t *testing.T) {
	wrapper := longWrapper(70)
	_, low := loadGame(t, wrapper)
	jump(t, low, 12)
	jump(t, low, -5)
	_, zero := loadGame(t, wrapper)
	jump(t, zero, 12)
	jump(t, zero, 0)
	if !reflect.DeepEqual(stateOf(low.CurrentTurn()), stateOf(zero.CurrentTurn())) {
		t.Fatalf("jump to -5 differs from jump to 0")
	}

	_, high := loadGame(t, wrapper)
	jump(t, high, 170)
	_, end := loadGame(t, wrapper)
	if err := end.JumpToEnd(true); err != nil {
		t.Fatalf("JumpToEnd: %v", err)
	}
	if high.CurrentTurn().Number != 70 || !reflect.DeepEqual(stateOf(high.CurrentTurn()), stateOf(end.CurrentTurn())) {
		t.Fatalf("jump past the end differs from JumpToEnd")
	}
}

func TestJumpNotifies(t *testing.T) {
	var notes []Notification
	g, m := loadGame(t, longWrapper(10), WithID("g-1"), WithNotifier(NotifierFunc(func(n Notification) { notes = append(notes, n) })))
	jump(t, m, 4)
	if err := m.StepTurn(1, false); err != nil {
		t.Fatalf("StepTurn: %v", err)
	}
	want := []Notification{
		{Kind: TurnProgress, GameID: g.ID, Turn: 4},
		{Kind: Render, GameID: g.ID, Turn: 4},
		{Kind: TurnProgress, GameID: g.ID, Turn: 5},
	}
	if !reflect.DeepEqual(notes, want) {
		t.Fatalf("unexpected notifications: %+v", notes)
	}
}

func TestStepSimulationCrossesTurns(t *testing.T) {
	renders := 0
	_, m := loadGame(t, longWrapper(3), WithNotifier(NotifierFunc(func(n Notification) {
		if n.Kind == Render {
			renders++
		}
	})))

	//1.- Half a turn only moves the clock.
	if err := m.StepSimulation(0.5); err != nil {
		t.Fatalf("step: %v", err)
	}
	if m.CurrentTurn().Number != 0 || m.InterpolationFactor() != 0.5 {
		t.Fatalf("unexpected state: turn %d factor %v", m.CurrentTurn().Number, m.InterpolationFactor())
	}

	//2.- Overflowing advances exactly one turn and wraps.
	if err := m.StepSimulation(0.75); err != nil {
		t.Fatalf("step: %v", err)
	}
	if m.CurrentTurn().Number != 1 || m.SimulationStep() != 125 {
		t.Fatalf("unexpected state: turn %d step %v", m.CurrentTurn().Number, m.SimulationStep())
	}

	//3.- Underflowing steps back.
	if err := m.StepSimulation(-0.5); err != nil {
		t.Fatalf("step: %v", err)
	}
	if m.CurrentTurn().Number != 0 || m.SimulationStep() != 375 {
		t.Fatalf("unexpected state: turn %d step %v", m.CurrentTurn().Number, m.SimulationStep())
	}

	//4.- At turn 0 the clock clamps instead of wrapping.
	if err := m.StepSimulation(-1); err != nil {
		t.Fatalf("step: %v", err)
	}
	if m.CurrentTurn().Number != 0 || m.SimulationStep() != 0 {
		t.Fatalf("expected clamp at 0: turn %d step %v", m.CurrentTurn().Number, m.SimulationStep())
	}

	//5.- At the end the clock settles at the full step.
	if err := m.JumpToEnd(false); err != nil {
		t.Fatalf("JumpToEnd: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := m.StepSimulation(0.4); err != nil {
			t.Fatalf("step: %v", err)
		}
	}
	if m.CurrentTurn().Number != 3 || m.InterpolationFactor() != 1 {
		t.Fatalf("expected clamp at the end: turn %d factor %v", m.CurrentTurn().Number, m.InterpolationFactor())
	}
	if renders != 7 {
		t.Fatalf("expected 7 renders, got %d", renders)
	}

	m.RoundSimulation()
	if m.InterpolationFactor() != 0 {
		t.Fatalf("RoundSimulation should reset the clock")
	}
}

func TestCorruptedDeltaPoisonsMatch(t *testing.T) {
	wrapper := longWrapper(20)
	broken := wrapper.Events[2+9].(*schema.Round)
	broken.RobotHealths = broken.RobotHealths[:1]

	_, m := loadGame(t, wrapper)
	jump(t, m, 5)
	err := m.JumpToTurn(15, true)
	if !errors.Is(err, ErrMatchCorrupted) || !errors.Is(err, schema.ErrLengthMismatch) {
		t.Fatalf("expected a corrupted match, got %v", err)
	}
	err = m.JumpToTurn(0, true)
	if !errors.Is(err, ErrMatchCorrupted) || !errors.Is(err, schema.ErrLengthMismatch) {
		t.Fatalf("expected the match to stay poisoned, got %v", err)
	}
	if m.Err() == nil {
		t.Fatalf("Err should report the cause")
	}
}

func TestEditorMatchIgnoresNavigation(t *testing.T) {
	g, _, err := LoadMapFile(schema.EncodeGameMap(testMap(initialBodies())))
	if err != nil {
		t.Fatalf("LoadMapFile: %v", err)
	}
	m := g.CurrentMatch()
	if err := m.JumpToTurn(3, true); err != nil || m.CurrentTurn().Number != 0 {
		t.Fatalf("editor jump should be a no-op: %v", err)
	}
	if err := m.StepSimulation(1); !errors.Is(err, ErrNotPlayable) {
		t.Fatalf("expected ErrNotPlayable, got %v", err)
	}
	duck, err := m.CurrentTurn().Bodies.ByID(2)
	if err != nil || duck.HP != 1 || duck.Name() != "Brown Duck" {
		t.Fatalf("unexpected editor duck %+v: %v", duck, err)
	}
	if m.Winner() == nil || m.Winner().ID != 1 || g.Winner().PackageName != "map_editor_red" {
		t.Fatalf("editor games are won by the first team")
	}
	if m.CurrentTurn().Bodies.AtLocation(geom.Vec{X: 9, Y: 9}, bodies.AnyTeam) != duck {
		t.Fatalf("expected the duck on its spawn tile")
	}
}
