package bodies

import (
	"errors"
	"fmt"

	"duckreplay/player/internal/gamemap"
	"duckreplay/player/internal/geom"
	"duckreplay/player/internal/logging"
	"duckreplay/player/internal/schema"
	"duckreplay/player/internal/stats"
	"duckreplay/player/internal/team"
)

// AnyTeam disables the team filter of AtLocation.
const AnyTeam int32 = 0

var (
	// ErrUnknownBody reports a delta referencing an id that was never spawned.
	ErrUnknownBody = errors.New("body not found")
	// ErrRespawnAlive reports a spawn record reusing the id of a body still in play.
	ErrRespawnAlive = errors.New("body is not jailed or dead")
	// ErrBlockedTile reports a body placed on a wall, divider or water tile.
	ErrBlockedTile = errors.New("body on blocked tile")
)

// Env carries the game-wide settings every table of a game shares.
type Env struct {
	Roster    team.Roster
	Constants schema.GameplayConstants
	// Playable is false in the map editor, where spawned bodies start with 1 hp.
	Playable bool
	Log      *logging.Logger
}

func (e *Env) logger() *logging.Logger {
	if e == nil || e.Log == nil {
		return logging.L()
	}
	return e.Log
}

func (e *Env) spawnHealth() int32 {
	if e.Playable {
		return e.Constants.RobotBaseHealth
	}
	return 1
}

// Table is the entity table of one turn. Bodies iterate in spawn order.
type Table struct {
	env    *Env
	bodies map[int32]*Body
	order  []int32
}

// NewTable builds the table of turn 0 from the initial bodies of a map. When verify is set the
// bodies must stand on open land tiles of that map.
func NewTable(env *Env, initial *schema.SpawnedBodyTable, verify *gamemap.StaticMap) (*Table, error) {
	t := &Table{env: env, bodies: make(map[int32]*Body)}
	if initial != nil {
		if err := t.insert(initial); err != nil {
			return nil, err
		}
	}
	if verify != nil {
		if err := t.verifyOn(verify); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Table) verifyOn(m *gamemap.StaticMap) error {
	for _, id := range t.order {
		b := t.bodies[id]
		idx, err := m.LocationToIndex(b.Pos)
		if err != nil {
			return fmt.Errorf("body %d: %w", id, err)
		}
		if m.Walls[idx] || m.Divider[idx] || m.InitialWater[idx] {
			return fmt.Errorf("%w: Body at (%d, %d) is on top of a wall or divider or water", ErrBlockedTile, b.Pos.X, b.Pos.Y)
		}
	}
	return nil
}

// insert adds spawned bodies, respawning jailed ids in place.
func (t *Table) insert(spawned *schema.SpawnedBodyTable) error {
	if spawned.Locs == nil {
		return fmt.Errorf("%w: spawned body locations", schema.ErrMissingField)
	}
	locs, err := spawned.Locs.Points()
	if err != nil {
		return fmt.Errorf("spawned bodies: %w", err)
	}
	if len(spawned.RobotIDs) != len(spawned.TeamIDs) || len(spawned.RobotIDs) != len(locs) {
		return fmt.Errorf("%w: spawned bodies have %d ids, %d teams and %d locations", schema.ErrLengthMismatch,
			len(spawned.RobotIDs), len(spawned.TeamIDs), len(locs))
	}
	health := t.env.spawnHealth()
	for i, id := range spawned.RobotIDs {
		if existing, ok := t.bodies[id]; ok {
			if existing.State != Jailed {
				return fmt.Errorf("%w: id %d is %s", ErrRespawnAlive, id, existing.State)
			}
			existing.HP = health
			existing.State = Alive
			existing.resetPos(locs[i])
			continue
		}
		owner, err := t.env.Roster.ByID(int32(spawned.TeamIDs[i]))
		if err != nil {
			return fmt.Errorf("spawned body %d: %w", id, err)
		}
		t.bodies[id] = newDuck(id, owner, locs[i], health, t.env.Constants)
		t.order = append(t.order, id)
	}
	return nil
}

func (t *Table) updatePositions(delta *schema.Round, allowMissing bool) error {
	if delta.RobotLocs == nil {
		return nil
	}
	locs, err := delta.RobotLocs.Points()
	if err != nil {
		return fmt.Errorf("robot locations: %w", err)
	}
	if len(locs) != len(delta.RobotIDs) {
		return fmt.Errorf("%w: %d moved ids and %d locations", schema.ErrLengthMismatch, len(delta.RobotIDs), len(locs))
	}
	for i, id := range delta.RobotIDs {
		b, ok := t.bodies[id]
		if !ok {
			if allowMissing {
				continue
			}
			return fmt.Errorf("%w: moved body %d", ErrUnknownBody, id)
		}
		b.moveTo(locs[i])
	}
	return nil
}

// Aim points every body listed in next at its position there. ApplyDelta aims on its own when
// the following delta is known; a table built at the end of a live stream is aimed once the
// next round arrives. A nil next is a no-op.
func (t *Table) Aim(next *schema.Round) error {
	if next == nil {
		return nil
	}
	return t.updatePositions(next, true)
}

// ApplyDelta advances the table by one turn. next is the following delta, or nil at the end
// of the match, and only supplies the interpolation target. When stat is not yet completed the
// unit counts of both teams are recomputed into it.
func (t *Table) ApplyDelta(stat *stats.TurnStat, delta, next *schema.Round) error {
	//1.- Bodies that died last turn leave play.
	for _, id := range t.order {
		if b := t.bodies[id]; b.State == Dead {
			b.State = Jailed
		}
	}

	//2.- Spawn and respawn.
	if delta.SpawnedBodies != nil {
		if err := t.insert(delta.SpawnedBodies); err != nil {
			return err
		}
	}

	//3.- Move towards this turn's positions, record the trail, then aim at the next turn.
	if err := t.updatePositions(delta, false); err != nil {
		return err
	}
	for _, id := range t.order {
		if b := t.bodies[id]; !b.IsJailed() {
			b.addToTrail()
		}
	}
	if err := t.Aim(next); err != nil {
		return err
	}

	//4.- Bytecodes may mention units that are not spawned yet.
	if len(delta.BytecodeIDs) != len(delta.BytecodesUsed) {
		return fmt.Errorf("%w: %d bytecode ids and %d counts", schema.ErrLengthMismatch,
			len(delta.BytecodeIDs), len(delta.BytecodesUsed))
	}
	for i, id := range delta.BytecodeIDs {
		if b, ok := t.bodies[id]; ok {
			b.BytecodesUsed = delta.BytecodesUsed[i]
		}
	}

	//5.- Overwrite per-unit properties from the parallel arrays.
	if err := checkPropertyLengths(delta); err != nil {
		return err
	}
	for i, id := range delta.RobotIDs {
		b, ok := t.bodies[id]
		if !ok {
			return fmt.Errorf("%w: id %d", ErrUnknownBody, id)
		}
		b.HealLevel = delta.HealLevels[i]
		b.AttackLevel = delta.AttackLevels[i]
		b.BuildLevel = delta.BuildLevels[i]
		b.HealsPerformed = delta.HealsPerformed[i]
		b.AttacksPerformed = delta.AttacksPerformed[i]
		b.BuildsPerformed = delta.BuildsPerformed[i]
		b.MoveCooldown = delta.RobotMoveCooldowns[i]
		b.ActionCooldown = delta.RobotActionCooldowns[i]
		b.HP = delta.RobotHealths[i]
	}

	//6.- Deaths. A missing id happens when a team resigns.
	for _, id := range delta.DiedIDs {
		b, ok := t.bodies[id]
		if !ok {
			t.env.logger().Warn("died body not found; expected only on resignation",
				logging.Int64("body_id", int64(id)), logging.Int64("round", int64(delta.RoundID)))
			continue
		}
		b.State = Dead
		b.HP = 0
	}

	//7.- Recount units only while the stat is still open.
	if !stat.Completed {
		if err := t.countUnits(stat); err != nil {
			return err
		}
	}

	//8.- Indicators only live for the turn that emitted them.
	return t.applyIndicators(delta)
}

func checkPropertyLengths(delta *schema.Round) error {
	n := len(delta.RobotIDs)
	columns := []struct {
		name   string
		length int
	}{
		{"healLevels", len(delta.HealLevels)},
		{"attackLevels", len(delta.AttackLevels)},
		{"buildLevels", len(delta.BuildLevels)},
		{"healsPerformed", len(delta.HealsPerformed)},
		{"attacksPerformed", len(delta.AttacksPerformed)},
		{"buildsPerformed", len(delta.BuildsPerformed)},
		{"robotMoveCooldowns", len(delta.RobotMoveCooldowns)},
		{"robotActionCooldowns", len(delta.RobotActionCooldowns)},
		{"robotHealths", len(delta.RobotHealths)},
	}
	for _, column := range columns {
		if column.length != n {
			return fmt.Errorf("%w: round %d has %d robot ids and %d %s", schema.ErrLengthMismatch,
				delta.RoundID, n, column.length, column.name)
		}
	}
	return nil
}

func (t *Table) countUnits(stat *stats.TurnStat) error {
	for i := range stat.Teams {
		stat.Teams[i].ResetUnits()
	}
	for _, id := range t.order {
		b := t.bodies[id]
		teamStat, err := stat.Team(b.Team.ID)
		if err != nil {
			return err
		}
		if b.IsDead() {
			teamStat.Robots[stats.SlotJailed]++
			teamStat.SpecializationLevels[stats.SlotJailed] += float64(b.HealLevel+b.BuildLevel+b.AttackLevel) / 3
			continue
		}
		spec, err := b.Specialization()
		if err != nil {
			return err
		}
		teamStat.Robots[spec.Slot]++
		teamStat.SpecializationLevels[stats.SlotAttack] += float64(b.AttackLevel)
		teamStat.SpecializationLevels[stats.SlotBuild] += float64(b.BuildLevel)
		teamStat.SpecializationLevels[stats.SlotHeal] += float64(b.HealLevel)
	}
	return nil
}

func (t *Table) applyIndicators(delta *schema.Round) error {
	for _, b := range t.bodies {
		b.Dots = nil
		b.Lines = nil
		b.IndicatorString = ""
	}

	dots, err := delta.IndicatorDotLocs.Points()
	if err != nil {
		return fmt.Errorf("indicator dots: %w", err)
	}
	if len(delta.IndicatorDotIDs) != len(dots) {
		return fmt.Errorf("%w: %d dot ids and %d dots", schema.ErrLengthMismatch, len(delta.IndicatorDotIDs), len(dots))
	}
	for i, id := range delta.IndicatorDotIDs {
		if b, ok := t.bodies[id]; ok {
			b.Dots = append(b.Dots, IndicatorDot{Location: dots[i], Color: delta.IndicatorDotRGBs.At(i)})
		}
	}

	starts, err := delta.IndicatorLineStartLocs.Points()
	if err != nil {
		return fmt.Errorf("indicator line starts: %w", err)
	}
	ends, err := delta.IndicatorLineEndLocs.Points()
	if err != nil {
		return fmt.Errorf("indicator line ends: %w", err)
	}
	if len(delta.IndicatorLineIDs) != len(starts) || len(starts) != len(ends) {
		return fmt.Errorf("%w: %d line ids, %d starts and %d ends", schema.ErrLengthMismatch,
			len(delta.IndicatorLineIDs), len(starts), len(ends))
	}
	for i, id := range delta.IndicatorLineIDs {
		if b, ok := t.bodies[id]; ok {
			b.Lines = append(b.Lines, IndicatorLine{Start: starts[i], End: ends[i], Color: delta.IndicatorLineRGBs.At(i)})
		}
	}

	if len(delta.IndicatorStringIDs) != len(delta.IndicatorStrings) {
		return fmt.Errorf("%w: %d string ids and %d strings", schema.ErrLengthMismatch,
			len(delta.IndicatorStringIDs), len(delta.IndicatorStrings))
	}
	for i, id := range delta.IndicatorStringIDs {
		if b, ok := t.bodies[id]; ok {
			b.IndicatorString = delta.IndicatorStrings[i]
		}
	}
	return nil
}

// ByID returns the body with id.
func (t *Table) ByID(id int32) (*Body, error) {
	b, ok := t.bodies[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownBody, id)
	}
	return b, nil
}

// Has reports whether id was ever spawned.
func (t *Table) Has(id int32) bool {
	_, ok := t.bodies[id]
	return ok
}

// AtLocation returns the body shown on tile p. Living bodies win over bodies that died this
// turn, and among those the last spawned wins; jailed bodies are never returned. teamID filters by owner unless it is AnyTeam.
func (t *Table) AtLocation(p geom.Vec, teamID int32) *Body {
	var dead *Body
	for _, id := range t.order {
		b := t.bodies[id]
		if teamID != AnyTeam && b.Team.ID != teamID {
			continue
		}
		if b.Pos != p || b.IsJailed() {
			continue
		}
		if b.State == Dead {
			dead = b
			continue
		}
		return b
	}
	return dead
}

// All returns the bodies in spawn order.
func (t *Table) All() []*Body {
	out := make([]*Body, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.bodies[id])
	}
	return out
}

// NextID returns an id no body uses yet.
func (t *Table) NextID() int32 {
	next := int32(0)
	for id := range t.bodies {
		if id >= next {
			next = id + 1
		}
	}
	return next
}

// Len reports the number of bodies, jailed ones included.
func (t *Table) Len() int { return len(t.bodies) }

// IsEmpty reports whether no body was ever spawned.
func (t *Table) IsEmpty() bool { return len(t.bodies) == 0 }

// Clone deep-copies every body. The environment is shared.
func (t *Table) Clone() *Table {
	out := &Table{env: t.env, bodies: make(map[int32]*Body, len(t.bodies)), order: append([]int32(nil), t.order...)}
	for id, b := range t.bodies {
		out.bodies[id] = b.clone()
	}
	return out
}

// ToSpawnedBodyTable exports the ids, owners and positions for a map file.
func (t *Table) ToSpawnedBodyTable() *schema.SpawnedBodyTable {
	out := &schema.SpawnedBodyTable{
		RobotIDs: make([]int32, 0, len(t.order)),
		TeamIDs:  make([]int8, 0, len(t.order)),
	}
	positions := make([]geom.Vec, 0, len(t.order))
	for _, id := range t.order {
		b := t.bodies[id]
		out.RobotIDs = append(out.RobotIDs, b.ID)
		out.TeamIDs = append(out.TeamIDs, int8(b.Team.ID))
		positions = append(positions, b.Pos)
	}
	out.Locs = schema.NewVecTable(positions...)
	return out
}
