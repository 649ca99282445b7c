// Package bodies tracks the units of a match: their positions, levels, lifecycle and the
// per-turn debug indicators their code emitted.
package bodies

import (
	"errors"
	"fmt"
	"slices"

	"duckreplay/player/internal/geom"
	"duckreplay/player/internal/schema"
	"duckreplay/player/internal/team"
)

// TrailLength bounds the remembered previous positions of a body.
const TrailLength = 8

// NoFlag marks a body that carries nothing.
const NoFlag int32 = -1

// MaxLevel is the highest specialization level a unit can reach.
const MaxLevel = 6

// ErrLevelOutOfRange reports specialization levels the game rules cannot produce.
var ErrLevelOutOfRange = errors.New("specialization level out of bounds")

// LifeState is the two-phase removal state of a body.
type LifeState uint8

const (
	// Alive bodies are in play.
	Alive LifeState = iota
	// Dead bodies died this turn and are still drawn and selectable.
	Dead
	// Jailed bodies died on an earlier turn and wait for a respawn.
	Jailed
)

func (s LifeState) String() string {
	switch s {
	case Alive:
		return "alive"
	case Dead:
		return "dead"
	case Jailed:
		return "jailed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Kind tags the unit variant. This season only fields ducks.
type Kind uint8

// KindDuck is the only unit kind.
const KindDuck Kind = 0

func (k Kind) String() string {
	if k == KindDuck {
		return "Duck"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// IndicatorDot is a debug dot drawn by a unit's code.
type IndicatorDot struct {
	Location geom.Vec
	Color    schema.RGB
}

// IndicatorLine is a debug line drawn by a unit's code.
type IndicatorLine struct {
	Start geom.Vec
	End   geom.Vec
	Color schema.RGB
}

// Specialization is the dominant skill of a unit.
type Specialization struct {
	Slot int
	Name string
}

// Body is one unit. Its id is stable across jail and respawn cycles.
type Body struct {
	ID   int32
	Kind Kind
	Team team.Team

	Pos     geom.Vec
	NextPos geom.Vec
	Trail   []geom.Vec

	HP          int32
	State       LifeState
	CarriedFlag int32

	AttackLevel      int32
	BuildLevel       int32
	HealLevel        int32
	AttacksPerformed int32
	BuildsPerformed  int32
	HealsPerformed   int32
	MoveCooldown     int32
	ActionCooldown   int32
	BytecodesUsed    int32
	ActionRadius     int32
	VisionRadius     int32

	Dots            []IndicatorDot
	Lines           []IndicatorLine
	IndicatorString string
}

func newDuck(id int32, t team.Team, pos geom.Vec, hp int32, constants schema.GameplayConstants) *Body {
	return &Body{
		ID:           id,
		Kind:         KindDuck,
		Team:         t,
		Pos:          pos,
		NextPos:      pos,
		Trail:        []geom.Vec{pos},
		HP:           hp,
		CarriedFlag:  NoFlag,
		ActionRadius: constants.ActionRadius,
		VisionRadius: constants.VisionRadius,
	}
}

// Name is the display name, e.g. "White Duck".
func (b *Body) Name() string { return b.Team.ColorName + " " + b.Kind.String() }

// IsDead reports a body that is dead or already jailed.
func (b *Body) IsDead() bool { return b.State != Alive }

// IsJailed reports a body removed from play.
func (b *Body) IsJailed() bool { return b.State == Jailed }

// HasFlag reports whether the body carries a flag.
func (b *Body) HasFlag() bool { return b.CarriedFlag != NoFlag }

func (b *Body) moveTo(p geom.Vec) {
	b.Pos = b.NextPos
	b.NextPos = p
}

func (b *Body) resetPos(p geom.Vec) {
	b.Pos = p
	b.NextPos = p
	b.Trail = []geom.Vec{p}
}

func (b *Body) addToTrail() {
	b.Trail = append(b.Trail, b.Pos)
	if len(b.Trail) > TrailLength {
		b.Trail = slices.Delete(b.Trail, 0, len(b.Trail)-TrailLength)
	}
}

// Interpolated returns the drawn position between Pos and NextPos for factor in [0,1].
func (b *Body) Interpolated(factor float64) geom.Point {
	return geom.Lerp(b.Pos, b.NextPos, factor)
}

// Specialization derives the dominant skill from the three levels. At most one level may
// exceed 3.
func (b *Body) Specialization() (Specialization, error) {
	levels := []int32{b.AttackLevel, b.HealLevel, b.BuildLevel}
	for _, level := range levels {
		if level < 0 || level > MaxLevel {
			return Specialization{}, fmt.Errorf("%w: body %d has levels %v", ErrLevelOutOfRange, b.ID, levels)
		}
	}
	slices.Sort(levels)
	if levels[1] > 3 {
		return Specialization{}, fmt.Errorf("%w: body %d has two specializations", ErrLevelOutOfRange, b.ID)
	}
	switch {
	case b.AttackLevel > 3:
		return Specialization{Slot: 1, Name: "attack"}, nil
	case b.BuildLevel > 3:
		return Specialization{Slot: 2, Name: "build"}, nil
	case b.HealLevel > 3:
		return Specialization{Slot: 3, Name: "heal"}, nil
	default:
		return Specialization{Slot: 0, Name: "base"}, nil
	}
}

// HoverInfo lists the lines shown when the body is inspected.
func (b *Body) HoverInfo() []string {
	name := b.Name()
	if b.IsDead() {
		name = "JAILED: " + name
	}
	flag := ""
	if b.HasFlag() {
		flag = fmt.Sprintf("Has Flag! (ID: %d)", b.CarriedFlag)
	}
	info := []string{
		name,
		fmt.Sprintf("ID: %d", b.ID),
		fmt.Sprintf("HP: %d", b.HP),
		fmt.Sprintf("Location: (%d, %d)", b.Pos.X, b.Pos.Y),
		flag,
		fmt.Sprintf("Attack Lvl: %d (%d exp)", b.AttackLevel, b.AttacksPerformed),
		fmt.Sprintf("Build Lvl: %d (%d exp)", b.BuildLevel, b.BuildsPerformed),
		fmt.Sprintf("Heal Lvl: %d (%d exp)", b.HealLevel, b.HealsPerformed),
		fmt.Sprintf("Move Cooldown: %d", b.MoveCooldown),
		fmt.Sprintf("Action Cooldown: %d", b.ActionCooldown),
		fmt.Sprintf("Bytecodes Used: %d", b.BytecodesUsed),
	}
	if b.IndicatorString != "" {
		info = append(info, "Indicator: "+b.IndicatorString)
	}
	return info
}

// clone copies the body. Trail and indicators are duplicated, the team value is shared.
func (b *Body) clone() *Body {
	out := *b
	out.Trail = slices.Clone(b.Trail)
	out.Dots = slices.Clone(b.Dots)
	out.Lines = slices.Clone(b.Lines)
	return &out
}
