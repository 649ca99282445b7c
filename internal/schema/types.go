// Package schema defines the typed replay records exchanged with the match engine and the
// flatbuffers container codec that carries them.
package schema

import (
	"errors"
	"fmt"

	"duckreplay/player/internal/geom"
)

// EventType tags the payload carried by an event wrapper.
type EventType uint8

const (
	EventNone EventType = iota
	EventGameHeader
	EventMatchHeader
	EventRound
	EventMatchFooter
	EventGameFooter
)

func (t EventType) String() string {
	switch t {
	case EventNone:
		return "none"
	case EventGameHeader:
		return "game_header"
	case EventMatchHeader:
		return "match_header"
	case EventRound:
		return "round"
	case EventMatchFooter:
		return "match_footer"
	case EventGameFooter:
		return "game_footer"
	default:
		return fmt.Sprintf("event(%d)", uint8(t))
	}
}

// Event is one record of the replay stream. The set of implementations is closed.
type Event interface {
	Type() EventType
	isEvent()
}

// ActionType enumerates the per-round action records.
type ActionType uint8

const (
	ActionAttack ActionType = iota
	ActionHeal
	ActionDig
	ActionFill
	ActionExplosiveTrap
	ActionWaterTrap
	ActionStunTrap
	ActionPickupFlag
	ActionDropFlag
	ActionCaptureFlag
	ActionResetFlag
	ActionGlobalUpgrade
	ActionDieException
)

var actionNames = [...]string{
	"attack", "heal", "dig", "fill", "explosive_trap", "water_trap", "stun_trap",
	"pickup_flag", "drop_flag", "capture_flag", "reset_flag", "global_upgrade", "die_exception",
}

func (a ActionType) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return fmt.Sprintf("action(%d)", uint8(a))
}

// BuildActionType enumerates buildable traps and terrain edits.
type BuildActionType uint8

const (
	BuildExplosiveTrap BuildActionType = iota
	BuildWaterTrap
	BuildStunTrap
	BuildDig
	BuildFill
)

// Name returns the short label used in tooltips ("explosive", "water", "stun").
func (b BuildActionType) Name() string {
	switch b {
	case BuildExplosiveTrap:
		return "explosive"
	case BuildWaterTrap:
		return "water"
	case BuildStunTrap:
		return "stun"
	default:
		return ""
	}
}

// SpecializationType enumerates unit specializations.
type SpecializationType int8

const (
	SpecializationAttack SpecializationType = iota
	SpecializationBuild
	SpecializationHeal
)

// GlobalUpgradeType enumerates team-wide upgrades.
type GlobalUpgradeType int8

const (
	GlobalUpgradeAction GlobalUpgradeType = iota
	GlobalUpgradeHealing
	GlobalUpgradeCapturing
)

// VecTable stores a list of coordinates as parallel arrays.
type VecTable struct {
	Xs []int32
	Ys []int32
}

// NewVecTable packs the supplied points.
func NewVecTable(points ...geom.Vec) *VecTable {
	table := &VecTable{Xs: make([]int32, len(points)), Ys: make([]int32, len(points))}
	for i, p := range points {
		table.Xs[i] = p.X
		table.Ys[i] = p.Y
	}
	return table
}

// Len reports the number of coordinates, failing when the parallel arrays disagree.
func (v *VecTable) Len() (int, error) {
	if v == nil {
		return 0, nil
	}
	if len(v.Xs) != len(v.Ys) {
		return 0, fmt.Errorf("%w: vec table has %d xs and %d ys", ErrLengthMismatch, len(v.Xs), len(v.Ys))
	}
	return len(v.Xs), nil
}

// At returns the i-th coordinate.
func (v *VecTable) At(i int) geom.Vec { return geom.Vec{X: v.Xs[i], Y: v.Ys[i]} }

// Points unpacks the table into a slice of coordinates.
func (v *VecTable) Points() ([]geom.Vec, error) {
	n, err := v.Len()
	if err != nil {
		return nil, err
	}
	out := make([]geom.Vec, n)
	for i := range out {
		out[i] = v.At(i)
	}
	return out, nil
}

// RGBTable stores indicator colours as parallel channel arrays.
type RGBTable struct {
	Red   []int32
	Green []int32
	Blue  []int32
}

// At returns the colour at i, or black when the table is shorter than expected.
func (c *RGBTable) At(i int) RGB {
	if c == nil || i >= len(c.Red) || i >= len(c.Green) || i >= len(c.Blue) {
		return RGB{}
	}
	return RGB{R: uint8(c.Red[i]), G: uint8(c.Green[i]), B: uint8(c.Blue[i])}
}

// RGB is an 8-bit colour.
type RGB struct {
	R, G, B uint8
}

// TeamData describes one participant.
type TeamData struct {
	Name        string
	PackageName string
	TeamID      int8
}

// GameplayConstants carries the engine tunables announced in the game header.
type GameplayConstants struct {
	SetupPhaseLength        int32
	FlagMinDistance         int32
	GlobalUpgradeRoundDelay int32
	PassiveResourceRate     int32
	RobotBaseHealth         int32
	JailedRounds            int32
	VisionRadius            int32
	ActionRadius            int32
}

// SpecializationMetadata describes the effect of one specialization level.
type SpecializationMetadata struct {
	Type                SpecializationType
	Level               int32
	ActionCost          int32
	ActionJailedPenalty int32
	CooldownReduction   int32
	DamageIncrease      int32
	HealIncrease        int32
}

// BuildActionMetadata describes the cost of a build action.
type BuildActionMetadata struct {
	Type          BuildActionType
	Cost          int32
	BuildCooldown int32
}

// GlobalUpgradeMetadata describes a global upgrade.
type GlobalUpgradeMetadata struct {
	Type          GlobalUpgradeType
	UpgradeAmount int32
}

// GameHeader opens a game stream.
type GameHeader struct {
	SpecVersion            string
	Teams                  []TeamData
	SpecializationMetadata []SpecializationMetadata
	BuildActionMetadata    []BuildActionMetadata
	GlobalUpgradeMetadata  []GlobalUpgradeMetadata
	Constants              *GameplayConstants
}

// SpawnedBodyTable lists units entering play.
type SpawnedBodyTable struct {
	RobotIDs         []int32
	TeamIDs          []int8
	Locs             *VecTable
	AttacksPerformed []int32
	AttackLevels     []int32
	BuildsPerformed  []int32
	BuildLevels      []int32
	HealsPerformed   []int32
	HealLevels       []int32
	HoldingFlag      []bool
}

// GameMap is the static terrain of a match, also used as the standalone map file format.
type GameMap struct {
	Name                string
	Size                geom.Vec
	Symmetry            int32
	Bodies              *SpawnedBodyTable
	RandomSeed          int32
	Walls               []bool
	Water               []bool
	Divider             []bool
	SpawnLocations      *VecTable
	ResourcePiles       *VecTable
	ResourcePileAmounts []int32
}

// MatchHeader opens a match.
type MatchHeader struct {
	Map       *GameMap
	MaxRounds int32
}

// Round is the delta describing one turn of a match.
type Round struct {
	TeamIDs                []int32
	TeamResourceAmounts    []int32
	RobotIDs               []int32
	RobotLocs              *VecTable
	RobotMoveCooldowns     []int32
	RobotActionCooldowns   []int32
	RobotHealths           []int32
	AttacksPerformed       []int32
	AttackLevels           []int32
	BuildsPerformed        []int32
	BuildLevels            []int32
	HealsPerformed         []int32
	HealLevels             []int32
	SpawnedBodies          *SpawnedBodyTable
	DiedIDs                []int32
	ActionIDs              []int32
	Actions                []ActionType
	ActionTargets          []int32
	ClaimedResourcePiles   *VecTable
	TrapAddedIDs           []int32
	TrapAddedLocations     *VecTable
	TrapAddedTypes         []BuildActionType
	TrapAddedTeams         []int8
	TrapTriggeredIDs       []int32
	DigLocations           *VecTable
	FillLocations          *VecTable
	IndicatorStringIDs     []int32
	IndicatorStrings       []string
	IndicatorDotIDs        []int32
	IndicatorDotLocs       *VecTable
	IndicatorDotRGBs       *RGBTable
	IndicatorLineIDs       []int32
	IndicatorLineStartLocs *VecTable
	IndicatorLineEndLocs   *VecTable
	IndicatorLineRGBs      *RGBTable
	RoundID                int32
	BytecodeIDs            []int32
	BytecodesUsed          []int32
}

// NewRound returns a round with every required table present and empty.
func NewRound(roundID int32) *Round {
	return &Round{
		RoundID:                roundID,
		ClaimedResourcePiles:   &VecTable{},
		TrapAddedLocations:     &VecTable{},
		DigLocations:           &VecTable{},
		FillLocations:          &VecTable{},
		IndicatorDotLocs:       &VecTable{},
		IndicatorDotRGBs:       &RGBTable{},
		IndicatorLineStartLocs: &VecTable{},
		IndicatorLineEndLocs:   &VecTable{},
		IndicatorLineRGBs:      &RGBTable{},
	}
}

// Validate reports the first required table missing from the round.
func (r *Round) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: round", ErrMissingField)
	}
	required := []struct {
		name    string
		present bool
	}{
		{"claimedResourcePiles", r.ClaimedResourcePiles != nil},
		{"trapAddedLocations", r.TrapAddedLocations != nil},
		{"digLocations", r.DigLocations != nil},
		{"fillLocations", r.FillLocations != nil},
		{"indicatorDotLocs", r.IndicatorDotLocs != nil},
		{"indicatorDotRgbs", r.IndicatorDotRGBs != nil},
		{"indicatorLineStartLocs", r.IndicatorLineStartLocs != nil},
		{"indicatorLineEndLocs", r.IndicatorLineEndLocs != nil},
		{"indicatorLineRgbs", r.IndicatorLineRGBs != nil},
	}
	for _, field := range required {
		if !field.present {
			return fmt.Errorf("%w: round %d lacks %s", ErrMissingField, r.RoundID, field.name)
		}
	}
	return nil
}

// MatchFooter closes a match.
type MatchFooter struct {
	Winner      int32
	TotalRounds int32
}

// GameFooter closes a game.
type GameFooter struct {
	Winner int32
}

// UnknownEvent preserves the tag of an event this build cannot interpret.
type UnknownEvent struct {
	Tag EventType
}

func (*GameHeader) Type() EventType { return EventGameHeader }
func (*MatchHeader) Type() EventType { return EventMatchHeader }
func (*Round) Type() EventType { return EventRound }
func (*MatchFooter) Type() EventType { return EventMatchFooter }
func (*GameFooter) Type() EventType { return EventGameFooter }
func (u *UnknownEvent) Type() EventType { return u.Tag }

func (*GameHeader) isEvent() {}
func (*MatchHeader) isEvent() {}
func (*Round) isEvent() {}
func (*MatchFooter) isEvent() {}
func (*GameFooter) isEvent() {}
func (*UnknownEvent) isEvent() {}

// GameWrapper is the root of a replay file.
type GameWrapper struct {
	Events       []Event
	MatchHeaders []int32
	MatchFooters []int32
}

var (
	// ErrMalformed reports a buffer that is not a valid container.
	ErrMalformed = errors.New("malformed replay buffer")
	// ErrMissingField reports a required table absent from a record.
	ErrMissingField = errors.New("missing required field")
	// ErrLengthMismatch reports parallel arrays of different lengths.
	ErrLengthMismatch = errors.New("parallel arrays differ in length")
)
