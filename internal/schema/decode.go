package schema

import (
	"fmt"

	"duckreplay/player/internal/geom"
)

// DecodeGameWrapper parses a full (already decompressed) replay buffer.
func DecodeGameWrapper(buf []byte) (wrapper *GameWrapper, err error) {
	defer recoverMalformed(&err)
	r, err := openRoot(buf)
	if err != nil {
		return nil, err
	}
	wrapper = &GameWrapper{
		MatchHeaders: r.int32s(1),
		MatchFooters: r.int32s(2),
	}
	for _, ev := range r.tables(0) {
		wrapper.Events = append(wrapper.Events, readEvent(ev))
	}
	return wrapper, nil
}

// DecodeEvent parses a single event wrapper, the unit sent over a live feed.
func DecodeEvent(buf []byte) (event Event, err error) {
	defer recoverMalformed(&err)
	r, err := openRoot(buf)
	if err != nil {
		return nil, err
	}
	return readEvent(r), nil
}

// DecodeGameMap parses a standalone map file.
func DecodeGameMap(buf []byte) (m *GameMap, err error) {
	defer recoverMalformed(&err)
	r, err := openRoot(buf)
	if err != nil {
		return nil, err
	}
	return readGameMap(r), nil
}

func openRoot(buf []byte) (reader, error) {
	if len(buf) < 8 {
		return reader{}, fmt.Errorf("%w: %d bytes", ErrMalformed, len(buf))
	}
	return rootReader(buf), nil
}

func recoverMalformed(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %v", ErrMalformed, r)
	}
}

func readEvent(r reader) Event {
	tag := EventType(r.byteAt(0))
	body, ok := r.table(1)
	if !ok {
		return &UnknownEvent{Tag: tag}
	}
	switch tag {
	case EventGameHeader:
		return readGameHeader(body)
	case EventMatchHeader:
		header := &MatchHeader{MaxRounds: body.int32At(1)}
		if m, ok := body.table(0); ok {
			header.Map = readGameMap(m)
		}
		return header
	case EventRound:
		return readRound(body)
	case EventMatchFooter:
		return &MatchFooter{Winner: int32(body.int8At(0)), TotalRounds: body.int32At(1)}
	case EventGameFooter:
		return &GameFooter{Winner: int32(body.int8At(0))}
	default:
		return &UnknownEvent{Tag: tag}
	}
}

func readGameHeader(r reader) *GameHeader {
	header := &GameHeader{SpecVersion: r.stringAt(0)}
	for _, t := range r.tables(1) {
		header.Teams = append(header.Teams, TeamData{
			Name:        t.stringAt(0),
			PackageName: t.stringAt(1),
			TeamID:      t.int8At(2),
		})
	}
	for _, t := range r.tables(2) {
		header.SpecializationMetadata = append(header.SpecializationMetadata, SpecializationMetadata{
			Type:                SpecializationType(t.int8At(0)),
			Level:               t.int32At(1),
			ActionCost:          t.int32At(2),
			ActionJailedPenalty: t.int32At(3),
			CooldownReduction:   t.int32At(4),
			DamageIncrease:      t.int32At(5),
			HealIncrease:        t.int32At(6),
		})
	}
	for _, t := range r.tables(3) {
		header.BuildActionMetadata = append(header.BuildActionMetadata, BuildActionMetadata{
			Type:          BuildActionType(t.byteAt(0)),
			Cost:          t.int32At(1),
			BuildCooldown: t.int32At(2),
		})
	}
	for _, t := range r.tables(4) {
		header.GlobalUpgradeMetadata = append(header.GlobalUpgradeMetadata, GlobalUpgradeMetadata{
			Type:          GlobalUpgradeType(t.int8At(0)),
			UpgradeAmount: t.int32At(1),
		})
	}
	if c, ok := r.table(5); ok {
		header.Constants = &GameplayConstants{
			SetupPhaseLength:        c.int32At(0),
			FlagMinDistance:         c.int32At(1),
			GlobalUpgradeRoundDelay: c.int32At(2),
			PassiveResourceRate:     c.int32At(3),
			RobotBaseHealth:         c.int32At(4),
			JailedRounds:            c.int32At(5),
			VisionRadius:            c.int32At(6),
			ActionRadius:            c.int32At(7),
		}
	}
	return header
}

func readGameMap(r reader) *GameMap {
	x, y := r.vecStruct(1)
	m := &GameMap{
		Name:                r.stringAt(0),
		Size:                geom.Vec{X: x, Y: y},
		Symmetry:            r.int32At(2),
		RandomSeed:          r.int32At(4),
		Walls:               r.bools(5),
		Water:               r.bools(6),
		Divider:             r.bools(7),
		SpawnLocations:      readVecTable(r, 8),
		ResourcePiles:       readVecTable(r, 9),
		ResourcePileAmounts: r.int32s(10),
	}
	if b, ok := r.table(3); ok {
		m.Bodies = readSpawnedBodies(b)
	}
	return m
}

func readSpawnedBodies(r reader) *SpawnedBodyTable {
	return &SpawnedBodyTable{
		RobotIDs:         r.int32s(0),
		TeamIDs:          r.int8s(1),
		Locs:             readVecTable(r, 2),
		AttacksPerformed: r.int32s(3),
		AttackLevels:     r.int32s(4),
		BuildsPerformed:  r.int32s(5),
		BuildLevels:      r.int32s(6),
		HealsPerformed:   r.int32s(7),
		HealLevels:       r.int32s(8),
		HoldingFlag:      r.bools(9),
	}
}

func readVecTable(r reader, slot int) *VecTable {
	t, ok := r.table(slot)
	if !ok {
		return nil
	}
	return &VecTable{Xs: t.int32s(0), Ys: t.int32s(1)}
}

func readRGBTable(r reader, slot int) *RGBTable {
	t, ok := r.table(slot)
	if !ok {
		return nil
	}
	return &RGBTable{Red: t.int32s(0), Green: t.int32s(1), Blue: t.int32s(2)}
}

func readRound(r reader) *Round {
	round := &Round{
		TeamIDs:                r.int32s(0),
		TeamResourceAmounts:    r.int32s(1),
		RobotIDs:               r.int32s(3),
		RobotLocs:              readVecTable(r, 4),
		RobotMoveCooldowns:     r.int32s(5),
		RobotActionCooldowns:   r.int32s(6),
		RobotHealths:           r.int32s(7),
		AttacksPerformed:       r.int32s(8),
		AttackLevels:           r.int32s(9),
		BuildsPerformed:        r.int32s(10),
		BuildLevels:            r.int32s(11),
		HealsPerformed:         r.int32s(12),
		HealLevels:             r.int32s(13),
		DiedIDs:                r.int32s(15),
		ActionIDs:              r.int32s(16),
		ActionTargets:          r.int32s(18),
		ClaimedResourcePiles:   readVecTable(r, 19),
		TrapAddedIDs:           r.int32s(20),
		TrapAddedLocations:     readVecTable(r, 21),
		TrapAddedTeams:         r.int8s(23),
		TrapTriggeredIDs:       r.int32s(24),
		DigLocations:           readVecTable(r, 25),
		FillLocations:          readVecTable(r, 26),
		IndicatorStringIDs:     r.int32s(27),
		IndicatorStrings:       r.strings(28),
		IndicatorDotIDs:        r.int32s(29),
		IndicatorDotLocs:       readVecTable(r, 30),
		IndicatorDotRGBs:       readRGBTable(r, 31),
		IndicatorLineIDs:       r.int32s(32),
		IndicatorLineStartLocs: readVecTable(r, 33),
		IndicatorLineEndLocs:   readVecTable(r, 34),
		IndicatorLineRGBs:      readRGBTable(r, 35),
		RoundID:                r.int32At(36),
		BytecodeIDs:            r.int32s(37),
		BytecodesUsed:          r.int32s(38),
	}
	if b, ok := r.table(14); ok {
		round.SpawnedBodies = readSpawnedBodies(b)
	}
	if raw := r.bytesAt(17); raw != nil {
		round.Actions = make([]ActionType, len(raw))
		for i, v := range raw {
			round.Actions[i] = ActionType(v)
		}
	}
	if raw := r.bytesAt(22); raw != nil {
		round.TrapAddedTypes = make([]BuildActionType, len(raw))
		for i, v := range raw {
			round.TrapAddedTypes[i] = BuildActionType(v)
		}
	}
	return round
}
