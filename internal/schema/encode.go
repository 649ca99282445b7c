package schema

import (
	flatbuffers "github.com/google/flatbuffers/go"
)

// EncodeGameWrapper serialises a replay. Missing match header and footer indices are
// derived from the event list.
func EncodeGameWrapper(wrapper *GameWrapper) []byte {
	w := newWriter()
	headers, footers := wrapper.MatchHeaders, wrapper.MatchFooters
	if headers == nil && footers == nil {
		headers, footers = EventIndices(wrapper.Events)
	}
	events := make([]flatbuffers.UOffsetT, len(wrapper.Events))
	for i, ev := range wrapper.Events {
		events[i] = w.event(ev)
	}
	eventsOff := w.offsets(events)
	headersOff := w.int32s(headers)
	footersOff := w.int32s(footers)

	w.StartObject(3)
	w.ref(0, eventsOff)
	w.ref(1, headersOff)
	w.ref(2, footersOff)
	w.Finish(w.EndObject())
	return w.FinishedBytes()
}

// EncodeEvent serialises one event as a standalone event wrapper.
func EncodeEvent(event Event) []byte {
	w := newWriter()
	w.Finish(w.event(event))
	return w.FinishedBytes()
}

// EncodeGameMap serialises a standalone map file.
func EncodeGameMap(m *GameMap) []byte {
	w := newWriter()
	w.Finish(w.gameMap(m))
	return w.FinishedBytes()
}

// EventIndices returns the positions of every match header and match footer.
func EventIndices(events []Event) (headers, footers []int32) {
	headers, footers = []int32{}, []int32{}
	for i, ev := range events {
		switch ev.Type() {
		case EventMatchHeader:
			headers = append(headers, int32(i))
		case EventMatchFooter:
			footers = append(footers, int32(i))
		}
	}
	return headers, footers
}

func (w writer) event(event Event) flatbuffers.UOffsetT {
	var body flatbuffers.UOffsetT
	switch e := event.(type) {
	case *GameHeader:
		body = w.gameHeader(e)
	case *MatchHeader:
		mapOff := flatbuffers.UOffsetT(0)
		if e.Map != nil {
			mapOff = w.gameMap(e.Map)
		}
		w.StartObject(2)
		w.ref(0, mapOff)
		w.PrependInt32Slot(1, e.MaxRounds, 0)
		body = w.EndObject()
	case *Round:
		body = w.round(e)
	case *MatchFooter:
		w.StartObject(3)
		w.PrependInt8Slot(0, int8(e.Winner), 0)
		w.PrependInt32Slot(1, e.TotalRounds, 0)
		body = w.EndObject()
	case *GameFooter:
		w.StartObject(1)
		w.PrependInt8Slot(0, int8(e.Winner), 0)
		body = w.EndObject()
	}

	w.StartObject(2)
	w.PrependByteSlot(0, byte(event.Type()), 0)
	w.ref(1, body)
	return w.EndObject()
}

func (w writer) gameHeader(h *GameHeader) flatbuffers.UOffsetT {
	version := w.str(h.SpecVersion)

	var teams []flatbuffers.UOffsetT
	for _, t := range h.Teams {
		name, pkg := w.str(t.Name), w.str(t.PackageName)
		w.StartObject(3)
		w.ref(0, name)
		w.ref(1, pkg)
		w.PrependInt8Slot(2, t.TeamID, 0)
		teams = append(teams, w.EndObject())
	}
	var specs []flatbuffers.UOffsetT
	for _, s := range h.SpecializationMetadata {
		w.StartObject(7)
		w.PrependInt8Slot(0, int8(s.Type), 0)
		w.PrependInt32Slot(1, s.Level, 0)
		w.PrependInt32Slot(2, s.ActionCost, 0)
		w.PrependInt32Slot(3, s.ActionJailedPenalty, 0)
		w.PrependInt32Slot(4, s.CooldownReduction, 0)
		w.PrependInt32Slot(5, s.DamageIncrease, 0)
		w.PrependInt32Slot(6, s.HealIncrease, 0)
		specs = append(specs, w.EndObject())
	}
	var builds []flatbuffers.UOffsetT
	for _, b := range h.BuildActionMetadata {
		w.StartObject(3)
		w.PrependByteSlot(0, byte(b.Type), 0)
		w.PrependInt32Slot(1, b.Cost, 0)
		w.PrependInt32Slot(2, b.BuildCooldown, 0)
		builds = append(builds, w.EndObject())
	}
	var upgrades []flatbuffers.UOffsetT
	for _, u := range h.GlobalUpgradeMetadata {
		w.StartObject(2)
		w.PrependInt8Slot(0, int8(u.Type), 0)
		w.PrependInt32Slot(1, u.UpgradeAmount, 0)
		upgrades = append(upgrades, w.EndObject())
	}
	var constants flatbuffers.UOffsetT
	if c := h.Constants; c != nil {
		w.StartObject(8)
		w.PrependInt32Slot(0, c.SetupPhaseLength, 0)
		w.PrependInt32Slot(1, c.FlagMinDistance, 0)
		w.PrependInt32Slot(2, c.GlobalUpgradeRoundDelay, 0)
		w.PrependInt32Slot(3, c.PassiveResourceRate, 0)
		w.PrependInt32Slot(4, c.RobotBaseHealth, 0)
		w.PrependInt32Slot(5, c.JailedRounds, 0)
		w.PrependInt32Slot(6, c.VisionRadius, 0)
		w.PrependInt32Slot(7, c.ActionRadius, 0)
		constants = w.EndObject()
	}
	teamsOff := w.tableVector(h.Teams != nil, teams)
	specsOff := w.tableVector(h.SpecializationMetadata != nil, specs)
	buildsOff := w.tableVector(h.BuildActionMetadata != nil, builds)
	upgradesOff := w.tableVector(h.GlobalUpgradeMetadata != nil, upgrades)

	w.StartObject(6)
	w.ref(0, version)
	w.ref(1, teamsOff)
	w.ref(2, specsOff)
	w.ref(3, buildsOff)
	w.ref(4, upgradesOff)
	w.ref(5, constants)
	return w.EndObject()
}

func (w writer) tableVector(present bool, offsets []flatbuffers.UOffsetT) flatbuffers.UOffsetT {
	if !present {
		return 0
	}
	return w.offsets(offsets)
}

func (w writer) gameMap(m *GameMap) flatbuffers.UOffsetT {
	name := w.str(m.Name)
	var bodies flatbuffers.UOffsetT
	if m.Bodies != nil {
		bodies = w.spawnedBodies(m.Bodies)
	}
	walls := w.bools(m.Walls)
	water := w.bools(m.Water)
	divider := w.bools(m.Divider)
	spawns := w.vecTable(m.SpawnLocations)
	piles := w.vecTable(m.ResourcePiles)
	amounts := w.int32s(m.ResourcePileAmounts)

	w.StartObject(11)
	w.ref(0, name)
	w.vecStruct(1, m.Size.X, m.Size.Y)
	w.PrependInt32Slot(2, m.Symmetry, 0)
	w.ref(3, bodies)
	w.PrependInt32Slot(4, m.RandomSeed, 0)
	w.ref(5, walls)
	w.ref(6, water)
	w.ref(7, divider)
	w.ref(8, spawns)
	w.ref(9, piles)
	w.ref(10, amounts)
	return w.EndObject()
}

func (w writer) spawnedBodies(b *SpawnedBodyTable) flatbuffers.UOffsetT {
	ids := w.int32s(b.RobotIDs)
	teams := w.int8s(b.TeamIDs)
	locs := w.vecTable(b.Locs)
	attacks := w.int32s(b.AttacksPerformed)
	attackLevels := w.int32s(b.AttackLevels)
	builds := w.int32s(b.BuildsPerformed)
	buildLevels := w.int32s(b.BuildLevels)
	heals := w.int32s(b.HealsPerformed)
	healLevels := w.int32s(b.HealLevels)
	holding := w.bools(b.HoldingFlag)

	w.StartObject(10)
	w.ref(0, ids)
	w.ref(1, teams)
	w.ref(2, locs)
	w.ref(3, attacks)
	w.ref(4, attackLevels)
	w.ref(5, builds)
	w.ref(6, buildLevels)
	w.ref(7, heals)
	w.ref(8, healLevels)
	w.ref(9, holding)
	return w.EndObject()
}

func (w writer) vecTable(v *VecTable) flatbuffers.UOffsetT {
	if v == nil {
		return 0
	}
	xs, ys := w.int32s(v.Xs), w.int32s(v.Ys)
	w.StartObject(2)
	w.ref(0, xs)
	w.ref(1, ys)
	return w.EndObject()
}

func (w writer) rgbTable(c *RGBTable) flatbuffers.UOffsetT {
	if c == nil {
		return 0
	}
	red, green, blue := w.int32s(c.Red), w.int32s(c.Green), w.int32s(c.Blue)
	w.StartObject(3)
	w.ref(0, red)
	w.ref(1, green)
	w.ref(2, blue)
	return w.EndObject()
}

func (w writer) round(r *Round) flatbuffers.UOffsetT {
	var actions, trapTypes []byte
	if r.Actions != nil {
		actions = make([]byte, len(r.Actions))
		for i, a := range r.Actions {
			actions[i] = byte(a)
		}
	}
	if r.TrapAddedTypes != nil {
		trapTypes = make([]byte, len(r.TrapAddedTypes))
		for i, t := range r.TrapAddedTypes {
			trapTypes[i] = byte(t)
		}
	}
	var spawned flatbuffers.UOffsetT
	if r.SpawnedBodies != nil {
		spawned = w.spawnedBodies(r.SpawnedBodies)
	}

	// Slot 2 carries team communication, which the viewer never reads.
	fields := [39]flatbuffers.UOffsetT{
		0:  w.int32s(r.TeamIDs),
		1:  w.int32s(r.TeamResourceAmounts),
		3:  w.int32s(r.RobotIDs),
		4:  w.vecTable(r.RobotLocs),
		5:  w.int32s(r.RobotMoveCooldowns),
		6:  w.int32s(r.RobotActionCooldowns),
		7:  w.int32s(r.RobotHealths),
		8:  w.int32s(r.AttacksPerformed),
		9:  w.int32s(r.AttackLevels),
		10: w.int32s(r.BuildsPerformed),
		11: w.int32s(r.BuildLevels),
		12: w.int32s(r.HealsPerformed),
		13: w.int32s(r.HealLevels),
		14: spawned,
		15: w.int32s(r.DiedIDs),
		16: w.int32s(r.ActionIDs),
		17: w.bytes(actions),
		18: w.int32s(r.ActionTargets),
		19: w.vecTable(r.ClaimedResourcePiles),
		20: w.int32s(r.TrapAddedIDs),
		21: w.vecTable(r.TrapAddedLocations),
		22: w.bytes(trapTypes),
		23: w.int8s(r.TrapAddedTeams),
		24: w.int32s(r.TrapTriggeredIDs),
		25: w.vecTable(r.DigLocations),
		26: w.vecTable(r.FillLocations),
		27: w.int32s(r.IndicatorStringIDs),
		28: w.strs(r.IndicatorStrings),
		29: w.int32s(r.IndicatorDotIDs),
		30: w.vecTable(r.IndicatorDotLocs),
		31: w.rgbTable(r.IndicatorDotRGBs),
		32: w.int32s(r.IndicatorLineIDs),
		33: w.vecTable(r.IndicatorLineStartLocs),
		34: w.vecTable(r.IndicatorLineEndLocs),
		35: w.rgbTable(r.IndicatorLineRGBs),
		37: w.int32s(r.BytecodeIDs),
		38: w.int32s(r.BytecodesUsed),
	}

	w.StartObject(39)
	for slot, off := range fields {
		w.ref(slot, off)
	}
	w.PrependInt32Slot(36, r.RoundID, 0)
	return w.EndObject()
}
