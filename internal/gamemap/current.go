package gamemap

import (
	"fmt"
	"maps"
	"slices"

	"duckreplay/player/internal/geom"
	"duckreplay/player/internal/schema"
	"duckreplay/player/internal/team"
)

// NoCarrier marks a flag resting on the ground.
const NoCarrier int32 = -1

// Trap is a placed trap awaiting a trigger.
type Trap struct {
	Location geom.Vec
	Type     schema.BuildActionType
	// Team is the 1-based owner id.
	Team int8
}

// Flag is a capturable flag. Flags are created with the map and only ever removed.
type Flag struct {
	// Team is the zero-based owner slot.
	Team     int
	Location geom.Vec
	Carrier  int32
}

// CurrentMap is the terrain state of one turn.
type CurrentMap struct {
	Static *StaticMap
	Water  []bool
	// Piles maps a tile index to the crumbs left on it.
	Piles map[int]int32
	// Traps is keyed by trap id.
	Traps map[int32]Trap
	// Flags is keyed by flag id, which is the tile index of the spawn zone it started on.
	Flags map[int32]Flag
}

// NewCurrentMap seeds the turn-zero state from static.
func NewCurrentMap(static *StaticMap) (*CurrentMap, error) {
	m := &CurrentMap{
		Static: static,
		Water:  slices.Clone(static.InitialWater),
		Piles:  make(map[int]int32, len(static.ResourcePileLocations)),
		Traps:  make(map[int32]Trap),
		Flags:  make(map[int32]Flag, len(static.SpawnLocations)),
	}
	for i, loc := range static.ResourcePileLocations {
		idx, err := static.LocationToIndex(loc)
		if err != nil {
			return nil, fmt.Errorf("resource pile %d: %w", i, err)
		}
		m.Piles[idx] = static.InitialResourcePileAmounts[i]
	}
	for i, loc := range static.SpawnLocations {
		idx, err := static.LocationToIndex(loc)
		if err != nil {
			return nil, fmt.Errorf("spawn zone %d: %w", i, err)
		}
		m.Flags[int32(idx)] = Flag{Team: i % 2, Location: loc, Carrier: NoCarrier}
	}
	return m, nil
}

// Clone deep-copies the turn-varying state and shares the static map.
func (m *CurrentMap) Clone() *CurrentMap {
	return &CurrentMap{
		Static: m.Static,
		Water:  slices.Clone(m.Water),
		Piles:  maps.Clone(m.Piles),
		Traps:  maps.Clone(m.Traps),
		Flags:  maps.Clone(m.Flags),
	}
}

// ApplyDelta zeroes claimed piles and records added and triggered traps. Dug and filled
// tiles are handled by the action log.
func (m *CurrentMap) ApplyDelta(delta *schema.Round) error {
	claimed, err := delta.ClaimedResourcePiles.Points()
	if err != nil {
		return fmt.Errorf("claimed resource piles: %w", err)
	}
	for _, p := range claimed {
		idx, err := m.Static.LocationToIndex(p)
		if err != nil {
			return fmt.Errorf("claimed resource pile: %w", err)
		}
		if _, ok := m.Piles[idx]; !ok {
			return fmt.Errorf("%w: (%d, %d)", ErrUnknownPile, p.X, p.Y)
		}
		m.Piles[idx] = 0
	}

	added, err := delta.TrapAddedLocations.Points()
	if err != nil {
		return fmt.Errorf("trap locations: %w", err)
	}
	n := len(delta.TrapAddedIDs)
	if len(added) != n || len(delta.TrapAddedTypes) != n || len(delta.TrapAddedTeams) != n {
		return fmt.Errorf("%w: %d trap ids, %d locations, %d types, %d teams", schema.ErrLengthMismatch,
			n, len(added), len(delta.TrapAddedTypes), len(delta.TrapAddedTeams))
	}
	for i, id := range delta.TrapAddedIDs {
		m.Traps[id] = Trap{Location: added[i], Type: delta.TrapAddedTypes[i], Team: delta.TrapAddedTeams[i]}
	}
	for _, id := range delta.TrapTriggeredIDs {
		delete(m.Traps, id)
	}
	return nil
}

// IsEmpty reports whether the editor may resize the map without discarding work.
func (m *CurrentMap) IsEmpty() bool {
	return len(m.Piles) == 0 && m.Static.IsEmpty()
}

// TooltipInfo describes the tile under the cursor, one line per feature.
func (m *CurrentMap) TooltipInfo(p geom.Vec) []string {
	idx, err := m.Static.LocationToIndex(p)
	if err != nil {
		return nil
	}
	var info []string
	if amount, ok := m.Piles[idx]; ok {
		info = append(info, fmt.Sprintf("Crumbs: %d", amount))
	}
	if trap, ok := m.trapAt(p); ok {
		info = append(info, fmt.Sprintf("%s %s trap", team.ColorName(int(trap.Team)-1), trap.Type.Name()))
	}
	if flag, ok := m.flagAt(p); ok {
		info = append(info, fmt.Sprintf("%s flag", team.ColorName(flag.Team)))
	}
	if m.Water[idx] {
		info = append(info, "Water")
	}
	if m.Static.Divider[idx] {
		info = append(info, "Divider")
	}
	if m.Static.Walls[idx] {
		info = append(info, "Walls")
	}
	return info
}

// trapAt returns the lowest-id trap on p.
func (m *CurrentMap) trapAt(p geom.Vec) (Trap, bool) {
	for _, id := range slices.Sorted(maps.Keys(m.Traps)) {
		if trap := m.Traps[id]; trap.Location == p {
			return trap, true
		}
	}
	return Trap{}, false
}

func (m *CurrentMap) flagAt(p geom.Vec) (Flag, bool) {
	for _, id := range slices.Sorted(maps.Keys(m.Flags)) {
		if flag := m.Flags[id]; flag.Location == p {
			return flag, true
		}
	}
	return Flag{}, false
}

// PileAmounts lists the remaining crumbs in the static declaration order.
func (m *CurrentMap) PileAmounts() []int32 {
	out := make([]int32, 0, len(m.Static.ResourcePileLocations))
	for _, loc := range m.Static.ResourcePileLocations {
		idx, err := m.Static.LocationToIndex(loc)
		if err != nil {
			continue
		}
		out = append(out, m.Piles[idx])
	}
	return out
}
