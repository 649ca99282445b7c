// Package gamemap models the terrain of a match: the immutable StaticMap parsed from the match
// header and the per-turn CurrentMap derived from it.
package gamemap

import (
	"errors"
	"fmt"

	"duckreplay/player/internal/geom"
	"duckreplay/player/internal/schema"
)

var (
	// ErrInvalidMap reports terrain arrays that contradict the declared dimensions.
	ErrInvalidMap = errors.New("invalid map")
	// ErrOutOfBounds reports a coordinate or tile index outside the map.
	ErrOutOfBounds = errors.New("location out of bounds")
	// ErrUnknownPile reports a claimed resource pile the map never declared.
	ErrUnknownPile = errors.New("unknown resource pile")
)

// Symmetry selects how a tile reflects onto its mirrored counterpart.
type Symmetry int32

const (
	SymmetryRotational Symmetry = iota
	SymmetryHorizontal
	SymmetryVertical
)

func (s Symmetry) String() string {
	switch s {
	case SymmetryRotational:
		return "rotational"
	case SymmetryHorizontal:
		return "horizontal"
	case SymmetryVertical:
		return "vertical"
	default:
		return fmt.Sprintf("symmetry(%d)", int32(s))
	}
}

// StaticMap is the terrain that never changes during a match. Every CurrentMap of the match
// shares one StaticMap.
type StaticMap struct {
	Name                       string
	RandomSeed                 int32
	Symmetry                   Symmetry
	Width                      int32
	Height                     int32
	Walls                      []bool
	Divider                    []bool
	InitialWater               []bool
	SpawnLocations             []geom.Vec
	ResourcePileLocations      []geom.Vec
	InitialResourcePileAmounts []int32
}

// Validate checks the symmetry mode and that every tile array covers the whole map.
func (m *StaticMap) Validate() error {
	if m.Symmetry < SymmetryRotational || m.Symmetry > SymmetryVertical {
		return fmt.Errorf("%w: symmetry %d", ErrInvalidMap, int32(m.Symmetry))
	}
	if m.Width < 0 || m.Height < 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidMap, m.Width, m.Height)
	}
	tiles := int(m.Width) * int(m.Height)
	for _, layer := range []struct {
		name  string
		tiles []bool
	}{{"walls", m.Walls}, {"divider", m.Divider}, {"water", m.InitialWater}} {
		if len(layer.tiles) != tiles {
			return fmt.Errorf("%w: %s has %d tiles, want %d", ErrInvalidMap, layer.name, len(layer.tiles), tiles)
		}
	}
	if len(m.ResourcePileLocations) != len(m.InitialResourcePileAmounts) {
		return fmt.Errorf("%w: %d resource piles with %d amounts", ErrInvalidMap, len(m.ResourcePileLocations), len(m.InitialResourcePileAmounts))
	}
	return nil
}

// FromSchema builds the static map carried by a match header or map file.
func FromSchema(m *schema.GameMap) (*StaticMap, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: map", schema.ErrMissingField)
	}
	switch {
	case m.Walls == nil:
		return nil, fmt.Errorf("%w: map walls", schema.ErrMissingField)
	case m.Divider == nil:
		return nil, fmt.Errorf("%w: map divider", schema.ErrMissingField)
	case m.Water == nil:
		return nil, fmt.Errorf("%w: map water", schema.ErrMissingField)
	case m.SpawnLocations == nil:
		return nil, fmt.Errorf("%w: map spawn locations", schema.ErrMissingField)
	case m.ResourcePiles == nil:
		return nil, fmt.Errorf("%w: map resource piles", schema.ErrMissingField)
	case m.ResourcePileAmounts == nil:
		return nil, fmt.Errorf("%w: map resource pile amounts", schema.ErrMissingField)
	}
	spawns, err := m.SpawnLocations.Points()
	if err != nil {
		return nil, fmt.Errorf("map spawn locations: %w", err)
	}
	piles, err := m.ResourcePiles.Points()
	if err != nil {
		return nil, fmt.Errorf("map resource piles: %w", err)
	}
	static := &StaticMap{
		Name:                       m.Name,
		RandomSeed:                 m.RandomSeed,
		Symmetry:                   Symmetry(m.Symmetry),
		Width:                      m.Size.X,
		Height:                     m.Size.Y,
		Walls:                      append([]bool(nil), m.Walls...),
		Divider:                    append([]bool(nil), m.Divider...),
		InitialWater:               append([]bool(nil), m.Water...),
		SpawnLocations:             spawns,
		ResourcePileLocations:      piles,
		InitialResourcePileAmounts: append([]int32(nil), m.ResourcePileAmounts...),
	}
	if err := static.Validate(); err != nil {
		return nil, err
	}
	return static, nil
}

// FromParams builds the blank map the editor starts from.
func FromParams(width, height int32, symmetry Symmetry) (*StaticMap, error) {
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("%w: dimensions %dx%d", ErrInvalidMap, width, height)
	}
	tiles := int(width) * int(height)
	static := &StaticMap{
		Name:                       "Custom Map",
		Symmetry:                   symmetry,
		Width:                      width,
		Height:                     height,
		Walls:                      make([]bool, tiles),
		Divider:                    make([]bool, tiles),
		InitialWater:               make([]bool, tiles),
		SpawnLocations:             []geom.Vec{},
		ResourcePileLocations:      []geom.Vec{},
		InitialResourcePileAmounts: []int32{},
	}
	if err := static.Validate(); err != nil {
		return nil, err
	}
	return static, nil
}

// InBounds reports whether p lies on the map.
func (m *StaticMap) InBounds(p geom.Vec) bool {
	return p.X >= 0 && p.X < m.Width && p.Y >= 0 && p.Y < m.Height
}

// LocationToIndex converts a tile coordinate into its row-major index.
func (m *StaticMap) LocationToIndex(p geom.Vec) (int, error) {
	if !m.InBounds(p) {
		return 0, fmt.Errorf("%w: (%d, %d) on %dx%d map", ErrOutOfBounds, p.X, p.Y, m.Width, m.Height)
	}
	return int(p.Y)*int(m.Width) + int(p.X), nil
}

// IndexToLocation converts a row-major index back into a tile coordinate.
func (m *StaticMap) IndexToLocation(index int) (geom.Vec, error) {
	if m.Width <= 0 || index < 0 || index >= int(m.Width)*int(m.Height) {
		return geom.Vec{}, fmt.Errorf("%w: index %d on %dx%d map", ErrOutOfBounds, index, m.Width, m.Height)
	}
	w := int(m.Width)
	return geom.Vec{X: int32(index % w), Y: int32(index / w)}, nil
}

// ApplySymmetry reflects p onto its mirrored tile. Horizontal symmetry flips y, vertical flips
// x and rotational flips both.
func (m *StaticMap) ApplySymmetry(p geom.Vec) geom.Vec {
	switch m.Symmetry {
	case SymmetryVertical:
		return geom.Vec{X: m.Width - p.X - 1, Y: p.Y}
	case SymmetryHorizontal:
		return geom.Vec{X: p.X, Y: m.Height - p.Y - 1}
	default:
		return geom.Vec{X: m.Width - p.X - 1, Y: m.Height - p.Y - 1}
	}
}

// IsEmpty reports a map with no walls, divider, spawn zones or resource piles.
func (m *StaticMap) IsEmpty() bool {
	for i := range m.Walls {
		if m.Walls[i] || m.Divider[i] {
			return false
		}
	}
	return len(m.SpawnLocations) == 0 && len(m.ResourcePileLocations) == 0
}

// WithName returns a copy of the map carrying a new name. Tile slices are shared.
func (m *StaticMap) WithName(name string) *StaticMap {
	clone := *m
	clone.Name = name
	return &clone
}
