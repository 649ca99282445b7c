package gamemap

import (
	"duckreplay/player/internal/geom"
	"duckreplay/player/internal/schema"
)

// FileExtension is appended to exported map names.
const FileExtension = ".map24"

// ToSchema packs the map and the bodies placed on it into the standalone map file record.
// Pile amounts are taken from m so edits made in the editor are kept.
func ToSchema(m *CurrentMap, bodies *schema.SpawnedBodyTable) *schema.GameMap {
	static := m.Static
	return &schema.GameMap{
		Name:                static.Name,
		Size:                geom.Vec{X: static.Width, Y: static.Height},
		Symmetry:            int32(static.Symmetry),
		Bodies:              bodies,
		RandomSeed:          static.RandomSeed,
		Walls:               append([]bool{}, static.Walls...),
		Water:               append([]bool{}, static.InitialWater...),
		Divider:             append([]bool{}, static.Divider...),
		SpawnLocations:      schema.NewVecTable(static.SpawnLocations...),
		ResourcePiles:       schema.NewVecTable(static.ResourcePileLocations...),
		ResourcePileAmounts: m.PileAmounts(),
	}
}
