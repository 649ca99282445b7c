package gamemap

import (
	"errors"
	"fmt"

	"duckreplay/player/internal/geom"
)

// ErrMapGuarantee is wrapped by every GuaranteeError.
var ErrMapGuarantee = errors.New("map guarantee violated")

const (
	requiredSpawnZones   = 6
	minSpawnDistSquared  = 36
	minSpawnableTiles    = 9 * 3 * 2
	maxFloodedMapPortion = 0.5
)

// GuaranteeError carries the message shown to a map author whose map cannot be exported.
type GuaranteeError struct {
	Reason string
}

func (e *GuaranteeError) Error() string { return e.Reason }

func (e *GuaranteeError) Unwrap() error { return ErrMapGuarantee }

func violation(format string, args ...any) error {
	return &GuaranteeError{Reason: fmt.Sprintf(format, args...)}
}

// Validate checks that a map is playable: six well separated spawn zones with enough open
// ground around them, and a divider that keeps the two teams apart at the start.
func Validate(m *CurrentMap, bodyCount int) error {
	static := m.Static
	if m.IsEmpty() && bodyCount == 0 {
		return violation("Map is empty")
	}

	spawns := static.SpawnLocations
	if len(spawns) != requiredSpawnZones {
		return violation("Map has %d spawn zones. Must have exactly %d", len(spawns), requiredSpawnZones)
	}
	for i := range spawns {
		for j := i + 1; j < len(spawns); j++ {
			if spawns[i].DistanceSquared(spawns[j]) < minSpawnDistSquared {
				return violation("Spawn zones %d and %d are too close together, they must be at least sqrt(36) units apart (6 tiles)", i, j)
			}
		}
	}

	spawnable := 0
	for _, loc := range spawns {
		for dx := int32(-1); dx <= 1; dx++ {
			for dy := int32(-1); dy <= 1; dy++ {
				idx, err := static.LocationToIndex(geom.Vec{X: loc.X + dx, Y: loc.Y + dy})
				if err != nil {
					continue
				}
				if !m.Water[idx] && !static.Walls[idx] && !static.Divider[idx] {
					spawnable++
				}
			}
		}
	}
	if spawnable < minSpawnableTiles {
		return violation("Map has %d spawnable locations. Must have 9 * 3 for each team", spawnable)
	}

	flooded, reachesEnemy, err := floodFromFirstSpawn(static)
	if err != nil {
		return err
	}
	if float64(flooded) >= maxFloodedMapPortion*float64(static.Width)*float64(static.Height) {
		return violation("Map is too open. Must be divided into at least 2 sections by the dam")
	}
	if reachesEnemy {
		return violation("Maps cannot have spawn zones that are initially reachable by both teams")
	}
	return nil
}

// floodFromFirstSpawn walks every tile reachable from spawn zone 0 without crossing the
// divider, noting whether it stepped onto a spawn zone of the other team.
func floodFromFirstSpawn(static *StaticMap) (int, bool, error) {
	enemy := make(map[geom.Vec]bool)
	for i, loc := range static.SpawnLocations {
		if i%2 != 0 {
			enemy[loc] = true
		}
	}
	start, err := static.LocationToIndex(static.SpawnLocations[0])
	if err != nil {
		return 0, false, fmt.Errorf("spawn zone 0: %w", err)
	}

	visited := make([]bool, int(static.Width)*int(static.Height))
	visited[start] = true
	queue := []int{start}
	flooded, reachesEnemy := 1, false
	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		here, err := static.IndexToLocation(idx)
		if err != nil {
			return 0, false, err
		}
		for _, dir := range geom.Directions {
			next := here.Add(dir)
			nextIdx, err := static.LocationToIndex(next)
			if err != nil || static.Divider[nextIdx] || visited[nextIdx] {
				continue
			}
			if enemy[next] {
				reachesEnemy = true
			}
			visited[nextIdx] = true
			queue = append(queue, nextIdx)
			flooded++
		}
	}
	return flooded, reachesEnemy, nil
}
