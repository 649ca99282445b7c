// Package mapcheck validates map files the way the map editor does before exporting them.
package mapcheck

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"duckreplay/player/internal/gamemap"
	"duckreplay/player/internal/logging"
	"duckreplay/player/internal/playback"
)

// Report describes one map file.
type Report struct {
	Name          string `json:"name"`
	Width         int32  `json:"width"`
	Height        int32  `json:"height"`
	Symmetry      string `json:"symmetry"`
	Bodies        int    `json:"bodies"`
	SpawnZones    int    `json:"spawn_zones"`
	ResourcePiles int    `json:"resource_piles"`
	Valid         bool   `json:"valid"`
	Problem       string `json:"problem,omitempty"`
}

// Check loads a map file and tests it against the map guarantees. Structural problems, such
// as an undecodable file or a body on a wall, are returned as errors; a broken guarantee is
// reported in the Report.
func Check(raw []byte, log *logging.Logger) (Report, error) {
	_, m, err := playback.LoadMapFile(raw, playback.WithLogger(log))
	if err != nil {
		return Report{}, err
	}
	turn := m.CurrentTurn()
	static := m.Static()
	report := Report{
		Name:          static.Name,
		Width:         static.Width,
		Height:        static.Height,
		Symmetry:      static.Symmetry.String(),
		Bodies:        turn.Bodies.Len(),
		SpawnZones:    len(static.SpawnLocations),
		ResourcePiles: len(static.ResourcePileLocations),
	}
	err = gamemap.Validate(turn.Map, turn.Bodies.Len())
	var guarantee *gamemap.GuaranteeError
	switch {
	case err == nil:
		report.Valid = true
	case errors.As(err, &guarantee):
		report.Problem = guarantee.Reason
	default:
		return report, err
	}
	return report, nil
}

// CheckFile runs Check on the file at path.
func CheckFile(path string, log *logging.Logger) (Report, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Report{}, err
	}
	report, err := Check(raw, log)
	if err != nil {
		return report, fmt.Errorf("%s: %w", path, err)
	}
	return report, nil
}

// Normalize re-exports a valid map under name into dir and returns the written path.
func Normalize(raw []byte, dir, name string, log *logging.Logger) (string, error) {
	_, m, err := playback.LoadMapFile(raw, playback.WithLogger(log))
	if err != nil {
		return "", err
	}
	data, fileName, err := playback.ExportMap(m.CurrentTurn(), name)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, fileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
