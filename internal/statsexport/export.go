// Package statsexport writes the finalized per-turn team statistics of a game to parquet.
package statsexport

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"

	"duckreplay/player/internal/playback"
	"duckreplay/player/internal/stats"
)

// SchemaName is stored in the file metadata under the "schema" key.
const SchemaName = "turn_stat_v1"

// Row is one team at one turn of one match.
type Row struct {
	GameID string `parquet:"game_id,dict"`
	Match  int32  `parquet:"match"`
	Turn   int32  `parquet:"turn"`
	Team   string `parquet:"team,dict"`
	TeamID int32  `parquet:"team_id"`

	BaseRobots   int32 `parquet:"base_robots"`
	AttackRobots int32 `parquet:"attack_robots"`
	BuildRobots  int32 `parquet:"build_robots"`
	HealRobots   int32 `parquet:"heal_robots"`
	JailedRobots int32 `parquet:"jailed_robots"`

	AttackLevels float64 `parquet:"attack_levels"`
	BuildLevels  float64 `parquet:"build_levels"`
	HealLevels   float64 `parquet:"heal_levels"`

	ResourceAmount  int32    `parquet:"resource_amount"`
	ResourceAverage *float64 `parquet:"resource_average,optional"`
	GlobalUpgrades  []int32  `parquet:"global_upgrades"`
}

// MatchRows converts finalized stats of one match into rows. Unfinalized stats are skipped.
func MatchRows(gameID string, match int, roster [2]string, turns []*stats.TurnStat) []Row {
	rows := make([]Row, 0, 2*len(turns))
	for turn, stat := range turns {
		if stat == nil || (turn > 0 && !stat.Completed) {
			continue
		}
		for i, team := range stat.Teams {
			row := Row{
				GameID:         gameID,
				Match:          int32(match),
				Turn:           int32(turn),
				Team:           roster[i],
				TeamID:         int32(i + 1),
				BaseRobots:     int32(team.Robots[stats.SlotBase]),
				AttackRobots:   int32(team.Robots[stats.SlotAttack]),
				BuildRobots:    int32(team.Robots[stats.SlotBuild]),
				HealRobots:     int32(team.Robots[stats.SlotHeal]),
				JailedRobots:   int32(team.Robots[stats.SlotJailed]),
				AttackLevels:   team.SpecializationLevels[stats.SlotAttack],
				BuildLevels:    team.SpecializationLevels[stats.SlotBuild],
				HealLevels:     team.SpecializationLevels[stats.SlotHeal],
				ResourceAmount: team.ResourceAmount,
			}
			if team.ResourceAverage != nil {
				avg := *team.ResourceAverage
				row.ResourceAverage = &avg
			}
			for _, upgrade := range team.GlobalUpgrades {
				row.GlobalUpgrades = append(row.GlobalUpgrades, int32(upgrade))
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// Collect finalizes every match of game by seeking to its end, gathers the rows and puts
// each match back on the turn it was showing.
func Collect(game *playback.Game) ([]Row, error) {
	if game == nil {
		return nil, errors.New("no game to export")
	}
	roster := [2]string{game.Teams[0].Name, game.Teams[1].Name}
	var rows []Row
	for i, m := range game.Matches {
		shown := m.CurrentTurn().Number
		if err := m.JumpToEnd(false); err != nil {
			return nil, fmt.Errorf("match %d: %w", i, err)
		}
		rows = append(rows, MatchRows(game.ID, i, roster, m.Stats())...)
		if err := m.JumpToTurn(shown, false); err != nil {
			return nil, fmt.Errorf("match %d: %w", i, err)
		}
	}
	return rows, nil
}

// Write stores rows at outPath through a temporary file that is renamed into place.
func Write(outPath string, rows []Row) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmpPath := outPath + ".tmp"
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", SchemaName),
	); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write parquet: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename parquet: %w", err)
	}
	return nil
}

// Read loads every row of a file written by Write.
func Read(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, err
	}
	if name, _ := pf.Lookup("schema"); name != SchemaName {
		return nil, fmt.Errorf("%s: unexpected schema %q", path, name)
	}

	reader := parquet.NewGenericReader[Row](pf)
	defer reader.Close()
	rows := make([]Row, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return rows[:n], nil
}
