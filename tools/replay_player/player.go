// Package replayplayer loads a replay from disk, seeks it and summarises the shown turn.
package replayplayer

import (
	"fmt"
	"os"
	"path/filepath"

	"duckreplay/player/internal/logging"
	"duckreplay/player/internal/playback"
	"duckreplay/player/internal/replay"
	"duckreplay/player/internal/stats"
	"duckreplay/player/internal/statsexport"
)

// TeamSummary is one team at the shown turn.
type TeamSummary struct {
	Name      string `json:"name"`
	Robots    [5]int `json:"robots"`
	Resources int32  `json:"resources"`
	Alive     int    `json:"alive"`
	Flags     int    `json:"flags_carried"`
}

// TurnSummary describes the turn a match shows.
type TurnSummary struct {
	GameID  string         `json:"game_id"`
	Match   int            `json:"match"`
	Map     string         `json:"map"`
	Turn    int            `json:"turn"`
	MaxTurn int            `json:"max_turn"`
	Actions int            `json:"actions"`
	Winner  string         `json:"winner,omitempty"`
	Teams   [2]TeamSummary `json:"teams"`
}

// Open loads a replay file or a bundle directory into a game.
func Open(path string, log *logging.Logger) (*playback.Game, error) {
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	id := playback.WithID(filepath.Base(path))
	if info.IsDir() {
		//1.- Bundles are read frame by frame and assembled into one container.
		loader, err := replay.LoadBundle(path)
		if err != nil {
			return nil, err
		}
		return playback.FromWrapper(loader.Wrapper(), playback.WithLogger(log), id)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return playback.LoadFullGameRaw(raw, playback.WithLogger(log), id)
}

// Seek selects match index and jumps it to turn; a negative turn jumps to the end.
func Seek(game *playback.Game, index, turn int) (*playback.Match, error) {
	m, err := game.SelectMatch(index)
	if err != nil {
		return nil, err
	}
	if turn < 0 {
		return m, m.JumpToEnd(false)
	}
	return m, m.JumpToTurn(turn, false)
}

// Summarize describes the turn m currently shows.
func Summarize(m *playback.Match) TurnSummary {
	game := m.Game()
	turn := m.CurrentTurn()
	summary := TurnSummary{
		GameID:  game.ID,
		Match:   m.Index(),
		Map:     m.Static().Name,
		Turn:    turn.Number,
		MaxTurn: m.MaxTurn(),
		Actions: len(turn.Actions.Actions),
	}
	if winner := m.Winner(); winner != nil {
		summary.Winner = winner.Name
	}
	for i := range summary.Teams {
		teamStat := turn.Stat.Teams[i]
		summary.Teams[i] = TeamSummary{
			Name:      game.Teams[i].Name,
			Resources: teamStat.ResourceAmount,
		}
		copy(summary.Teams[i].Robots[:], teamStat.Robots[:stats.SlotJailed+1])
	}
	for _, b := range turn.Bodies.All() {
		i := b.Team.Index()
		if i < 0 || i >= len(summary.Teams) {
			continue
		}
		if !b.IsDead() {
			summary.Teams[i].Alive++
		}
		if b.HasFlag() {
			summary.Teams[i].Flags++
		}
	}
	return summary
}

// ExportStats writes the per-turn statistics of every match of game to a parquet file.
func ExportStats(game *playback.Game, path string) (int, error) {
	rows, err := statsexport.Collect(game)
	if err != nil {
		return 0, err
	}
	if err := statsexport.Write(path, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}
