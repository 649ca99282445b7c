package catalog

import (
	"errors"
	"fmt"

	"duckreplay/player/internal/schema"
)

// ErrNoHeader reports a replay whose first event is not a game header.
var ErrNoHeader = errors.New("replay does not start with a game header")

// MatchSummary describes one match of a replay.
type MatchSummary struct {
	Index     int
	Map       string
	MaxRounds int
	Rounds    int
	Winner    string
}

// GameSummary describes a replay without simulating it.
type GameSummary struct {
	SpecVersion string
	Teams       []string
	Winner      string
	Matches     []MatchSummary
}

// Summarize walks the events of wrapper and counts rounds per match. Winners are resolved
// to team names through the game header.
func Summarize(wrapper *schema.GameWrapper) (GameSummary, error) {
	if wrapper == nil || len(wrapper.Events) == 0 {
		return GameSummary{}, ErrNoHeader
	}
	header, ok := wrapper.Events[0].(*schema.GameHeader)
	if !ok {
		return GameSummary{}, ErrNoHeader
	}
	summary := GameSummary{SpecVersion: header.SpecVersion}
	names := make(map[int32]string, len(header.Teams))
	for _, t := range header.Teams {
		summary.Teams = append(summary.Teams, t.Name)
		names[int32(t.TeamID)] = t.Name
	}

	var current *MatchSummary
	for i, event := range wrapper.Events[1:] {
		switch e := event.(type) {
		case *schema.MatchHeader:
			summary.Matches = append(summary.Matches, MatchSummary{Index: len(summary.Matches), MaxRounds: int(e.MaxRounds)})
			current = &summary.Matches[len(summary.Matches)-1]
			if e.Map != nil {
				current.Map = e.Map.Name
			}
		case *schema.Round:
			if current == nil {
				return GameSummary{}, fmt.Errorf("event %d: round outside a match", i+1)
			}
			current.Rounds++
		case *schema.MatchFooter:
			if current == nil {
				return GameSummary{}, fmt.Errorf("event %d: match footer outside a match", i+1)
			}
			current.Winner = names[e.Winner]
			current = nil
		case *schema.GameFooter:
			summary.Winner = names[e.Winner]
		case *schema.GameHeader:
			return GameSummary{}, fmt.Errorf("event %d: second game header", i+1)
		}
	}
	return summary, nil
}
