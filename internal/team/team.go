// Package team holds the immutable participant records of a game.
package team

import (
	"errors"
	"fmt"

	"duckreplay/player/internal/schema"
)

// ErrUnknownTeam reports an id that matches neither participant.
var ErrUnknownTeam = errors.New("unknown team")

var (
	colorNames = [2]string{"White", "Brown"}
	colors     = [2]string{"#bfbaa8", "#9c8362"}
)

// ColorName returns the colour name of the zero-based team slot, or "" when out of range.
func ColorName(index int) string {
	if index < 0 || index >= len(colorNames) {
		return ""
	}
	return colorNames[index]
}

// Record is the optional tournament standing shown next to a team name.
type Record struct {
	Wins int
	Elo  int
}

// Team is one of the two participants. Values are never mutated after construction.
type Team struct {
	Name        string
	ID          int32
	PackageName string
	ColorName   string
	Color       string
	Record      Record
}

// New builds the team with the given 1-based id and assigns its colour slot.
func New(name, packageName string, id int32) (Team, error) {
	if id != 1 && id != 2 {
		return Team{}, fmt.Errorf("%w: id %d", ErrUnknownTeam, id)
	}
	return Team{
		Name:        name,
		ID:          id,
		PackageName: packageName,
		ColorName:   colorNames[id-1],
		Color:       colors[id-1],
	}, nil
}

// Index returns the zero-based slot of the team.
func (t Team) Index() int { return int(t.ID - 1) }

// Roster is the ordered pair of teams in a game.
type Roster [2]Team

// FromHeader builds the roster announced by a game header.
func FromHeader(header *schema.GameHeader) (Roster, error) {
	var roster Roster
	if len(header.Teams) != 2 {
		return roster, fmt.Errorf("%w: header lists %d teams", ErrUnknownTeam, len(header.Teams))
	}
	for i, data := range header.Teams {
		t, err := New(data.Name, data.PackageName, int32(data.TeamID))
		if err != nil {
			return roster, err
		}
		if t.Index() != i {
			return roster, fmt.Errorf("%w: team %q declared at slot %d with id %d", ErrUnknownTeam, data.Name, i, t.ID)
		}
		roster[i] = t
	}
	return roster, nil
}

// EditorRoster returns the placeholder teams used while authoring maps.
func EditorRoster() Roster {
	red, _ := New(colorNames[0], "map_editor_red", 1)
	blue, _ := New(colorNames[1], "map_editor_blue", 2)
	return Roster{red, blue}
}

// ByID looks up a team by its 1-based id.
func (r Roster) ByID(id int32) (Team, error) {
	for _, t := range r {
		if t.ID == id {
			return t, nil
		}
	}
	return Team{}, fmt.Errorf("%w: id %d", ErrUnknownTeam, id)
}
