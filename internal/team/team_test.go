package team

import (
	"errors"
	"testing"

	"duckreplay/player/internal/schema"
)

func TestFromHeaderAssignsColours(t *testing.T) {
	header := &schema.GameHeader{Teams: []schema.TeamData{
		{Name: "alpha", PackageName: "alpha.bot", TeamID: 1},
		{Name: "beta", PackageName: "beta.bot", TeamID: 2},
	}}
	roster, err := FromHeader(header)
	if err != nil {
		t.Fatalf("from header: %v", err)
	}
	if roster[0].ColorName != "White" || roster[1].Color != "#9c8362" {
		t.Fatalf("unexpected colours: %+v", roster)
	}
	beta, err := roster.ByID(2)
	if err != nil {
		t.Fatalf("by id: %v", err)
	}
	if beta.Name != "beta" || beta.Index() != 1 {
		t.Fatalf("unexpected team: %+v", beta)
	}
}

func TestByIDUnknown(t *testing.T) {
	if _, err := EditorRoster().ByID(3); !errors.Is(err, ErrUnknownTeam) {
		t.Fatalf("expected ErrUnknownTeam, got %v", err)
	}
}

func TestFromHeaderRejectsSwappedIDs(t *testing.T) {
	header := &schema.GameHeader{Teams: []schema.TeamData{{Name: "a", TeamID: 2}, {Name: "b", TeamID: 1}}}
	if _, err := FromHeader(header); !errors.Is(err, ErrUnknownTeam) {
		t.Fatalf("expected ErrUnknownTeam, got %v", err)
	}
}
