// Package stats computes the per-turn team aggregates shown next to a replay.
package stats

import (
	"errors"
	"fmt"
	"slices"

	"duckreplay/player/internal/schema"
)

// Unit categories indexing TeamStat.Robots and TeamStat.SpecializationLevels.
const (
	SlotBase = iota
	SlotAttack
	SlotBuild
	SlotHeal
	SlotJailed
	slotCount
)

const (
	// AverageEvery is the turn cadence of the rolling resource average.
	AverageEvery = 10
	// AverageWindow bounds how many earlier turns feed the rolling average.
	AverageWindow = 100
)

var (
	// ErrCompleted reports a second finalize of the same turn.
	ErrCompleted = errors.New("stat already completed")
	// ErrTurnMismatch reports a delta applied to the wrong turn.
	ErrTurnMismatch = errors.New("wrong turn id")
	// ErrUnknownTeam reports a team id outside the two participants.
	ErrUnknownTeam = errors.New("team not found in stats")
	// ErrMissingHistory reports a rolling average that needs turns not yet finalized.
	ErrMissingHistory = errors.New("missing finalized stat")
)

// TeamStat aggregates one team at one turn.
type TeamStat struct {
	Robots               [slotCount]int
	SpecializationLevels [slotCount]float64
	ResourceAmount       int32
	// ResourceAverage is set on every AverageEvery-th turn and carried forward otherwise.
	ResourceAverage *float64
	GlobalUpgrades  []schema.GlobalUpgradeType
}

// ResetUnits clears the unit counts before they are recounted.
func (s *TeamStat) ResetUnits() {
	s.Robots = [slotCount]int{}
	s.SpecializationLevels = [slotCount]float64{}
}

func (s TeamStat) clone() TeamStat {
	out := s
	if s.ResourceAverage != nil {
		avg := *s.ResourceAverage
		out.ResourceAverage = &avg
	}
	out.GlobalUpgrades = slices.Clone(s.GlobalUpgrades)
	return out
}

// TurnStat holds both teams' aggregates for one turn. Once Completed is set the value is
// never mutated again; the next turn starts from a Clone.
type TurnStat struct {
	Teams     [2]TeamStat
	Completed bool
}

// New returns the zero stat of turn 0.
func New() *TurnStat {
	return &TurnStat{}
}

// Clone deep-copies the stat including the completion mark.
func (s *TurnStat) Clone() *TurnStat {
	return &TurnStat{
		Teams:     [2]TeamStat{s.Teams[0].clone(), s.Teams[1].clone()},
		Completed: s.Completed,
	}
}

// Team returns the aggregate of the 1-based team id.
func (s *TurnStat) Team(id int32) (*TeamStat, error) {
	if id < 1 || id > int32(len(s.Teams)) {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownTeam, id)
	}
	return &s.Teams[id-1], nil
}

// ApplyDelta finalizes the stat of turn from delta. history holds the finalized stats of the
// turns before it, indexed by turn number.
func (s *TurnStat) ApplyDelta(turn int, delta *schema.Round, history []*TurnStat) error {
	if s.Completed {
		return fmt.Errorf("%w: turn %d", ErrCompleted, turn)
	}
	if int(delta.RoundID) != turn {
		return fmt.Errorf("%w: is %d, should be %d", ErrTurnMismatch, delta.RoundID, turn)
	}
	if len(delta.TeamIDs) != len(delta.TeamResourceAmounts) {
		return fmt.Errorf("%w: %d team ids and %d resource amounts", schema.ErrLengthMismatch,
			len(delta.TeamIDs), len(delta.TeamResourceAmounts))
	}

	//1.- Resources are reported as absolute amounts.
	for i, id := range delta.TeamIDs {
		teamStat, err := s.Team(id)
		if err != nil {
			return err
		}
		teamStat.ResourceAmount = delta.TeamResourceAmounts[i]
	}

	//2.- Every AverageEvery turns, average over the finalized window behind this turn.
	if turn%AverageEvery == 0 {
		oldest := max(0, turn-AverageWindow)
		if len(history) < turn {
			return fmt.Errorf("%w: need %d turns, have %d", ErrMissingHistory, turn, len(history))
		}
		for t := range s.Teams {
			sum := float64(s.Teams[t].ResourceAmount)
			count := 1
			for i := turn - 1; i >= oldest; i-- {
				sum += float64(history[i].Teams[t].ResourceAmount)
				count++
			}
			avg := sum / float64(count)
			s.Teams[t].ResourceAverage = &avg
		}
	}

	s.Completed = true
	return nil
}
