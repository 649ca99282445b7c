// Package actions keeps the short-lived effects units performed during recent turns and
// applies their state changes to the map and bodies of a turn.
package actions

import (
	"errors"
	"fmt"
	"slices"

	"duckreplay/player/internal/bodies"
	"duckreplay/player/internal/gamemap"
	"duckreplay/player/internal/logging"
	"duckreplay/player/internal/schema"
)

// DefaultDuration is how many turns a new action stays in the log.
const DefaultDuration = 1

var (
	// ErrUnknownAction reports an action tag this build cannot interpret.
	ErrUnknownAction = errors.New("unknown action type")
	// ErrUnknownFlag reports an action referencing a flag that does not exist.
	ErrUnknownFlag = errors.New("flag not found")
	// ErrNoCarrier reports a capture of a flag nobody carries.
	ErrNoCarrier = errors.New("captured flag has no carrier")
)

// Action is one effect record. Target is a body id, a flag id or a tile index depending on Kind.
type Action struct {
	Kind     schema.ActionType
	RobotID  int32
	Target   int32
	Duration int
}

// Scene is the part of a turn actions may change.
type Scene struct {
	Map    *gamemap.CurrentMap
	Bodies *bodies.Table
	Log    *logging.Logger
}

// Log is the ordered list of actions still rendered on the current turn.
type Log struct {
	Actions []Action
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{}
}

// Clone copies the log.
func (l *Log) Clone() *Log {
	return &Log{Actions: slices.Clone(l.Actions)}
}

// ApplyDelta expires finished actions and then appends and applies the actions of delta,
// each exactly once.
func (l *Log) ApplyDelta(scene Scene, delta *schema.Round) error {
	//1.- Age the log in place.
	kept := l.Actions[:0]
	for _, action := range l.Actions {
		action.Duration--
		if action.Duration > 0 {
			kept = append(kept, action)
		}
	}
	clear(l.Actions[len(kept):])
	l.Actions = kept

	//2.- Apply the new actions as they are inserted.
	n := len(delta.Actions)
	if len(delta.ActionIDs) != n || len(delta.ActionTargets) != n {
		return fmt.Errorf("%w: %d actions, %d action ids, %d targets", schema.ErrLengthMismatch,
			n, len(delta.ActionIDs), len(delta.ActionTargets))
	}
	for i, kind := range delta.Actions {
		action := Action{Kind: kind, RobotID: delta.ActionIDs[i], Target: delta.ActionTargets[i], Duration: DefaultDuration}
		if err := apply(scene, action); err != nil {
			return fmt.Errorf("round %d action %d (%s): %w", delta.RoundID, i, kind, err)
		}
		l.Actions = append(l.Actions, action)
	}
	return nil
}

func apply(scene Scene, a Action) error {
	switch a.Kind {
	case schema.ActionDig:
		return setWater(scene.Map, a.Target, true)
	case schema.ActionFill:
		return setWater(scene.Map, a.Target, false)
	case schema.ActionPickupFlag:
		return pickupFlag(scene, a)
	case schema.ActionDropFlag, schema.ActionResetFlag:
		return placeFlag(scene, a)
	case schema.ActionCaptureFlag:
		return captureFlag(scene, a)
	case schema.ActionDieException:
		log := scene.Log
		if log == nil {
			log = logging.L()
		}
		log.Warn("robot raised an exception",
			logging.Int64("robot_id", int64(a.RobotID)), logging.Int64("target", int64(a.Target)))
		return nil
	case schema.ActionAttack, schema.ActionHeal, schema.ActionExplosiveTrap, schema.ActionWaterTrap,
		schema.ActionStunTrap, schema.ActionGlobalUpgrade:
		// Health and traps already arrive as absolute values in the delta.
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnknownAction, uint8(a.Kind))
	}
}

func setWater(m *gamemap.CurrentMap, index int32, water bool) error {
	if _, err := m.Static.IndexToLocation(int(index)); err != nil {
		return err
	}
	m.Water[index] = water
	return nil
}

// pickupFlag hands the target flag to the acting body.
func pickupFlag(scene Scene, a Action) error {
	flag, ok := scene.Map.Flags[a.Target]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrUnknownFlag, a.Target)
	}
	carrier, err := scene.Bodies.ByID(a.RobotID)
	if err != nil {
		return err
	}
	flag.Carrier = a.RobotID
	scene.Map.Flags[a.Target] = flag
	carrier.CarriedFlag = a.Target
	return nil
}

// placeFlag drops or resets the flag whose id is RobotID onto tile Target.
func placeFlag(scene Scene, a Action) error {
	flagID := a.RobotID
	flag, ok := scene.Map.Flags[flagID]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrUnknownFlag, flagID)
	}
	if flag.Carrier != gamemap.NoCarrier {
		carrier, err := scene.Bodies.ByID(flag.Carrier)
		if err != nil {
			return err
		}
		carrier.CarriedFlag = bodies.NoFlag
	}
	location, err := scene.Map.Static.IndexToLocation(int(a.Target))
	if err != nil {
		return err
	}
	flag.Carrier = gamemap.NoCarrier
	flag.Location = location
	scene.Map.Flags[flagID] = flag
	return nil
}

// captureFlag removes the target flag from the game.
func captureFlag(scene Scene, a Action) error {
	flag, ok := scene.Map.Flags[a.Target]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrUnknownFlag, a.Target)
	}
	if flag.Carrier == gamemap.NoCarrier {
		return fmt.Errorf("%w: id %d", ErrNoCarrier, a.Target)
	}
	carrier, err := scene.Bodies.ByID(flag.Carrier)
	if err != nil {
		return err
	}
	carrier.CarriedFlag = bodies.NoFlag
	delete(scene.Map.Flags, a.Target)
	return nil
}
