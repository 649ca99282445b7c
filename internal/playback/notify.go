package playback

import "fmt"

// NotificationKind separates logical progress from pure redraw requests.
type NotificationKind uint8

const (
	// TurnProgress is published whenever the current turn of a match changed.
	TurnProgress NotificationKind = iota + 1
	// Render asks observers to redraw, e.g. while interpolating inside a turn.
	Render
)

func (k NotificationKind) String() string {
	switch k {
	case TurnProgress:
		return "turn_progress"
	case Render:
		return "render"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Notification describes a state change of one match.
type Notification struct {
	Kind   NotificationKind
	GameID string
	Match  int
	Turn   int
}

// Notifier receives playback notifications. Notify runs synchronously inside the navigation
// call that caused it and must not call back into the match.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

// Notify calls f.
func (f NotifierFunc) Notify(n Notification) { f(n) }

type discardNotifier struct{}

func (discardNotifier) Notify(Notification) {}
