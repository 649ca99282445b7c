package grpc

import (
	"context"

	"duckreplay/player/internal/events"
	"duckreplay/player/internal/playback"
)

// Controller runs playback operations with exclusive access to the shown match.
type Controller interface {
	DoMatch(fn func(m *playback.Match) error) error
}

// Watcher hands out notification subscriptions.
type Watcher interface {
	Subscribe(ctx context.Context, subscriberID string, buffer int) (*events.Subscription, error)
}
