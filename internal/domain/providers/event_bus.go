package providers

import (
	"context"

	"github.com/postocalmo/backend/internal/domain/entities"
)

// EventBus defines the interface for publishing and subscribing to
// posto update events
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(ctx context.Context, channel string, event *entities.PostoEvent) error

	// Subscribe subscribes to events on a channel
	Subscribe(ctx context.Context, channel string) (<-chan *entities.PostoEvent, error)

	// Unsubscribe unsubscribes from a channel
	Unsubscribe(ctx context.Context, channel string) error

	// Close closes the event bus and all subscriptions
	Close() error
}

// Event channel constants
const (
	// EventChannelPostoUpdates is the channel for all posto updates
	EventChannelPostoUpdates = "posto:updates"

	// EventChannelPostoPrefix is the prefix for posto-specific channels
	EventChannelPostoPrefix = "posto:"
)

// GetPostoChannel returns the channel name for a specific posto
func GetPostoChannel(postoID string) string {
	return EventChannelPostoPrefix + postoID
}
