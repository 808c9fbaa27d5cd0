package repositories

import (
	"context"

	"github.com/solana-sos/emergency/domain/entities"
)

// DispatcherTransport abstracts the connection to the emergency dispatcher service
type DispatcherTransport interface {
	// Dial places the call to the escalation number
	Dial(ctx context.Context, number string, locationHint string) error
	// DeliverContext sends the dispatcher context for the ongoing call
	DeliverContext(ctx context.Context, dispatcherContext entities.DispatcherContext) error
	// ShareLocation sends the responder's coordinates
	ShareLocation(ctx context.Context, location entities.Coordinates) error
}

// EventPublisher receives coordinator lifecycle events
type EventPublisher interface {
	Publish(event entities.EmergencyEvent)
}
