package adapters

import (
	"github.com/solana-sos/emergency/domain/entities"
	"github.com/solana-sos/emergency/domain/repositories"
)

// Publishers fans one event out to several publishers in order
type Publishers []repositories.EventPublisher

var _ repositories.EventPublisher = Publishers(nil)

// Publish implements repositories.EventPublisher
func (p Publishers) Publish(event entities.EmergencyEvent) {
	for _, publisher := range p {
		publisher.Publish(event)
	}
}
