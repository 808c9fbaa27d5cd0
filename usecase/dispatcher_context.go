package usecase

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/solana-sos/emergency/domain"
	"github.com/solana-sos/emergency/domain/entities"
)

// Placeholder assessment text used before the front end reports anything better
const (
	defaultCurrentAction       = "Emergency assessment in progress"
	defaultVictimStatus        = "Status being assessed"
	defaultResponderCapability = "Trained responder with app guidance"
	defaultLocationDetails     = "GPS coordinates being obtained"
)

// DispatcherContextBuilder assembles the summary handed to a dispatcher
type DispatcherContextBuilder struct {
	logger *zap.Logger
}

// NewDispatcherContextBuilder creates a new dispatcher context builder
func NewDispatcherContextBuilder(logger *zap.Logger) *DispatcherContextBuilder {
	return &DispatcherContextBuilder{logger: logger}
}

// Build creates a fresh dispatcher context with the audio feed enabled
func (b *DispatcherContextBuilder) Build(
	category entities.EmergencyCategory,
	currentActions []string,
	victimStatus string,
	responderCapability string,
	locationDetails string,
) (entities.DispatcherContext, error) {
	if !category.Valid() {
		b.logger.Error("Rejecting dispatcher context for unknown category",
			zap.String("category", string(category)))
		return entities.DispatcherContext{}, fmt.Errorf("%w: unknown category %q", domain.ErrContextBuild, category)
	}

	return entities.DispatcherContext{
		Category:            category,
		CurrentActions:      append([]string(nil), currentActions...),
		VictimStatus:        victimStatus,
		ResponderCapability: responderCapability,
		LocationDetails:     locationDetails,
		AudioFeedEnabled:    true,
		EmergencyNumber:     category.EscalationNumber(),
		SpecializedRouting:  category.SpecializedRouting(),
	}, nil
}

// BuildDefault builds a context with the initial assessment placeholders
func (b *DispatcherContextBuilder) BuildDefault(category entities.EmergencyCategory) (entities.DispatcherContext, error) {
	return b.Build(
		category,
		[]string{defaultCurrentAction},
		defaultVictimStatus,
		defaultResponderCapability,
		defaultLocationDetails,
	)
}
