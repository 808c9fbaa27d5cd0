package dispatcher

import (
	"context"

	"go.uber.org/zap"

	"github.com/solana-sos/emergency/domain/entities"
	"github.com/solana-sos/emergency/domain/repositories"
)

// LogTransport is a placeholder transport for drills. Nothing leaves the process.
type LogTransport struct {
	logger *zap.Logger
}

var _ repositories.DispatcherTransport = (*LogTransport)(nil)

// NewLogTransport creates a new logging dispatcher transport
func NewLogTransport(logger *zap.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

// Dial implements repositories.DispatcherTransport
func (t *LogTransport) Dial(ctx context.Context, number, locationHint string) error {
	t.logger.Info("Drill: dialing emergency number",
		zap.String("number", number),
		zap.String("locationHint", locationHint))
	return nil
}

// DeliverContext implements repositories.DispatcherTransport
func (t *LogTransport) DeliverContext(ctx context.Context, dispatcherContext entities.DispatcherContext) error {
	fields := []zap.Field{
		zap.String("category", string(dispatcherContext.Category)),
		zap.String("number", dispatcherContext.EmergencyNumber),
		zap.Strings("currentActions", dispatcherContext.CurrentActions),
		zap.String("victimStatus", dispatcherContext.VictimStatus),
		zap.Bool("audioFeed", dispatcherContext.AudioFeedEnabled),
	}
	if dispatcherContext.SpecializedRouting != nil {
		fields = append(fields, zap.String("routing", *dispatcherContext.SpecializedRouting))
	}
	t.logger.Info("Drill: delivering dispatcher context", fields...)
	return nil
}

// ShareLocation implements repositories.DispatcherTransport
func (t *LogTransport) ShareLocation(ctx context.Context, location entities.Coordinates) error {
	t.logger.Info("Drill: sharing location",
		zap.Float64("latitude", location.Latitude),
		zap.Float64("longitude", location.Longitude))
	return nil
}
