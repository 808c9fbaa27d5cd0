package repositories

import (
	"context"
	"time"

	"github.com/solana-sos/emergency/domain/entities"
)

// CallRecordRepository defines data access methods for emergency call records
type CallRecordRepository interface {
	RecordCall(ctx context.Context, record *entities.EmergencyCallData) error
	GetByID(ctx context.Context, id string) (*entities.EmergencyCallData, error)
	ListRecent(ctx context.Context, limit int) ([]*entities.EmergencyCallData, error)
	// DeleteBefore removes records older than cutoff and returns how many were removed
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
