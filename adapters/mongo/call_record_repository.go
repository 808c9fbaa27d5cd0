package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/solana-sos/emergency/domain"
	"github.com/solana-sos/emergency/domain/entities"
	"github.com/solana-sos/emergency/domain/repositories"
)

const callRecordsCollection = "emergency_calls"

// CallRecordRepository stores emergency call records in MongoDB
type CallRecordRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

var _ repositories.CallRecordRepository = (*CallRecordRepository)(nil)

// NewCallRecordRepository creates a new MongoDB call record repository
func NewCallRecordRepository(db *mongo.Database, logger *zap.Logger) *CallRecordRepository {
	return &CallRecordRepository{
		collection: db.Collection(callRecordsCollection),
		logger:     logger,
	}
}

// EnsureIndexes creates the indexes used by ListRecent and DeleteBefore
func (r *CallRecordRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "incident_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("%w: failed to create indexes: %w", domain.ErrStorage, err)
	}
	return nil
}

// RecordCall implements repositories.CallRecordRepository
func (r *CallRecordRepository) RecordCall(ctx context.Context, record *entities.EmergencyCallData) error {
	if record == nil {
		return errors.New("call record cannot be nil")
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	if _, err := r.collection.InsertOne(ctx, record); err != nil {
		return fmt.Errorf("%w: failed to record call: %w", domain.ErrStorage, err)
	}

	r.logger.Debug("Call record stored",
		zap.String("id", record.ID),
		zap.String("incidentID", record.IncidentID))
	return nil
}

// GetByID implements repositories.CallRecordRepository
func (r *CallRecordRepository) GetByID(ctx context.Context, id string) (*entities.EmergencyCallData, error) {
	if id == "" {
		return nil, errors.New("call record ID cannot be empty")
	}

	var record entities.EmergencyCallData
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: call record %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: failed to get call record %s: %w", domain.ErrStorage, id, err)
	}
	return &record, nil
}

// ListRecent implements repositories.CallRecordRepository
func (r *CallRecordRepository) ListRecent(ctx context.Context, limit int) ([]*entities.EmergencyCallData, error) {
	if limit <= 0 {
		limit = 50
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list call records: %w", domain.ErrStorage, err)
	}
	defer cursor.Close(ctx)

	var records []*entities.EmergencyCallData
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("%w: failed to decode call records: %w", domain.ErrStorage, err)
	}
	return records, nil
}

// DeleteBefore implements repositories.CallRecordRepository
func (r *CallRecordRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"timestamp": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("%w: failed to delete call records: %w", domain.ErrStorage, err)
	}
	return result.DeletedCount, nil
}
