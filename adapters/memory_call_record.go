package adapters

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/solana-sos/emergency/domain"
	"github.com/solana-sos/emergency/domain/entities"
	"github.com/solana-sos/emergency/domain/repositories"
)

// MemoryCallRecordRepository is an in-memory implementation of CallRecordRepository.
// Used when no MongoDB is configured and by drills.
type MemoryCallRecordRepository struct {
	mu      sync.RWMutex
	records map[string]*entities.EmergencyCallData // id -> record
}

var _ repositories.CallRecordRepository = (*MemoryCallRecordRepository)(nil)

// NewMemoryCallRecordRepository creates a new in-memory call record repository
func NewMemoryCallRecordRepository() *MemoryCallRecordRepository {
	return &MemoryCallRecordRepository{
		records: make(map[string]*entities.EmergencyCallData),
	}
}

// RecordCall implements CallRecordRepository interface
func (m *MemoryCallRecordRepository) RecordCall(ctx context.Context, record *entities.EmergencyCallData) error {
	if record == nil {
		return errors.New("call record cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if _, exists := m.records[record.ID]; exists {
		return fmt.Errorf("%w: call record %s already exists", domain.ErrStorage, record.ID)
	}

	stored := *record
	m.records[record.ID] = &stored
	return nil
}

// GetByID implements CallRecordRepository interface
func (m *MemoryCallRecordRepository) GetByID(ctx context.Context, id string) (*entities.EmergencyCallData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, exists := m.records[id]
	if !exists {
		return nil, fmt.Errorf("%w: call record %s", domain.ErrNotFound, id)
	}

	out := *record
	return &out, nil
}

// ListRecent implements CallRecordRepository interface
func (m *MemoryCallRecordRepository) ListRecent(ctx context.Context, limit int) ([]*entities.EmergencyCallData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]*entities.EmergencyCallData, 0, len(m.records))
	for _, record := range m.records {
		out := *record
		records = append(records, &out)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// DeleteBefore implements CallRecordRepository interface
func (m *MemoryCallRecordRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for id, record := range m.records {
		if record.Timestamp.Before(cutoff) {
			delete(m.records, id)
			deleted++
		}
	}
	return deleted, nil
}

// Count returns the number of stored records
func (m *MemoryCallRecordRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
