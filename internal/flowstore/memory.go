package flowstore

import (
	"context"
	"sync"
	"time"

	"github.com/Osangy/api-sub000/internal/models"
)

// MemoryStore is an in-memory Repository for tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.FlowRecord
}

// NewMemoryStore creates an empty in-memory flow repository.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*models.FlowRecord)}
}

// Get returns a copy of the user's record, or (nil, nil) when none exists.
func (s *MemoryStore) Get(ctx context.Context, userID string) (*models.FlowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[userID]
	if !ok {
		return nil, nil
	}
	return copyRecord(record), nil
}

// Put replaces any existing record for the user.
func (s *MemoryStore) Put(ctx context.Context, record *models.FlowRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.UserID] = copyRecord(record)
	return nil
}

// SetCollected writes one collected attribute. Writing against an absent
// record is a no-op, matching a hash field write on an expired key.
func (s *MemoryStore) SetCollected(ctx context.Context, userID, attribute, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[userID]
	if !ok {
		return nil
	}
	if record.Collected == nil {
		record.Collected = make(map[string]string)
	}
	record.Collected[attribute] = value
	record.UpdatedAt = time.Now().UTC()
	return nil
}

// Delete removes the user's record.
func (s *MemoryStore) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, userID)
	return nil
}

func copyRecord(record *models.FlowRecord) *models.FlowRecord {
	clone := *record
	clone.Required = append([]models.AttributeRequirement(nil), record.Required...)
	clone.Collected = make(map[string]string, len(record.Collected))
	for k, v := range record.Collected {
		clone.Collected[k] = v
	}
	return &clone
}
