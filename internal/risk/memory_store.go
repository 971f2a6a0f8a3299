package risk

import (
	"context"
	"sync"
)

const maxMemoryRecords = 1000

// MemoryStore is an in-memory implementation of Store for demo/test use.
// It keeps the most recent maxMemoryRecords records.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*AuditRecord
}

// NewMemoryStore creates an in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Record(ctx context.Context, rec *AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := *rec
	s.records = append(s.records, &r)
	if len(s.records) > maxMemoryRecords {
		s.records = s.records[len(s.records)-maxMemoryRecords:]
	}
	return nil
}

func (s *MemoryStore) ListRecent(ctx context.Context, limit int) ([]*AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 || limit <= 0 {
		return nil, nil
	}

	// Most recent first, up to limit
	start := len(s.records) - limit
	if start < 0 {
		start = 0
	}

	result := make([]*AuditRecord, 0, len(s.records)-start)
	for i := len(s.records) - 1; i >= start; i-- {
		r := *s.records[i]
		result = append(result, &r)
	}
	return result, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
