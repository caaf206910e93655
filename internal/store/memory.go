package store

import (
	"context"
	"sync"
	"time"
)

type memoryRecord struct {
	data      []byte
	expiresAt time.Time // zero = no expiry
}

// MemoryStore keeps records in process memory. Expiry is checked lazily
// on read; there is no background sweeper.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]memoryRecord)}
}

func (s *MemoryStore) Put(_ context.Context, id string, data []byte, ttl time.Duration) error {
	rec := memoryRecord{data: append([]byte(nil), data...)}
	if ttl > 0 {
		rec.expiresAt = time.Now().Add(ttl)
	}
	s.mu.Lock()
	s.records[id] = rec
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) ([]byte, bool, error) {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !rec.expiresAt.IsZero() && time.Now().After(rec.expiresAt) {
		s.mu.Lock()
		delete(s.records, id)
		s.mu.Unlock()
		return nil, false, nil
	}
	return append([]byte(nil), rec.data...), true, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.records, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Scan(ctx context.Context, fn func(id string, data []byte) error) error {
	now := time.Now()

	s.mu.RLock()
	type pair struct {
		id   string
		data []byte
	}
	live := make([]pair, 0, len(s.records))
	for id, rec := range s.records {
		if !rec.expiresAt.IsZero() && now.After(rec.expiresAt) {
			continue
		}
		live = append(live, pair{id: id, data: append([]byte(nil), rec.data...)})
	}
	s.mu.RUnlock()

	for _, p := range live {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := fn(p.id, p.data); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
