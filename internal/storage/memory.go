package storage

import (
	"context"
	"sort"
	"sync"

	"wadispatch/internal/delivery"
)

type memoryStore struct {
	mu      sync.RWMutex
	entries []delivery.Entry
	closed  bool
}

func NewMemory() delivery.Store { return &memoryStore{} }

func (s *memoryStore) AppendDelivery(_ context.Context, e delivery.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *memoryStore) QueryDeliveries(_ context.Context, f delivery.Filter, limit, offset int) ([]delivery.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return selectEntries(s.entries, f, limit, offset), nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// selectEntries filters all (in append order) and returns one page,
// newest-first. Equal timestamps keep reverse append order.
func selectEntries(all []delivery.Entry, f delivery.Filter, limit, offset int) []delivery.Entry {
	matched := make([]delivery.Entry, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if f.Match(all[i]) {
			matched = append(matched, all[i])
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	if offset >= len(matched) {
		return []delivery.Entry{}
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}
