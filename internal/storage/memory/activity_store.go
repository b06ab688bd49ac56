package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"pft-memo-cache/internal/domain"
	"pft-memo-cache/internal/storage"
)

// activityKey identifies one (account, day) aggregate.
type activityKey struct {
	account string
	day     time.Time
}

// AccountActivityStore is an in-memory implementation of
// storage.AccountActivityStore.
type AccountActivityStore struct {
	mu   sync.RWMutex
	data map[activityKey]*domain.AccountActivityPoint
}

// NewAccountActivityStore creates a new in-memory activity store.
func NewAccountActivityStore() *AccountActivityStore {
	return &AccountActivityStore{
		data: make(map[activityKey]*domain.AccountActivityPoint),
	}
}

// Compile-time interface check.
var _ storage.AccountActivityStore = (*AccountActivityStore)(nil)

// InsertBulk adds or replaces activity points.
func (s *AccountActivityStore) InsertBulk(_ context.Context, points []*domain.AccountActivityPoint) error {
	for _, p := range points {
		if p.Account == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range points {
		pointCopy := *p
		s.data[activityKey{p.Account, p.Day}] = &pointCopy
	}
	return nil
}

// GetByAccount retrieves all points for an account, ordered by day ASC.
func (s *AccountActivityStore) GetByAccount(_ context.Context, account string) ([]*domain.AccountActivityPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AccountActivityPoint
	for _, p := range s.data {
		if p.Account == account {
			pointCopy := *p
			result = append(result, &pointCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Day.Before(result[j].Day)
	})

	return result, nil
}

// GetByTimeRange retrieves an account's points with day within [start, end]
// (inclusive), ordered by day ASC.
func (s *AccountActivityStore) GetByTimeRange(_ context.Context, account string, start, end time.Time) ([]*domain.AccountActivityPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AccountActivityPoint
	for _, p := range s.data {
		if p.Account != account || p.Day.Before(start) || p.Day.After(end) {
			continue
		}
		pointCopy := *p
		result = append(result, &pointCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Day.Before(result[j].Day)
	})

	return result, nil
}
