// Package analytics folds the derived memo store into per-account daily
// activity aggregates.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"pft-memo-cache/internal/domain"
	"pft-memo-cache/internal/storage"
)

// ErrNoMemos is returned when the requested range holds no memo rows.
var ErrNoMemos = errors.New("no memos in range")

// Aggregator computes account activity points from memo rows.
type Aggregator struct {
	memoStore     storage.MemoStore
	activityStore storage.AccountActivityStore
}

// NewAggregator creates a new activity aggregator.
func NewAggregator(memoStore storage.MemoStore, activityStore storage.AccountActivityStore) *Aggregator {
	return &Aggregator{
		memoStore:     memoStore,
		activityStore: activityStore,
	}
}

// activityKey identifies one (account, day) bucket during the fold.
type activityKey struct {
	account string
	day     time.Time
}

// ComputeRange folds all memo rows within [start, end] into per-account
// daily points and returns them sorted by account then day. Each memo
// payment contributes to both its sender's and its destination's buckets.
func (a *Aggregator) ComputeRange(ctx context.Context, start, end time.Time) ([]*domain.AccountActivityPoint, error) {
	memos, err := a.memoStore.GetByTimeRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("load memos: %w", err)
	}
	if len(memos) == 0 {
		return nil, ErrNoMemos
	}

	buckets := make(map[activityKey]*domain.AccountActivityPoint)
	point := func(account string, day time.Time) *domain.AccountActivityPoint {
		k := activityKey{account, day}
		p, ok := buckets[k]
		if !ok {
			p = &domain.AccountActivityPoint{Account: account, Day: day}
			buckets[k] = p
		}
		return p
	}

	for _, m := range memos {
		day := m.Datetime.UTC().Truncate(24 * time.Hour)

		sent := point(m.Account, day)
		sent.SentCount++
		sent.PFTOut += m.PFTAmount
		sent.FeesPaid += m.XRPFee

		if m.Destination != "" && m.Destination != m.Account {
			recv := point(m.Destination, day)
			recv.ReceivedCount++
			recv.PFTIn += m.PFTAmount
		}
	}

	points := make([]*domain.AccountActivityPoint, 0, len(buckets))
	for _, p := range buckets {
		points = append(points, p)
	}

	sort.Slice(points, func(i, j int) bool {
		if points[i].Account != points[j].Account {
			return points[i].Account < points[j].Account
		}
		return points[i].Day.Before(points[j].Day)
	})

	return points, nil
}

// Run computes the range and writes the points to the activity store.
// Re-running over the same range replaces its points.
func (a *Aggregator) Run(ctx context.Context, start, end time.Time) (int, error) {
	points, err := a.ComputeRange(ctx, start, end)
	if err != nil {
		return 0, err
	}

	if err := a.activityStore.InsertBulk(ctx, points); err != nil {
		return 0, fmt.Errorf("store activity points: %w", err)
	}

	return len(points), nil
}
