package storage

import (
	"context"
	"time"

	"pft-memo-cache/internal/domain"
)

// RawTransactionStore provides access to the raw transaction cache.
// Implementations run memo materialization inside the same transaction
// (or lock scope) as every Upsert, so no reader observes a raw write
// without its memo consequence. A materialization failure aborts the
// originating write entirely.
type RawTransactionStore interface {
	// Upsert inserts the transaction or fully replaces the row with the
	// same hash, re-deriving its memo row either way.
	Upsert(ctx context.Context, tx *domain.RawTransaction) error

	// GetByHash retrieves a transaction by hash. Returns ErrNotFound if
	// it does not exist.
	GetByHash(ctx context.Context, hash string) (*domain.RawTransaction, error)

	// Delete removes a transaction; its derived memo row cascades with
	// it. Deleting an absent hash is a no-op.
	Delete(ctx context.Context, hash string) error

	// PaymentHistory retrieves validated Payment-type transactions where
	// the viewpoint account is sender or destination, computed directly
	// from the raw cache, ordered by close time DESC.
	PaymentHistory(ctx context.Context, viewpoint string) ([]*domain.PaymentRecord, error)
}

// AccountHistoryQuery parameterizes MemoStore.AccountHistory.
type AccountHistoryQuery struct {
	// Viewpoint is the account history is computed relative to.
	Viewpoint string

	// PFTOnly excludes rows without a tracked-asset delivery.
	PFTOnly bool

	// MemoTypePrefix, when non-empty, restricts rows to memo types with
	// this prefix.
	MemoTypePrefix string
}

// MemoStore provides read access to the derived memo store.
type MemoStore interface {
	// GetByHash retrieves a memo row by transaction hash. Returns
	// ErrNotFound if it does not exist.
	GetByHash(ctx context.Context, hash string) (*domain.Memo, error)

	// AccountHistory retrieves memo rows where the viewpoint account is
	// sender or destination, with direction, signed amount, and
	// counterparty computed relative to the viewpoint. Ordered by
	// datetime DESC.
	AccountHistory(ctx context.Context, q AccountHistoryQuery) ([]*domain.AccountMemoRecord, error)

	// HandshakeHistory retrieves handshake memos exchanged between the
	// local and remote accounts in either direction, ordered by datetime
	// DESC. Symmetric in its arguments up to the reported direction.
	HandshakeHistory(ctx context.Context, local, remote string) ([]*domain.HandshakeRecord, error)

	// GetByTimeRange retrieves memo rows with datetime within
	// [start, end] (inclusive), ordered by datetime ASC. Feeds the
	// activity aggregator.
	GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.Memo, error)
}

// AccountActivityStore provides access to account_activity storage.
type AccountActivityStore interface {
	// InsertBulk adds or replaces activity points. Re-running an
	// aggregation over the same range overwrites its points.
	InsertBulk(ctx context.Context, points []*domain.AccountActivityPoint) error

	// GetByAccount retrieves all points for an account, ordered by day ASC.
	GetByAccount(ctx context.Context, account string) ([]*domain.AccountActivityPoint, error)

	// GetByTimeRange retrieves an account's points with day within
	// [start, end] (inclusive), ordered by day ASC.
	GetByTimeRange(ctx context.Context, account string, start, end time.Time) ([]*domain.AccountActivityPoint, error)
}
