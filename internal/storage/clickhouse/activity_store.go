package clickhouse

import (
	"context"
	"fmt"
	"time"

	"pft-memo-cache/internal/domain"
	"pft-memo-cache/internal/storage"
)

// AccountActivityStore implements storage.AccountActivityStore using ClickHouse.
type AccountActivityStore struct {
	conn *Conn
}

// NewAccountActivityStore creates a new AccountActivityStore.
func NewAccountActivityStore(conn *Conn) *AccountActivityStore {
	return &AccountActivityStore{conn: conn}
}

// Compile-time interface check.
var _ storage.AccountActivityStore = (*AccountActivityStore)(nil)

// InsertBulk adds multiple daily activity points. Re-inserting an existing
// (account, day) pair is allowed; the ReplacingMergeTree keeps the latest
// version after merges.
func (s *AccountActivityStore) InsertBulk(ctx context.Context, points []*domain.AccountActivityPoint) error {
	if len(points) == 0 {
		return nil
	}

	for _, p := range points {
		if p.Account == "" {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO account_activity (
			account, day, sent_count, received_count, pft_out, pft_in, fees_paid
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		err = batch.Append(
			p.Account, p.Day, uint32(p.SentCount), uint32(p.ReceivedCount),
			p.PFTOut, p.PFTIn, p.FeesPaid,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByAccount retrieves all daily points for an account, ordered by day ASC.
// FINAL collapses replaced versions so each (account, day) appears once.
func (s *AccountActivityStore) GetByAccount(ctx context.Context, account string) ([]*domain.AccountActivityPoint, error) {
	query := `
		SELECT account, day, sent_count, received_count, pft_out, pft_in, fees_paid
		FROM account_activity FINAL
		WHERE account = ?
		ORDER BY day ASC
	`

	rows, err := s.conn.Query(ctx, query, account)
	if err != nil {
		return nil, fmt.Errorf("query by account: %w", err)
	}
	defer rows.Close()

	return scanAccountActivity(rows)
}

// GetByTimeRange retrieves points for an account within [start, end] (inclusive).
func (s *AccountActivityStore) GetByTimeRange(ctx context.Context, account string, start, end time.Time) ([]*domain.AccountActivityPoint, error) {
	query := `
		SELECT account, day, sent_count, received_count, pft_out, pft_in, fees_paid
		FROM account_activity FINAL
		WHERE account = ? AND day >= ? AND day <= ?
		ORDER BY day ASC
	`

	rows, err := s.conn.Query(ctx, query, account, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanAccountActivity(rows)
}

// Rows interface for scanning
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanAccountActivity scans multiple rows into a slice.
func scanAccountActivity(rows chRows) ([]*domain.AccountActivityPoint, error) {
	var points []*domain.AccountActivityPoint

	for rows.Next() {
		var p domain.AccountActivityPoint
		var sentCount, receivedCount uint32

		err := rows.Scan(
			&p.Account, &p.Day, &sentCount, &receivedCount,
			&p.PFTOut, &p.PFTIn, &p.FeesPaid,
		)
		if err != nil {
			return nil, fmt.Errorf("scan account activity row: %w", err)
		}

		p.SentCount = int(sentCount)
		p.ReceivedCount = int(receivedCount)
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account activity rows: %w", err)
	}

	return points, nil
}
