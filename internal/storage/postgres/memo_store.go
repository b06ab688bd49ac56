package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"pft-memo-cache/internal/domain"
	"pft-memo-cache/internal/storage"
	"pft-memo-cache/internal/xrpladdr"
)

// MemoStore implements storage.MemoStore using PostgreSQL. The memo rows
// themselves are written only by RawTransactionStore.Upsert; this store
// is the read side.
type MemoStore struct {
	pool *Pool
}

// NewMemoStore creates a new MemoStore.
func NewMemoStore(pool *Pool) *MemoStore {
	return &MemoStore{pool: pool}
}

// Compile-time interface check.
var _ storage.MemoStore = (*MemoStore)(nil)

const memoColumns = `hash, account, destination, pft_amount, xrp_fee,
	memo_format, memo_type, memo_data, datetime, transaction_result`

// GetByHash retrieves a memo row by transaction hash. Returns ErrNotFound
// if not exists.
func (s *MemoStore) GetByHash(ctx context.Context, hash string) (*domain.Memo, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+memoColumns+`
		FROM transaction_memos
		WHERE hash = $1
	`, hash)

	var m domain.Memo
	if err := scanMemo(row, &m); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get memo: %w", err)
	}
	return &m, nil
}

// AccountHistory retrieves memo rows where the viewpoint account is sender
// or destination, with direction, signed amount, and counterparty computed
// in SQL relative to the viewpoint. Destination match wins the direction
// tie-break, so a self-payment classifies as INCOMING.
func (s *MemoStore) AccountHistory(ctx context.Context, q storage.AccountHistoryQuery) ([]*domain.AccountMemoRecord, error) {
	if q.Viewpoint == "" {
		return nil, storage.ErrInvalidInput
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+memoColumns+`,
			CASE WHEN destination = $1 THEN 'INCOMING' ELSE 'OUTGOING' END AS direction,
			CASE WHEN destination = $1 THEN pft_amount ELSE -pft_amount END AS directional_pft,
			CASE WHEN account = $1 THEN destination ELSE account END AS counterparty
		FROM transaction_memos
		WHERE (account = $1 OR destination = $1)
			AND ($2 = FALSE OR pft_amount <> 0)
			AND ($3 = '' OR memo_type LIKE $3 || '%')
		ORDER BY datetime DESC
	`, q.Viewpoint, q.PFTOnly, q.MemoTypePrefix)
	if err != nil {
		return nil, fmt.Errorf("get account history: %w", err)
	}
	defer rows.Close()

	var records []*domain.AccountMemoRecord
	for rows.Next() {
		var r domain.AccountMemoRecord
		err := scanMemoInto(rows, &r.Memo, &r.Direction, &r.DirectionalPFT, &r.Counterparty)
		if err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}

	return records, nil
}

// HandshakeHistory retrieves handshake memos between the local and remote
// accounts in either direction. The marker is matched anywhere inside
// memo_type, so versioned types like "XHANDSHAKE1" qualify.
func (s *MemoStore) HandshakeHistory(ctx context.Context, local, remote string) ([]*domain.HandshakeRecord, error) {
	if local == "" || remote == "" {
		return nil, storage.ErrInvalidInput
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+memoColumns+`,
			CASE WHEN account = $1 THEN 'OUTGOING' ELSE 'INCOMING' END AS direction,
			CASE WHEN account = $1 THEN destination ELSE account END AS counterparty
		FROM transaction_memos
		WHERE ((account = $1 AND destination = $2)
			OR (account = $2 AND destination = $1))
			AND memo_type LIKE '%' || $3 || '%'
		ORDER BY datetime DESC
	`, local, remote, domain.HandshakeMarker)
	if err != nil {
		return nil, fmt.Errorf("get handshake history: %w", err)
	}
	defer rows.Close()

	var records []*domain.HandshakeRecord
	for rows.Next() {
		var r domain.HandshakeRecord
		err := rows.Scan(
			&r.Hash, &r.Account, &r.Destination, &r.PFTAmount, &r.XRPFee,
			&r.MemoFormat, &r.MemoType, &r.MemoData, &r.Datetime, &r.TransactionResult,
			&r.Direction, &r.Counterparty,
		)
		if err != nil {
			return nil, fmt.Errorf("scan handshake row: %w", err)
		}
		r.ChannelKeyValid = xrpladdr.IsValidChannelKey(r.MemoData)
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate handshake rows: %w", err)
	}

	return records, nil
}

// GetByTimeRange retrieves memo rows with datetime within [start, end]
// (inclusive), ordered by datetime ASC.
func (s *MemoStore) GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.Memo, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+memoColumns+`
		FROM transaction_memos
		WHERE datetime >= $1 AND datetime <= $2
		ORDER BY datetime ASC
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("get memos by time range: %w", err)
	}
	defer rows.Close()

	var memos []*domain.Memo
	for rows.Next() {
		var m domain.Memo
		if err := scanMemo(rows, &m); err != nil {
			return nil, fmt.Errorf("scan memo row: %w", err)
		}
		memos = append(memos, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memo rows: %w", err)
	}

	return memos, nil
}

// scanMemo scans the bare memo columns into m.
func scanMemo(row pgx.Row, m *domain.Memo) error {
	return row.Scan(
		&m.Hash, &m.Account, &m.Destination, &m.PFTAmount, &m.XRPFee,
		&m.MemoFormat, &m.MemoType, &m.MemoData, &m.Datetime, &m.TransactionResult,
	)
}

// scanMemoInto scans the memo columns plus the computed direction fields.
func scanMemoInto(row pgx.Row, m *domain.Memo, direction *string, directionalPFT *float64, counterparty *string) error {
	return row.Scan(
		&m.Hash, &m.Account, &m.Destination, &m.PFTAmount, &m.XRPFee,
		&m.MemoFormat, &m.MemoType, &m.MemoData, &m.Datetime, &m.TransactionResult,
		direction, directionalPFT, counterparty,
	)
}
