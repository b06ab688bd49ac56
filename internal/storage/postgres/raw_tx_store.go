package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"pft-memo-cache/internal/domain"
	"pft-memo-cache/internal/memo"
	"pft-memo-cache/internal/storage"
)

// RawTransactionStore implements storage.RawTransactionStore using
// PostgreSQL. Memo materialization runs in the same database transaction
// as every raw write: the commit either carries both rows or neither.
type RawTransactionStore struct {
	pool *Pool
	mat  *memo.Materializer
}

// NewRawTransactionStore creates a new RawTransactionStore.
func NewRawTransactionStore(pool *Pool, mat *memo.Materializer) *RawTransactionStore {
	return &RawTransactionStore{pool: pool, mat: mat}
}

// Compile-time interface check.
var _ storage.RawTransactionStore = (*RawTransactionStore)(nil)

// Upsert inserts or fully replaces the cached transaction with the same
// hash, re-deriving its memo row inside the same transaction. ON CONFLICT
// takes a row lock, so concurrent updates to one hash serialize while
// writes to distinct hashes proceed independently.
func (s *RawTransactionStore) Upsert(ctx context.Context, raw *domain.RawTransaction) error {
	if raw == nil || raw.Hash == "" {
		return storage.ErrInvalidInput
	}

	metaJSON, err := json.Marshal(raw.Meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	txJSON, err := json.Marshal(raw.Tx)
	if err != nil {
		return fmt.Errorf("marshal tx document: %w", err)
	}

	// Derive before opening the transaction; a derivation error aborts
	// the write before it touches the database.
	derived, err := s.mat.Derive(raw)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO tx_cache (
			hash, ledger_index, close_time, meta, tx_document, validated
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (hash) DO UPDATE SET
			ledger_index = EXCLUDED.ledger_index,
			close_time = EXCLUDED.close_time,
			meta = EXCLUDED.meta,
			tx_document = EXCLUDED.tx_document,
			validated = EXCLUDED.validated,
			updated_at = now()
	`,
		raw.Hash,
		raw.LedgerIndex,
		raw.CloseTime,
		metaJSON,
		txJSON,
		raw.Validated,
	)
	if err != nil {
		return fmt.Errorf("upsert raw transaction: %w", err)
	}

	if derived != nil {
		if err := upsertMemo(ctx, tx, derived); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// upsertMemo fully replaces the memo row for a hash. Insert and update
// paths share the one derivation above; this is overwrite, not merge.
func upsertMemo(ctx context.Context, tx pgx.Tx, m *domain.Memo) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO transaction_memos (
			hash, account, destination, pft_amount, xrp_fee,
			memo_format, memo_type, memo_data, datetime, transaction_result
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (hash) DO UPDATE SET
			account = EXCLUDED.account,
			destination = EXCLUDED.destination,
			pft_amount = EXCLUDED.pft_amount,
			xrp_fee = EXCLUDED.xrp_fee,
			memo_format = EXCLUDED.memo_format,
			memo_type = EXCLUDED.memo_type,
			memo_data = EXCLUDED.memo_data,
			datetime = EXCLUDED.datetime,
			transaction_result = EXCLUDED.transaction_result
	`,
		m.Hash,
		m.Account,
		m.Destination,
		m.PFTAmount,
		m.XRPFee,
		m.MemoFormat,
		m.MemoType,
		m.MemoData,
		m.Datetime,
		m.TransactionResult,
	)
	if err != nil {
		return fmt.Errorf("upsert memo: %w", err)
	}
	return nil
}

// GetByHash retrieves a transaction by hash. Returns ErrNotFound if not exists.
func (s *RawTransactionStore) GetByHash(ctx context.Context, hash string) (*domain.RawTransaction, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT hash, ledger_index, close_time, meta, tx_document, validated
		FROM tx_cache
		WHERE hash = $1
	`, hash)

	raw, err := scanRawTransaction(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get raw transaction: %w", err)
	}
	return raw, nil
}

// Delete removes a transaction; the memo row cascades via its foreign key.
func (s *RawTransactionStore) Delete(ctx context.Context, hash string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM tx_cache WHERE hash = $1`, hash)
	if err != nil {
		return fmt.Errorf("delete raw transaction: %w", err)
	}
	return nil
}

// PaymentHistory retrieves validated Payment-type transactions for the
// viewpoint account, computed at query time from the raw cache without
// touching the derived memo store.
func (s *RawTransactionStore) PaymentHistory(ctx context.Context, viewpoint string) ([]*domain.PaymentRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT hash, ledger_index, close_time, meta, tx_document, validated,
			CASE WHEN tx_document->>'Destination' = $1
				THEN 'INCOMING' ELSE 'OUTGOING' END AS direction,
			CASE WHEN tx_document->>'Account' = $1
				THEN tx_document->>'Destination'
				ELSE tx_document->>'Account' END AS counterparty
		FROM tx_cache
		WHERE tx_document->>'TransactionType' = 'Payment'
			AND validated
			AND (tx_document->>'Account' = $1 OR tx_document->>'Destination' = $1)
		ORDER BY close_time DESC
	`, viewpoint)
	if err != nil {
		return nil, fmt.Errorf("get payment history: %w", err)
	}
	defer rows.Close()

	var records []*domain.PaymentRecord
	for rows.Next() {
		var (
			raw          domain.RawTransaction
			metaJSON     []byte
			txJSON       []byte
			direction    string
			counterparty string
		)
		err := rows.Scan(
			&raw.Hash,
			&raw.LedgerIndex,
			&raw.CloseTime,
			&metaJSON,
			&txJSON,
			&raw.Validated,
			&direction,
			&counterparty,
		)
		if err != nil {
			return nil, fmt.Errorf("scan payment row: %w", err)
		}
		if err := json.Unmarshal(metaJSON, &raw.Meta); err != nil {
			return nil, fmt.Errorf("unmarshal meta: %w", err)
		}
		if err := json.Unmarshal(txJSON, &raw.Tx); err != nil {
			return nil, fmt.Errorf("unmarshal tx document: %w", err)
		}

		records = append(records, &domain.PaymentRecord{
			Raw:          &raw,
			Direction:    direction,
			Counterparty: counterparty,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment rows: %w", err)
	}

	return records, nil
}

// scanRawTransaction scans a single raw transaction row.
func scanRawTransaction(row pgx.Row) (*domain.RawTransaction, error) {
	var (
		raw      domain.RawTransaction
		metaJSON []byte
		txJSON   []byte
	)
	err := row.Scan(
		&raw.Hash,
		&raw.LedgerIndex,
		&raw.CloseTime,
		&metaJSON,
		&txJSON,
		&raw.Validated,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(metaJSON, &raw.Meta); err != nil {
		return nil, fmt.Errorf("unmarshal meta: %w", err)
	}
	if err := json.Unmarshal(txJSON, &raw.Tx); err != nil {
		return nil, fmt.Errorf("unmarshal tx document: %w", err)
	}
	return &raw, nil
}
