package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"pft-memo-cache/internal/domain"
	"pft-memo-cache/internal/memo"
	"pft-memo-cache/internal/storage"
	"pft-memo-cache/internal/xrpladdr"
)

// TxCache is an in-memory implementation of storage.RawTransactionStore.
// Its derived memo table lives under the same mutex and is exposed as a
// storage.MemoStore via MemoView, so a raw write and its memo consequence
// are observed atomically, matching the single-transaction semantics of
// the Postgres stores.
type TxCache struct {
	mu    sync.RWMutex
	raw   map[string]*domain.RawTransaction // keyed by hash
	memos map[string]*domain.Memo           // keyed by hash
	mat   *memo.Materializer
}

// NewTxCache creates a new in-memory transaction cache with the default
// materializer.
func NewTxCache() *TxCache {
	return &TxCache{
		raw:   make(map[string]*domain.RawTransaction),
		memos: make(map[string]*domain.Memo),
		mat:   memo.NewMaterializer(),
	}
}

// Compile-time interface checks.
var (
	_ storage.RawTransactionStore = (*TxCache)(nil)
	_ storage.MemoStore           = (*MemoView)(nil)
)

// MemoView returns the derived memo store backed by this cache.
func (s *TxCache) MemoView() *MemoView {
	return &MemoView{cache: s}
}

// Upsert adds or fully replaces a transaction and its derived memo row.
// A materialization failure leaves both tables untouched.
func (s *TxCache) Upsert(_ context.Context, tx *domain.RawTransaction) error {
	if tx == nil || tx.Hash == "" {
		return storage.ErrInvalidInput
	}

	derived, err := s.mat.Derive(tx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	txCopy := *tx
	s.raw[tx.Hash] = &txCopy
	if derived != nil {
		s.memos[tx.Hash] = derived
	}
	return nil
}

// GetByHash retrieves a transaction by hash. Returns ErrNotFound if not exists.
func (s *TxCache) GetByHash(_ context.Context, hash string) (*domain.RawTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, exists := s.raw[hash]
	if !exists {
		return nil, storage.ErrNotFound
	}

	txCopy := *tx
	return &txCopy, nil
}

// Delete removes a transaction and its memo row. No-op for absent hashes.
func (s *TxCache) Delete(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.raw, hash)
	delete(s.memos, hash)
	return nil
}

// PaymentHistory retrieves validated Payment transactions touching the
// viewpoint account, ordered by close time DESC.
func (s *TxCache) PaymentHistory(_ context.Context, viewpoint string) ([]*domain.PaymentRecord, error) {
	if viewpoint == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PaymentRecord
	for _, tx := range s.raw {
		if !tx.Validated || tx.Tx.TransactionType != domain.TxTypePayment {
			continue
		}
		if tx.Tx.Account != viewpoint && tx.Tx.Destination != viewpoint {
			continue
		}
		txCopy := *tx
		result = append(result, &domain.PaymentRecord{
			Raw:          &txCopy,
			Direction:    domain.DirectionFor(tx.Tx.Account, tx.Tx.Destination, viewpoint),
			Counterparty: domain.CounterpartyFor(tx.Tx.Account, tx.Tx.Destination, viewpoint),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Raw.CloseTime.After(result[j].Raw.CloseTime)
	})

	return result, nil
}

// MemoView is the storage.MemoStore face of a TxCache.
type MemoView struct {
	cache *TxCache
}

// GetByHash retrieves a memo row by transaction hash. Returns ErrNotFound
// if not exists.
func (v *MemoView) GetByHash(_ context.Context, hash string) (*domain.Memo, error) {
	v.cache.mu.RLock()
	defer v.cache.mu.RUnlock()

	m, exists := v.cache.memos[hash]
	if !exists {
		return nil, storage.ErrNotFound
	}

	memoCopy := *m
	return &memoCopy, nil
}

// AccountHistory retrieves memo rows touching the viewpoint account,
// ordered by datetime DESC.
func (v *MemoView) AccountHistory(_ context.Context, q storage.AccountHistoryQuery) ([]*domain.AccountMemoRecord, error) {
	if q.Viewpoint == "" {
		return nil, storage.ErrInvalidInput
	}

	v.cache.mu.RLock()
	defer v.cache.mu.RUnlock()

	var result []*domain.AccountMemoRecord
	for _, m := range v.cache.memos {
		if m.Account != q.Viewpoint && m.Destination != q.Viewpoint {
			continue
		}
		if q.PFTOnly && m.PFTAmount == 0 {
			continue
		}
		if q.MemoTypePrefix != "" && !strings.HasPrefix(m.MemoType, q.MemoTypePrefix) {
			continue
		}

		direction := domain.DirectionFor(m.Account, m.Destination, q.Viewpoint)
		directional := m.PFTAmount
		if direction == domain.DirectionOutgoing {
			directional = -m.PFTAmount
		}

		result = append(result, &domain.AccountMemoRecord{
			Memo:           *m,
			Direction:      direction,
			DirectionalPFT: directional,
			Counterparty:   domain.CounterpartyFor(m.Account, m.Destination, q.Viewpoint),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Datetime.After(result[j].Datetime)
	})

	return result, nil
}

// HandshakeHistory retrieves handshake memos between local and remote in
// either direction, ordered by datetime DESC.
func (v *MemoView) HandshakeHistory(_ context.Context, local, remote string) ([]*domain.HandshakeRecord, error) {
	if local == "" || remote == "" {
		return nil, storage.ErrInvalidInput
	}

	v.cache.mu.RLock()
	defer v.cache.mu.RUnlock()

	var result []*domain.HandshakeRecord
	for _, m := range v.cache.memos {
		if !strings.Contains(m.MemoType, domain.HandshakeMarker) {
			continue
		}
		outgoing := m.Account == local && m.Destination == remote
		incoming := m.Account == remote && m.Destination == local
		if !outgoing && !incoming {
			continue
		}

		direction := domain.DirectionIncoming
		if outgoing {
			direction = domain.DirectionOutgoing
		}

		result = append(result, &domain.HandshakeRecord{
			Memo:            *m,
			Direction:       direction,
			Counterparty:    domain.CounterpartyFor(m.Account, m.Destination, local),
			ChannelKeyValid: xrpladdr.IsValidChannelKey(m.MemoData),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Datetime.After(result[j].Datetime)
	})

	return result, nil
}

// GetByTimeRange retrieves memo rows with datetime within [start, end]
// (inclusive), ordered by datetime ASC.
func (v *MemoView) GetByTimeRange(_ context.Context, start, end time.Time) ([]*domain.Memo, error) {
	v.cache.mu.RLock()
	defer v.cache.mu.RUnlock()

	var result []*domain.Memo
	for _, m := range v.cache.memos {
		if m.Datetime.Before(start) || m.Datetime.After(end) {
			continue
		}
		memoCopy := *m
		result = append(result, &memoCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Datetime.Before(result[j].Datetime)
	})

	return result, nil
}
