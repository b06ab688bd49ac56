package memory

import (
	"context"
	"encoding/hex"
	"errors"
	"sync"
	"testing"
	"time"

	"pft-memo-cache/internal/domain"
	"pft-memo-cache/internal/storage"
)

const (
	testAlice = "rAlice111111111111111111111"
	testBob   = "rBob2222222222222222222222"
	testCarol = "rCarol33333333333333333333"
)

func hexText(s string) string {
	return hex.EncodeToString([]byte(s))
}

func paymentTx(hash, account, destination string, closeTime time.Time, pft string) *domain.RawTransaction {
	tx := &domain.RawTransaction{
		Hash:        hash,
		LedgerIndex: 81000000,
		CloseTime:   closeTime,
		Meta: domain.TxMeta{
			TransactionResult: "tesSUCCESS",
		},
		Tx: domain.TxDocument{
			Account:         account,
			Destination:     destination,
			Fee:             "12",
			TransactionType: domain.TxTypePayment,
			Memos: []domain.MemoWrapper{
				{Memo: domain.MemoEntry{
					MemoFormat: hexText("text/plain"),
					MemoType:   hexText("TASK_REQUEST"),
					MemoData:   hexText("do the thing"),
				}},
			},
		},
		Validated: true,
	}
	if pft != "" {
		tx.Meta.DeliveredAmount = &domain.DeliveredAmount{
			Currency: domain.TrackedCurrency,
			Issuer:   testCarol,
			Value:    pft,
		}
	}
	return tx
}

func TestTxCache_UpsertMaterializesMemo(t *testing.T) {
	cache := NewTxCache()
	ctx := context.Background()

	closeTime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tx := paymentTx("H1", testAlice, testBob, closeTime, "25")

	if err := cache.Upsert(ctx, tx); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := cache.MemoView().GetByHash(ctx, "H1")
	if err != nil {
		t.Fatalf("GetByHash failed: %v", err)
	}

	if got.Account != testAlice {
		t.Errorf("Account mismatch: got %s, want %s", got.Account, testAlice)
	}
	if got.PFTAmount != 25 {
		t.Errorf("PFTAmount mismatch: got %v, want 25", got.PFTAmount)
	}
	if got.XRPFee != 0.000012 {
		t.Errorf("XRPFee mismatch: got %v, want 0.000012", got.XRPFee)
	}
	if got.MemoType != "TASK_REQUEST" {
		t.Errorf("MemoType mismatch: got %s, want TASK_REQUEST", got.MemoType)
	}
	if got.MemoData != "do the thing" {
		t.Errorf("MemoData mismatch: got %s, want 'do the thing'", got.MemoData)
	}
	if !got.Datetime.Equal(closeTime) {
		t.Errorf("Datetime mismatch: got %v, want %v", got.Datetime, closeTime)
	}
}

func TestTxCache_UpsertIdempotent(t *testing.T) {
	cache := NewTxCache()
	ctx := context.Background()

	tx := paymentTx("H1", testAlice, testBob, time.Now().UTC(), "25")

	if err := cache.Upsert(ctx, tx); err != nil {
		t.Fatalf("first Upsert failed: %v", err)
	}
	first, err := cache.MemoView().GetByHash(ctx, "H1")
	if err != nil {
		t.Fatalf("GetByHash failed: %v", err)
	}

	if err := cache.Upsert(ctx, tx); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}
	second, err := cache.MemoView().GetByHash(ctx, "H1")
	if err != nil {
		t.Fatalf("GetByHash after re-upsert failed: %v", err)
	}

	if *first != *second {
		t.Errorf("re-upsert changed memo row: %+v vs %+v", first, second)
	}
}

func TestTxCache_UpsertNoMemos(t *testing.T) {
	cache := NewTxCache()
	ctx := context.Background()

	tx := paymentTx("H1", testAlice, testBob, time.Now().UTC(), "25")
	tx.Tx.Memos = nil

	if err := cache.Upsert(ctx, tx); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	// Raw row present
	if _, err := cache.GetByHash(ctx, "H1"); err != nil {
		t.Fatalf("raw GetByHash failed: %v", err)
	}

	// No memo row
	_, err := cache.MemoView().GetByHash(ctx, "H1")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for memo, got %v", err)
	}
}

func TestTxCache_UpsertReplacesMemo(t *testing.T) {
	cache := NewTxCache()
	ctx := context.Background()

	tx := paymentTx("H1", testAlice, testBob, time.Now().UTC(), "25")
	if err := cache.Upsert(ctx, tx); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	// Validation update with a different delivered amount
	tx.Meta.DeliveredAmount.Value = "30"
	tx.Meta.TransactionResult = "tesSUCCESS"
	if err := cache.Upsert(ctx, tx); err != nil {
		t.Fatalf("update Upsert failed: %v", err)
	}

	got, err := cache.MemoView().GetByHash(ctx, "H1")
	if err != nil {
		t.Fatalf("GetByHash failed: %v", err)
	}
	if got.PFTAmount != 30 {
		t.Errorf("PFTAmount not replaced: got %v, want 30", got.PFTAmount)
	}
}

func TestTxCache_UpsertDerivationErrorLeavesNothing(t *testing.T) {
	cache := NewTxCache()
	ctx := context.Background()

	tx := paymentTx("H1", testAlice, testBob, time.Now().UTC(), "not-a-number")

	if err := cache.Upsert(ctx, tx); err == nil {
		t.Fatal("expected error for non-numeric delivered amount")
	}

	// Neither table observed the write
	if _, err := cache.GetByHash(ctx, "H1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for raw, got %v", err)
	}
	if _, err := cache.MemoView().GetByHash(ctx, "H1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for memo, got %v", err)
	}
}

func TestTxCache_UpsertInvalidInput(t *testing.T) {
	cache := NewTxCache()
	ctx := context.Background()

	if err := cache.Upsert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for nil, got %v", err)
	}
	if err := cache.Upsert(ctx, &domain.RawTransaction{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty hash, got %v", err)
	}
}

func TestTxCache_DeleteCascades(t *testing.T) {
	cache := NewTxCache()
	ctx := context.Background()

	tx := paymentTx("H1", testAlice, testBob, time.Now().UTC(), "25")
	if err := cache.Upsert(ctx, tx); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if err := cache.Delete(ctx, "H1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := cache.GetByHash(ctx, "H1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for raw, got %v", err)
	}
	if _, err := cache.MemoView().GetByHash(ctx, "H1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for memo, got %v", err)
	}

	// Deleting again is a no-op
	if err := cache.Delete(ctx, "H1"); err != nil {
		t.Errorf("repeat Delete failed: %v", err)
	}
}

func TestTxCache_AccountHistory(t *testing.T) {
	cache := NewTxCache()
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	txs := []*domain.RawTransaction{
		paymentTx("H1", testAlice, testBob, base.Add(1*time.Hour), "25"),
		paymentTx("H2", testBob, testAlice, base.Add(2*time.Hour), "10"),
		paymentTx("H3", testAlice, testCarol, base.Add(3*time.Hour), ""),
		paymentTx("H4", testBob, testCarol, base.Add(4*time.Hour), "5"),
	}
	for _, tx := range txs {
		if err := cache.Upsert(ctx, tx); err != nil {
			t.Fatalf("Upsert %s failed: %v", tx.Hash, err)
		}
	}

	got, err := cache.MemoView().AccountHistory(ctx, storage.AccountHistoryQuery{Viewpoint: testAlice})
	if err != nil {
		t.Fatalf("AccountHistory failed: %v", err)
	}

	// H4 does not touch alice; newest first
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	if got[0].Hash != "H3" || got[1].Hash != "H2" || got[2].Hash != "H1" {
		t.Errorf("wrong order: %s, %s, %s", got[0].Hash, got[1].Hash, got[2].Hash)
	}

	// Direction and signed amount relative to alice
	if got[2].Direction != domain.DirectionOutgoing {
		t.Errorf("H1 direction: got %s, want OUTGOING", got[2].Direction)
	}
	if got[2].DirectionalPFT != -25 {
		t.Errorf("H1 directional PFT: got %v, want -25", got[2].DirectionalPFT)
	}
	if got[2].Counterparty != testBob {
		t.Errorf("H1 counterparty: got %s, want %s", got[2].Counterparty, testBob)
	}
	if got[1].Direction != domain.DirectionIncoming {
		t.Errorf("H2 direction: got %s, want INCOMING", got[1].Direction)
	}
	if got[1].DirectionalPFT != 10 {
		t.Errorf("H2 directional PFT: got %v, want 10", got[1].DirectionalPFT)
	}
}

func TestTxCache_AccountHistory_PFTOnly(t *testing.T) {
	cache := NewTxCache()
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	if err := cache.Upsert(ctx, paymentTx("H1", testAlice, testBob, base, "25")); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := cache.Upsert(ctx, paymentTx("H2", testAlice, testBob, base.Add(time.Hour), "")); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := cache.MemoView().AccountHistory(ctx, storage.AccountHistoryQuery{
		Viewpoint: testAlice,
		PFTOnly:   true,
	})
	if err != nil {
		t.Fatalf("AccountHistory failed: %v", err)
	}

	if len(got) != 1 || got[0].Hash != "H1" {
		t.Errorf("expected only H1, got %d records", len(got))
	}
}

func TestTxCache_AccountHistory_MemoTypePrefix(t *testing.T) {
	cache := NewTxCache()
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	tx1 := paymentTx("H1", testAlice, testBob, base, "25")
	tx1.Tx.Memos[0].Memo.MemoType = hexText("TASK_REQUEST")
	tx2 := paymentTx("H2", testAlice, testBob, base.Add(time.Hour), "10")
	tx2.Tx.Memos[0].Memo.MemoType = hexText("MEMO_CHAT")

	for _, tx := range []*domain.RawTransaction{tx1, tx2} {
		if err := cache.Upsert(ctx, tx); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	got, err := cache.MemoView().AccountHistory(ctx, storage.AccountHistoryQuery{
		Viewpoint:      testAlice,
		MemoTypePrefix: "TASK",
	})
	if err != nil {
		t.Fatalf("AccountHistory failed: %v", err)
	}

	if len(got) != 1 || got[0].Hash != "H1" {
		t.Errorf("expected only H1, got %d records", len(got))
	}
}

func TestTxCache_AccountHistory_InvalidInput(t *testing.T) {
	cache := NewTxCache()

	_, err := cache.MemoView().AccountHistory(context.Background(), storage.AccountHistoryQuery{})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestTxCache_PaymentHistory(t *testing.T) {
	cache := NewTxCache()
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	validated := paymentTx("H1", testAlice, testBob, base.Add(1*time.Hour), "25")
	unvalidated := paymentTx("H2", testBob, testAlice, base.Add(2*time.Hour), "10")
	unvalidated.Validated = false
	nonPayment := paymentTx("H3", testAlice, testBob, base.Add(3*time.Hour), "")
	nonPayment.Tx.TransactionType = "TrustSet"

	for _, tx := range []*domain.RawTransaction{validated, unvalidated, nonPayment} {
		if err := cache.Upsert(ctx, tx); err != nil {
			t.Fatalf("Upsert %s failed: %v", tx.Hash, err)
		}
	}

	got, err := cache.PaymentHistory(ctx, testAlice)
	if err != nil {
		t.Fatalf("PaymentHistory failed: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0].Raw.Hash != "H1" {
		t.Errorf("expected H1, got %s", got[0].Raw.Hash)
	}
	if got[0].Direction != domain.DirectionOutgoing {
		t.Errorf("direction: got %s, want OUTGOING", got[0].Direction)
	}
	if got[0].Counterparty != testBob {
		t.Errorf("counterparty: got %s, want %s", got[0].Counterparty, testBob)
	}
}

func TestTxCache_HandshakeHistory(t *testing.T) {
	cache := NewTxCache()
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	channelKey := "ED0100000000000000000000000000000000000000000000000000000000000000"

	outgoing := paymentTx("H1", testAlice, testBob, base.Add(1*time.Hour), "")
	outgoing.Tx.Memos[0].Memo.MemoType = hexText("XHANDSHAKE1")
	outgoing.Tx.Memos[0].Memo.MemoData = hexText(channelKey)

	incoming := paymentTx("H2", testBob, testAlice, base.Add(2*time.Hour), "")
	incoming.Tx.Memos[0].Memo.MemoType = hexText("XHANDSHAKE1")
	incoming.Tx.Memos[0].Memo.MemoData = hexText("not a key")

	unrelated := paymentTx("H3", testAlice, testCarol, base.Add(3*time.Hour), "")
	unrelated.Tx.Memos[0].Memo.MemoType = hexText("XHANDSHAKE1")

	plain := paymentTx("H4", testAlice, testBob, base.Add(4*time.Hour), "25")

	for _, tx := range []*domain.RawTransaction{outgoing, incoming, unrelated, plain} {
		if err := cache.Upsert(ctx, tx); err != nil {
			t.Fatalf("Upsert %s failed: %v", tx.Hash, err)
		}
	}

	got, err := cache.MemoView().HandshakeHistory(ctx, testAlice, testBob)
	if err != nil {
		t.Fatalf("HandshakeHistory failed: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	// Newest first
	if got[0].Hash != "H2" || got[1].Hash != "H1" {
		t.Errorf("wrong order: %s, %s", got[0].Hash, got[1].Hash)
	}
	if got[0].Direction != domain.DirectionIncoming {
		t.Errorf("H2 direction: got %s, want INCOMING", got[0].Direction)
	}
	if got[0].ChannelKeyValid {
		t.Error("H2 channel key should be invalid")
	}
	if got[1].Direction != domain.DirectionOutgoing {
		t.Errorf("H1 direction: got %s, want OUTGOING", got[1].Direction)
	}
	if !got[1].ChannelKeyValid {
		t.Error("H1 channel key should be valid")
	}

	// Symmetric up to direction
	swapped, err := cache.MemoView().HandshakeHistory(ctx, testBob, testAlice)
	if err != nil {
		t.Fatalf("swapped HandshakeHistory failed: %v", err)
	}
	if len(swapped) != 2 {
		t.Fatalf("expected 2 swapped records, got %d", len(swapped))
	}
	if swapped[0].Direction != domain.DirectionOutgoing {
		t.Errorf("swapped H2 direction: got %s, want OUTGOING", swapped[0].Direction)
	}
}

func TestTxCache_GetByTimeRange(t *testing.T) {
	cache := NewTxCache()
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, hash := range []string{"H1", "H2", "H3"} {
		tx := paymentTx(hash, testAlice, testBob, base.AddDate(0, 0, i), "25")
		if err := cache.Upsert(ctx, tx); err != nil {
			t.Fatalf("Upsert %s failed: %v", hash, err)
		}
	}

	got, err := cache.MemoView().GetByTimeRange(ctx, base, base.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}

	// Inclusive bounds, ASC order
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].Hash != "H1" || got[1].Hash != "H2" {
		t.Errorf("wrong order: %s, %s", got[0].Hash, got[1].Hash)
	}
}

func TestTxCache_ConcurrentUpserts(t *testing.T) {
	cache := NewTxCache()
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	tx := paymentTx("H1", testAlice, testBob, base, "25")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if err := cache.Upsert(ctx, tx); err != nil {
					t.Errorf("Upsert failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	got, err := cache.MemoView().GetByHash(ctx, "H1")
	if err != nil {
		t.Fatalf("GetByHash failed: %v", err)
	}
	if got.PFTAmount != 25 {
		t.Errorf("PFTAmount: got %v, want 25", got.PFTAmount)
	}
}
