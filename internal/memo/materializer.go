package memo

import (
	"fmt"
	"strconv"

	"pft-memo-cache/internal/domain"
)

// Materializer derives memo rows from raw transactions. Insert and update
// paths of the raw transaction cache both run Derive; the stores apply its
// result inside the same transaction as the triggering raw write, so a
// derivation error aborts that write entirely.
type Materializer struct {
	// Decode decodes hex memo fields. Injected so the materializer stays
	// independently testable.
	Decode DecodeFunc

	// Currency is the tracked asset code. Delivered amounts in any other
	// currency derive a zero PFT amount.
	Currency string
}

// NewMaterializer returns a materializer with the default hex decoder and
// tracked asset.
func NewMaterializer() *Materializer {
	return &Materializer{
		Decode:   DecodeHex,
		Currency: domain.TrackedCurrency,
	}
}

// Derive extracts the memo row for a raw transaction. A nil or empty memo
// list is a valid no-op and returns (nil, nil). Only the first memo list
// entry is consulted; additional entries are ignored.
//
// Monetary fields are strict: a delivered amount or fee that fails numeric
// coercion returns an error rather than silently zeroing, asymmetric with
// the text fields which decode to "" on malformed input.
func (m *Materializer) Derive(raw *domain.RawTransaction) (*domain.Memo, error) {
	if raw == nil {
		return nil, fmt.Errorf("derive memo: nil transaction")
	}
	if len(raw.Tx.Memos) == 0 {
		return nil, nil
	}

	entry := raw.Tx.Memos[0].Memo

	pftAmount, err := m.deliveredPFT(raw.Meta.DeliveredAmount)
	if err != nil {
		return nil, fmt.Errorf("derive memo %s: %w", raw.Hash, err)
	}

	xrpFee, err := feeXRP(raw.Tx.Fee)
	if err != nil {
		return nil, fmt.Errorf("derive memo %s: %w", raw.Hash, err)
	}

	return &domain.Memo{
		Hash:              raw.Hash,
		Account:           raw.Tx.Account,
		Destination:       raw.Tx.Destination,
		PFTAmount:         pftAmount,
		XRPFee:            xrpFee,
		MemoFormat:        m.Decode(entry.MemoFormat),
		MemoType:          m.Decode(entry.MemoType),
		MemoData:          m.Decode(entry.MemoData),
		Datetime:          raw.CloseTime,
		TransactionResult: raw.Meta.TransactionResult,
	}, nil
}

// deliveredPFT returns the delivered amount when its currency is the
// tracked asset, else 0. Coercion is only attempted for gated-in amounts.
func (m *Materializer) deliveredPFT(delivered *domain.DeliveredAmount) (float64, error) {
	if delivered == nil || delivered.Currency != m.Currency {
		return 0, nil
	}
	v, err := strconv.ParseFloat(delivered.Value, 64)
	if err != nil {
		return 0, fmt.Errorf("non-numeric delivered amount %q", delivered.Value)
	}
	return v, nil
}

// feeXRP converts the document's drops fee text to XRP. A missing fee
// field counts as zero.
func feeXRP(fee string) (float64, error) {
	if fee == "" {
		fee = "0"
	}
	drops, err := strconv.ParseFloat(fee, 64)
	if err != nil {
		return 0, fmt.Errorf("non-numeric fee %q", fee)
	}
	return drops / domain.DropsPerXRP, nil
}
