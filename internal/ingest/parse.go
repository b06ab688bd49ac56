// Package ingest consumes the ledger transaction stream and writes it
// into the raw transaction cache.
package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"pft-memo-cache/internal/domain"
	"pft-memo-cache/internal/xrpl"
	"pft-memo-cache/internal/xrpladdr"
)

// ParseTransaction converts a stream notification into a cache row.
// The raw Meta and TxJSON documents are parsed once here; everything
// downstream works with the typed form.
func ParseTransaction(msg *xrpl.TransactionMessage) (*domain.RawTransaction, error) {
	if msg.Hash == "" {
		return nil, fmt.Errorf("transaction without hash")
	}

	raw := &domain.RawTransaction{
		Hash:        msg.Hash,
		LedgerIndex: msg.LedgerIndex,
		Validated:   msg.Validated,
	}

	if len(msg.Meta) > 0 {
		if err := json.Unmarshal(msg.Meta, &raw.Meta); err != nil {
			return nil, fmt.Errorf("parse meta for %s: %w", msg.Hash, err)
		}
	}
	if len(msg.TxJSON) > 0 {
		if err := json.Unmarshal(msg.TxJSON, &raw.Tx); err != nil {
			return nil, fmt.Errorf("parse tx_json for %s: %w", msg.Hash, err)
		}
	}

	if msg.CloseTimeISO != "" {
		closeTime, err := time.Parse(time.RFC3339, msg.CloseTimeISO)
		if err != nil {
			return nil, fmt.Errorf("parse close time for %s: %w", msg.Hash, err)
		}
		raw.CloseTime = closeTime.UTC()
	}

	if !xrpladdr.IsValidAddress(raw.Tx.Account) {
		return nil, fmt.Errorf("invalid account address %q in %s", raw.Tx.Account, msg.Hash)
	}
	if raw.Tx.Destination != "" && !xrpladdr.IsValidAddress(raw.Tx.Destination) {
		return nil, fmt.Errorf("invalid destination address %q in %s", raw.Tx.Destination, msg.Hash)
	}

	return raw, nil
}
