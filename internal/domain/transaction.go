package domain

import (
	"encoding/json"
	"time"
)

// RawTransaction is one row of the raw ledger transaction cache.
// Corresponds to tx_cache table in PostgreSQL. The upstream sync collaborator
// writes and updates rows keyed by hash; the hash is globally unique and
// stable across updates. Meta and Tx are parsed once at ingestion and
// persisted as JSONB documents with ledger-native field names.
type RawTransaction struct {
	Hash        string     // transaction hash, primary key
	LedgerIndex int64      // ledger sequence the transaction was included in
	CloseTime   time.Time  // ledger close time
	Meta        TxMeta     // transaction metadata document
	Tx          TxDocument // transaction document
	Validated   bool       // whether the ledger containing the tx is validated
}

// TxMeta is the metadata document attached to a ledger transaction.
type TxMeta struct {
	DeliveredAmount   *DeliveredAmount `json:"delivered_amount,omitempty"`
	TransactionResult string           `json:"TransactionResult,omitempty"`
}

// DeliveredAmount is the amount actually delivered by a payment. Issued
// assets come over the wire as {currency, issuer, value}; native XRP comes
// as a bare string of drops.
type DeliveredAmount struct {
	Currency string `json:"currency"`
	Issuer   string `json:"issuer,omitempty"`
	Value    string `json:"value"`
}

// UnmarshalJSON accepts both the issued-asset object form and the native
// string form. The string form decodes as an XRP amount in drops.
func (d *DeliveredAmount) UnmarshalJSON(data []byte) error {
	var drops string
	if err := json.Unmarshal(data, &drops); err == nil {
		d.Currency = NativeCurrency
		d.Issuer = ""
		d.Value = drops
		return nil
	}

	type alias DeliveredAmount
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*d = DeliveredAmount(a)
	return nil
}

// TxDocument is the transaction document itself. Memos is nil when the
// document carries no memo list; an absent list is valid and produces no
// derived memo row.
type TxDocument struct {
	Account         string        `json:"Account"`
	Destination     string        `json:"Destination,omitempty"`
	Fee             string        `json:"Fee,omitempty"`
	TransactionType string        `json:"TransactionType"`
	Memos           []MemoWrapper `json:"Memos,omitempty"`
}

// MemoWrapper matches the ledger's one level of nesting around each memo.
type MemoWrapper struct {
	Memo MemoEntry `json:"Memo"`
}

// MemoEntry carries the hex-encoded memo fields of a single memo list entry.
type MemoEntry struct {
	MemoFormat string `json:"MemoFormat,omitempty"`
	MemoType   string `json:"MemoType,omitempty"`
	MemoData   string `json:"MemoData,omitempty"`
}

// Currency codes.
const (
	// NativeCurrency is the ledger's native asset, amounts given in drops.
	NativeCurrency = "XRP"

	// TrackedCurrency is the issued asset whose delivered amounts are
	// extracted into derived memo rows. Other currencies yield zero.
	TrackedCurrency = "PFT"
)

// Transaction type constants.
const (
	TxTypePayment = "Payment"
)

// DropsPerXRP converts the native fee denomination (drops) to XRP.
const DropsPerXRP = 1_000_000
