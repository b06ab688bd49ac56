package domain

import "time"

// Memo is the decoded summary of a transaction's first memo entry plus its
// monetary fields. Corresponds to transaction_memos table in PostgreSQL.
// A memo row is exclusively owned by its RawTransaction: it is created or
// fully replaced whenever the raw row is written, and removed only via
// cascade when the raw row is deleted.
type Memo struct {
	Hash              string    // FK to tx_cache.hash, primary key
	Account           string    // sender account
	Destination       string    // destination account
	PFTAmount         float64   // delivered PFT, 0 when no tracked-asset delivery
	XRPFee            float64   // fee in XRP, converted from drops
	MemoFormat        string    // decoded memo format, "" when absent or malformed
	MemoType          string    // decoded memo type
	MemoData          string    // decoded memo data
	Datetime          time.Time // copied from the raw transaction's close time
	TransactionResult string    // copied from meta
}

// Payment direction relative to a viewpoint account.
const (
	DirectionIncoming = "INCOMING"
	DirectionOutgoing = "OUTGOING"
)

// HandshakeMarker identifies handshake memos; matched anywhere in memo_type.
const HandshakeMarker = "HANDSHAKE"

// DirectionFor classifies a payment relative to the viewpoint account.
// A self-payment (account == destination == viewpoint) classifies as
// INCOMING: the destination match wins.
func DirectionFor(account, destination, viewpoint string) string {
	if destination == viewpoint {
		return DirectionIncoming
	}
	return DirectionOutgoing
}

// CounterpartyFor returns the account on the other side of a payment as
// seen from the viewpoint account.
func CounterpartyFor(account, destination, viewpoint string) string {
	if account == viewpoint {
		return destination
	}
	return account
}

// AccountMemoRecord is one row of an account's memo ledger history:
// the derived memo plus direction fields computed relative to the
// viewpoint account the query was asked for.
type AccountMemoRecord struct {
	Memo
	Direction      string  // INCOMING | OUTGOING relative to the viewpoint
	DirectionalPFT float64 // +PFTAmount when INCOMING, -PFTAmount when OUTGOING
	Counterparty   string  // the other account
}

// PaymentRecord is one row of raw payment history, computed at query time
// from the raw transaction cache without touching the derived memo store.
type PaymentRecord struct {
	Raw          *RawTransaction
	Direction    string // INCOMING | OUTGOING relative to the viewpoint
	Counterparty string
}

// HandshakeRecord is one row of handshake history between two accounts.
// Direction is relative to the local account. ChannelKeyValid reports
// whether memo_data parses as a well-formed ed25519 channel public key;
// handshake memos carry the ECDH public key there.
type HandshakeRecord struct {
	Memo
	Direction       string // OUTGOING when local initiated, else INCOMING
	Counterparty    string
	ChannelKeyValid bool
}
