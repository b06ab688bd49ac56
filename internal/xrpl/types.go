// Package xrpl provides a WebSocket client for the XRP Ledger
// transaction stream.
package xrpl

import "encoding/json"

// TransactionMessage is one validated-transaction notification from the
// ledger's transaction stream (api_version 2 shape). Meta and TxJSON are
// kept raw; the ingest layer parses them into domain documents.
type TransactionMessage struct {
	Type         string          `json:"type"`
	Hash         string          `json:"hash"`
	LedgerIndex  int64           `json:"ledger_index"`
	CloseTimeISO string          `json:"close_time_iso"`
	Validated    bool            `json:"validated"`
	Meta         json.RawMessage `json:"meta"`
	TxJSON       json.RawMessage `json:"tx_json"`
}

// wsCommand is an outbound request on the WebSocket connection.
type wsCommand struct {
	ID         uint64   `json:"id"`
	Command    string   `json:"command"`
	Accounts   []string `json:"accounts,omitempty"`
	APIVersion int      `json:"api_version,omitempty"`
}

// wsResponse is the server's reply to a command.
type wsResponse struct {
	ID     uint64          `json:"id"`
	Type   string          `json:"type"`
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}
