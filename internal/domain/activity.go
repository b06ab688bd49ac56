package domain

import "time"

// AccountActivityPoint aggregates one account's memo payment activity over
// a single UTC day. Corresponds to account_activity table in ClickHouse.
type AccountActivityPoint struct {
	Account       string    // account the aggregate is for
	Day           time.Time // UTC midnight of the aggregated day
	SentCount     int       // memo payments sent
	ReceivedCount int       // memo payments received
	PFTOut        float64   // total PFT sent
	PFTIn         float64   // total PFT received
	FeesPaid      float64   // total XRP fees on sent payments
}
