package ingest

import (
	"context"
	"errors"
	"log"
	"time"

	"pft-memo-cache/internal/observability"
	"pft-memo-cache/internal/storage"
	"pft-memo-cache/internal/xrpl"
)

// Runner consumes transaction notifications and writes them to the raw
// transaction cache. Memo materialization happens inside the store's
// Upsert, so the runner itself only parses, validates, and hands off.
type Runner struct {
	source <-chan xrpl.TransactionMessage
	store  storage.RawTransactionStore
	logger *log.Logger
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Source <-chan xrpl.TransactionMessage
	Store  storage.RawTransactionStore
	Logger *log.Logger
}

// NewRunner creates a new ingestion runner.
func NewRunner(opts RunnerOptions) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Runner{
		source: opts.Source,
		store:  opts.Store,
		logger: logger,
	}
}

// Run consumes the source until the context is cancelled or the source
// channel closes. Per-transaction failures are counted and logged, not
// fatal: one malformed transaction must not stall the stream.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Println("[ingest] runner started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Println("[ingest] runner stopping...")
			return ctx.Err()

		case msg, ok := <-r.source:
			if !ok {
				r.logger.Println("[ingest] source channel closed")
				return errors.New("transaction source closed")
			}
			r.handle(ctx, &msg)
		}
	}
}

// handle processes a single notification.
func (r *Runner) handle(ctx context.Context, msg *xrpl.TransactionMessage) {
	observability.RecordTransactionReceived()

	raw, err := ParseTransaction(msg)
	if err != nil {
		r.logger.Printf("[ingest] skipping transaction: %v", err)
		observability.RecordIngestionError("parse")
		return
	}

	if err := r.store.Upsert(ctx, raw); err != nil {
		r.logger.Printf("[ingest] store %s: %v", raw.Hash, err)
		observability.RecordIngestionError("store")
		return
	}

	observability.RecordTransactionStored(time.Now().Unix())
	observability.UpdateHighestLedger(raw.LedgerIndex)
	if len(raw.Tx.Memos) > 0 {
		observability.RecordMemoMaterialized()
	} else {
		observability.RecordMemoSkipped()
	}
}
