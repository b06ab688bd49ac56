package postgres

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"pft-memo-cache/internal/domain"
	"pft-memo-cache/internal/storage/migrations"
)

// setupTestDB creates a PostgreSQL container for testing and applies
// migrations. Returns a cleanup function that must be called after tests
// complete.
func setupTestDB(t *testing.T) (*Pool, func()) {
	t.Helper()

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err, "failed to create pool")

	// Apply embedded migrations
	err = migrations.RunPostgresMigrations(ctx, pool)
	require.NoError(t, err, "failed to apply migrations")

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

const (
	testAlice = "rAlice111111111111111111111"
	testBob   = "rBob2222222222222222222222"
	testCarol = "rCarol33333333333333333333"
)

func hexText(s string) string {
	return hex.EncodeToString([]byte(s))
}

// paymentTx builds a validated memo-carrying Payment. An empty pft value
// leaves delivered_amount unset.
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
