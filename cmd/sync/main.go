// Package main provides the sync daemon: it subscribes to the ledger
// transaction stream for a set of accounts and keeps the raw transaction
// cache (and its derived memo rows) up to date. A file mode replays a
// captured stream instead of connecting live.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pft-memo-cache/internal/ingest"
	"pft-memo-cache/internal/memo"
	"pft-memo-cache/internal/observability"
	"pft-memo-cache/internal/storage"
	"pft-memo-cache/internal/storage/memory"
	"pft-memo-cache/internal/storage/migrations"
	pgstore "pft-memo-cache/internal/storage/postgres"
	"pft-memo-cache/internal/xrpl"
	"pft-memo-cache/internal/xrpladdr"
)

func main() {
	loadEnvFile()

	wsEndpoint := flag.String("ws-endpoint", os.Getenv("XRPL_WS_ENDPOINT"), "rippled WebSocket endpoint")
	accounts := flag.String("accounts", os.Getenv("SYNC_ACCOUNTS"), "Comma-separated accounts to subscribe to")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	mode := flag.String("mode", "live", "Source mode: live or file")
	replayFile := flag.String("replay-file", "", "JSON-lines capture file for file mode")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address")
	flag.Parse()

	logger := log.New(os.Stdout, "[sync] ", log.LstdFlags|log.Lshortfile)

	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	var accountList []string
	switch *mode {
	case "live":
		if *wsEndpoint == "" {
			logger.Fatal("--ws-endpoint is required in live mode")
		}
		accountList = parseAccounts(*accounts)
		if len(accountList) == 0 {
			logger.Fatal("--accounts is required in live mode")
		}
		for _, a := range accountList {
			if !xrpladdr.IsValidAddress(a) {
				logger.Fatalf("invalid account address: %s", a)
			}
		}
	case "file":
		if *replayFile == "" {
			logger.Fatal("--replay-file is required in file mode")
		}
	default:
		logger.Fatalf("unknown mode %q (want live or file)", *mode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, cleanup, err := createStore(ctx, *postgresDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create store: %v", err)
	}
	defer cleanup()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		}
	}()

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		logger.Printf("Metrics listening on %s", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("Metrics server error: %v", err)
		}
	}()

	source, sourceCleanup, err := createSource(ctx, *mode, *wsEndpoint, *replayFile, accountList, logger)
	if err != nil {
		logger.Fatalf("Failed to create source: %v", err)
	}
	defer sourceCleanup()

	runner := ingest.NewRunner(ingest.RunnerOptions{
		Source: source,
		Store:  store,
		Logger: logger,
	})

	err = runner.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		// File replay ends by closing its channel; that is a clean exit.
		if *mode == "file" {
			logger.Println("Replay complete")
			return
		}
		logger.Fatalf("Runner error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// parseAccounts splits the comma-separated account list.
func parseAccounts(s string) []string {
	var list []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			list = append(list, a)
		}
	}
	return list
}

// createStore creates the raw transaction store.
func createStore(ctx context.Context, postgresDSN string, useMemory bool) (storage.RawTransactionStore, func(), error) {
	if useMemory {
		return memory.NewTxCache(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("apply migrations: %w", err)
	}

	return pgstore.NewRawTransactionStore(pool, memo.NewMaterializer()), func() { pool.Close() }, nil
}

// createSource creates the transaction stream for the chosen mode.
func createSource(ctx context.Context, mode, wsEndpoint, replayFile string, accounts []string, logger *log.Logger) (<-chan xrpl.TransactionMessage, func(), error) {
	if mode == "file" {
		fileSource := ingest.NewFileSource(replayFile, logger)
		ch, err := fileSource.Stream(ctx)
		if err != nil {
			return nil, nil, err
		}
		return ch, func() {}, nil
	}

	client, err := xrpl.NewWSClient(ctx, wsEndpoint, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("connect websocket: %w", err)
	}

	ch, err := client.Subscribe(ctx, accounts)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("subscribe: %w", err)
	}

	logger.Printf("Subscribed to %d accounts on %s", len(accounts), wsEndpoint)
	return ch, func() { client.Close() }, nil
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
