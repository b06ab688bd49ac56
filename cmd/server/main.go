// Package main provides the query API server: account memo history,
// raw payment history, and handshake history over the cached ledger
// transactions, plus health/metrics/status endpoints.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"pft-memo-cache/internal/memo"
	"pft-memo-cache/internal/observability"
	"pft-memo-cache/internal/storage"
	"pft-memo-cache/internal/storage/memory"
	"pft-memo-cache/internal/storage/migrations"
	pgstore "pft-memo-cache/internal/storage/postgres"
	"pft-memo-cache/internal/xrpladdr"
)

// Server holds the query API components.
type Server struct {
	rawStore  storage.RawTransactionStore
	memoStore storage.MemoStore
	logger    *log.Logger

	mu      sync.Mutex
	started time.Time
	queries int
}

func main() {
	loadEnvFile()

	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	listenAddr := flag.String("listen-addr", ":8080", "HTTP listen address")
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rawStore, memoStore, cleanup, err := createStores(ctx, *postgresDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	server := &Server{
		rawStore:  rawStore,
		memoStore: memoStore,
		logger:    logger,
		started:   time.Now(),
	}

	httpServer := &http.Server{
		Addr:    *listenAddr,
		Handler: server.routes(),
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		// Second signal forces immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-shutdownCtx.Done():
		}
	}()

	logger.Printf("Query API listening on %s", *listenAddr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("HTTP server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// createStores creates the raw and memo stores.
func createStores(ctx context.Context, postgresDSN string, useMemory bool) (storage.RawTransactionStore, storage.MemoStore, func(), error) {
	if useMemory {
		cache := memory.NewTxCache()
		return cache, cache.MemoView(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("apply migrations: %w", err)
	}

	rawStore := pgstore.NewRawTransactionStore(pool, memo.NewMaterializer())
	memoStore := pgstore.NewMemoStore(pool)

	return rawStore, memoStore, func() { pool.Close() }, nil
}

// routes builds the HTTP mux.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /accounts/{account}/memos", s.handleAccountMemos)
	mux.HandleFunc("GET /accounts/{account}/payments", s.handleAccountPayments)
	mux.HandleFunc("GET /handshakes", s.handleHandshakes)
	mux.HandleFunc("GET /tx/{hash}", s.handleTransaction)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/status", s.handleStatus)

	return mux
}

// handleAccountMemos serves an account's memo ledger history.
// Query params: pft_only=true, memo_type=<prefix>.
func (s *Server) handleAccountMemos(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	account := r.PathValue("account")

	if !xrpladdr.IsValidAddress(account) {
		writeError(w, http.StatusBadRequest, "invalid account address")
		return
	}

	q := storage.AccountHistoryQuery{
		Viewpoint:      account,
		PFTOnly:        r.URL.Query().Get("pft_only") == "true",
		MemoTypePrefix: r.URL.Query().Get("memo_type"),
	}

	records, err := s.memoStore.AccountHistory(r.Context(), q)
	s.recordQuery("account_memos", start, err)
	if err != nil {
		s.logger.Printf("account memos %s: %v", account, err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, records)
}

// handleAccountPayments serves raw payment history from the transaction
// cache, bypassing the derived memo store.
func (s *Server) handleAccountPayments(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	account := r.PathValue("account")

	if !xrpladdr.IsValidAddress(account) {
		writeError(w, http.StatusBadRequest, "invalid account address")
		return
	}

	records, err := s.rawStore.PaymentHistory(r.Context(), account)
	s.recordQuery("account_payments", start, err)
	if err != nil {
		s.logger.Printf("account payments %s: %v", account, err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, records)
}

// handleHandshakes serves handshake history between two accounts.
// Query params: local=<address>, remote=<address>.
func (s *Server) handleHandshakes(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	local := r.URL.Query().Get("local")
	remote := r.URL.Query().Get("remote")

	if !xrpladdr.IsValidAddress(local) {
		writeError(w, http.StatusBadRequest, "invalid local address")
		return
	}
	if !xrpladdr.IsValidAddress(remote) {
		writeError(w, http.StatusBadRequest, "invalid remote address")
		return
	}

	records, err := s.memoStore.HandshakeHistory(r.Context(), local, remote)
	s.recordQuery("handshakes", start, err)
	if err != nil {
		s.logger.Printf("handshakes %s/%s: %v", local, remote, err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, records)
}

// handleTransaction serves a single cached transaction by hash.
func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	hash := r.PathValue("hash")

	raw, err := s.rawStore.GetByHash(r.Context(), hash)
	s.recordQuery("transaction", start, err)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "transaction not found")
			return
		}
		s.logger.Printf("transaction %s: %v", hash, err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, raw)
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Queries int    `json:"queries"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	writeJSON(w, StatusResponse{
		Status:  "running",
		Uptime:  time.Since(s.started).String(),
		Queries: s.queries,
	})
}

// recordQuery updates metrics and counters for a served query.
func (s *Server) recordQuery(operation string, start time.Time, err error) {
	observability.RecordQuery(operation, time.Since(start).Seconds(), err)

	s.mu.Lock()
	s.queries++
	s.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
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
