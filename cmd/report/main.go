// Package main provides the one-shot activity report: it folds the
// derived memo store over a time range into per-account daily activity
// points and writes them to ClickHouse.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"pft-memo-cache/internal/analytics"
	"pft-memo-cache/internal/observability"
	"pft-memo-cache/internal/storage"
	chstore "pft-memo-cache/internal/storage/clickhouse"
	"pft-memo-cache/internal/storage/memory"
	"pft-memo-cache/internal/storage/migrations"
	pgstore "pft-memo-cache/internal/storage/postgres"
)

func main() {
	loadEnvFile()

	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage (for dry runs)")
	startFlag := flag.String("start", "", "Range start (RFC3339 or YYYY-MM-DD), default 24h ago")
	endFlag := flag.String("end", "", "Range end (RFC3339 or YYYY-MM-DD), default now")
	flag.Parse()

	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		fmt.Fprintln(os.Stderr, "Error: --postgres-dsn and --clickhouse-dsn are required (use --use-memory for a dry run)")
		os.Exit(1)
	}

	start, end, err := parseRange(*startFlag, *endFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	memoStore, activityStore, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to databases: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	aggregator := analytics.NewAggregator(memoStore, activityStore)

	runStart := time.Now()
	n, err := aggregator.Run(ctx, start, end)
	if err != nil {
		if errors.Is(err, analytics.ErrNoMemos) {
			fmt.Printf("No memos in range %s .. %s, nothing to do\n", start.Format(time.RFC3339), end.Format(time.RFC3339))
			observability.RecordReportRun("empty", time.Since(runStart).Seconds())
			return
		}
		observability.RecordReportRun("error", time.Since(runStart).Seconds())
		fmt.Fprintf(os.Stderr, "Error computing activity: %v\n", err)
		os.Exit(1)
	}

	observability.RecordReportRun("success", time.Since(runStart).Seconds())
	observability.DefaultMetrics.ActivityPointsComputed.Add(float64(n))
	observability.DefaultMetrics.LastSuccessfulReport.Set(float64(time.Now().Unix()))

	fmt.Printf("Wrote %d activity points for %s .. %s in %v\n",
		n, start.Format(time.RFC3339), end.Format(time.RFC3339), time.Since(runStart))
}

// parseRange resolves the start/end flags, defaulting to the last 24h.
func parseRange(startFlag, endFlag string) (time.Time, time.Time, error) {
	now := time.Now().UTC()

	end := now
	if endFlag != "" {
		var err error
		end, err = parseTime(endFlag)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse --end: %w", err)
		}
	}

	start := end.Add(-24 * time.Hour)
	if startFlag != "" {
		var err error
		start, err = parseTime(startFlag)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse --start: %w", err)
		}
	}

	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("start %s is not before end %s", start, end)
	}

	return start, end, nil
}

// parseTime accepts RFC3339 or a bare date.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// createStores creates the memo reader and activity writer.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (storage.MemoStore, storage.AccountActivityStore, func(), error) {
	if useMemory {
		cache := memory.NewTxCache()
		return cache.MemoView(), memory.NewAccountActivityStore(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}

	conn, err := chstore.NewConn(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}

	if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
		conn.Close()
		pool.Close()
		return nil, nil, nil, fmt.Errorf("apply clickhouse migrations: %w", err)
	}

	cleanup := func() {
		conn.Close()
		pool.Close()
	}

	return pgstore.NewMemoStore(pool), chstore.NewAccountActivityStore(conn), cleanup, nil
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
