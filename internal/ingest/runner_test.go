package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pft-memo-cache/internal/storage"
	"pft-memo-cache/internal/storage/memory"
	"pft-memo-cache/internal/xrpl"
)

func TestRunner_StoresTransactions(t *testing.T) {
	cache := memory.NewTxCache()
	source := make(chan xrpl.TransactionMessage, 10)

	runner := NewRunner(RunnerOptions{
		Source: source,
		Store:  cache,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	source <- *testMessage()

	// Malformed transaction must not stall the stream
	bad := *testMessage()
	bad.Hash = "BAD1"
	bad.TxJSON = json.RawMessage(`{"Account": "nope"}`)
	source <- bad

	good := *testMessage()
	good.Hash = "DEF456"
	source <- good

	waitForHash(t, cache, "DEF456")

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	if _, err := cache.GetByHash(context.Background(), "ABC123"); err != nil {
		t.Errorf("ABC123 not stored: %v", err)
	}
	if _, err := cache.GetByHash(context.Background(), "BAD1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("BAD1 should not be stored, got %v", err)
	}

	// Memo row came through the same write
	if _, err := cache.MemoView().GetByHash(context.Background(), "ABC123"); err != nil {
		t.Errorf("memo for ABC123 not materialized: %v", err)
	}
}

func TestRunner_SourceClosed(t *testing.T) {
	cache := memory.NewTxCache()
	source := make(chan xrpl.TransactionMessage)

	runner := NewRunner(RunnerOptions{
		Source: source,
		Store:  cache,
	})

	close(source)

	err := runner.Run(context.Background())
	if err == nil {
		t.Error("expected error when source closes")
	}
}

func TestFileSource_Stream(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capture.jsonl")

	msg := testMessage()
	line, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	content := string(line) + "\n" + "not json\n" + string(line) + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	source := NewFileSource(path, nil)
	ch, err := source.Stream(context.Background())
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var got []xrpl.TransactionMessage
	for m := range ch {
		got = append(got, m)
	}

	// The malformed line is skipped
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0].Hash != "ABC123" {
		t.Errorf("Hash: got %s", got[0].Hash)
	}
}

func TestFileSource_MissingFile(t *testing.T) {
	source := NewFileSource("/nonexistent/capture.jsonl", nil)
	if _, err := source.Stream(context.Background()); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFileSource_ReplayThroughRunner(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capture.jsonl")

	var lines []byte
	for _, hash := range []string{"H1", "H2", "H3"} {
		msg := testMessage()
		msg.Hash = hash
		line, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		lines = append(lines, line...)
		lines = append(lines, '\n')
	}
	if err := os.WriteFile(path, lines, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	cache := memory.NewTxCache()
	source := NewFileSource(path, nil)

	ch, err := source.Stream(context.Background())
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	runner := NewRunner(RunnerOptions{Source: ch, Store: cache})

	// Run ends when the replay channel closes
	err = runner.Run(context.Background())
	if err == nil {
		t.Error("expected source-closed error after replay")
	}

	for _, hash := range []string{"H1", "H2", "H3"} {
		if _, err := cache.GetByHash(context.Background(), hash); err != nil {
			t.Errorf("%s not stored: %v", hash, err)
		}
	}
}

// waitForHash polls until the hash appears or the deadline passes.
func waitForHash(t *testing.T, cache *memory.TxCache, hash string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := cache.GetByHash(context.Background(), hash); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", hash)
}
