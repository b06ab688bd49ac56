package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"pft-memo-cache/internal/xrpl"
)

// FileSource replays a capture of transaction notifications from a
// JSON-lines file, one notification per line. It feeds the same channel
// shape the live WebSocket client produces, so the runner cannot tell
// replay from live.
type FileSource struct {
	path   string
	logger *log.Logger
}

// NewFileSource creates a replay source for the given file.
func NewFileSource(path string, logger *log.Logger) *FileSource {
	if logger == nil {
		logger = log.Default()
	}
	return &FileSource{path: path, logger: logger}
}

// Stream reads the file and delivers each notification on the returned
// channel. The channel closes when the file is exhausted or the context
// is cancelled. Malformed lines are skipped with a log line.
func (s *FileSource) Stream(ctx context.Context) (<-chan xrpl.TransactionMessage, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}

	ch := make(chan xrpl.TransactionMessage, 100)

	go func() {
		defer f.Close()
		defer close(ch)

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var msg xrpl.TransactionMessage
			if err := json.Unmarshal(line, &msg); err != nil {
				s.logger.Printf("[ingest] replay line %d: %v", lineNo, err)
				continue
			}

			select {
			case ch <- msg:
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil {
			s.logger.Printf("[ingest] replay read: %v", err)
		}
	}()

	return ch, nil
}
