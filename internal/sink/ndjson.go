// Package sink emits the deduplicated canonical feed at the hand-off
// boundary: one stable JSON object per line, keyed by entity_key.
package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/scoutlabs/scout/internal/discovery"
)

// NDJSON writes records as newline-delimited JSON. Delivery is
// at-least-once; consumers dedup on entity_key.
type NDJSON struct {
	w      *bufio.Writer
	closer io.Closer
}

// NewFile opens or creates path in append mode. Appending keeps records from
// earlier runs in place; a crash between emit and checkpoint advance may
// duplicate lines, which the entity_key contract absorbs.
func NewFile(path string) (*NDJSON, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}
	return &NDJSON{w: bufio.NewWriter(f), closer: f}, nil
}

// NewWriter wraps an arbitrary writer (stdout, test buffers).
func NewWriter(w io.Writer) *NDJSON {
	return &NDJSON{w: bufio.NewWriter(w)}
}

// Emit writes one line per record and flushes before returning, so records
// are durable before the caller advances checkpoints.
func (s *NDJSON) Emit(ctx context.Context, records []discovery.CanonicalRecord) error {
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := json.Marshal(rec)
		if err != nil {
			return discovery.Fatal(fmt.Errorf("encode record %s: %w", rec.EntityKey, err))
		}
		if _, err := s.w.Write(append(line, '\n')); err != nil {
			return discovery.Fatal(fmt.Errorf("write record %s: %w", rec.EntityKey, err))
		}
	}
	if err := s.w.Flush(); err != nil {
		return discovery.Fatal(fmt.Errorf("flush output: %w", err))
	}
	return nil
}

// Close flushes and closes the underlying file, if any.
func (s *NDJSON) Close() error {
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	if s.closer != nil {
		if err := s.closer.Close(); err != nil {
			return fmt.Errorf("close output: %w", err)
		}
	}
	return nil
}
