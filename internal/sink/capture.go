package sink

import (
	"context"
	"sync"

	"github.com/scoutlabs/scout/internal/discovery"
)

// Capture retains emitted records in memory. Used by tests and by dry runs,
// where the pipeline executes fully but nothing leaves the process.
type Capture struct {
	mu      sync.Mutex
	records []discovery.CanonicalRecord
}

// NewCapture constructs an empty Capture sink.
func NewCapture() *Capture {
	return &Capture{}
}

// Emit appends the batch.
func (c *Capture) Emit(_ context.Context, records []discovery.CanonicalRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, records...)
	return nil
}

// Records returns a copy of everything emitted so far.
func (c *Capture) Records() []discovery.CanonicalRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]discovery.CanonicalRecord, len(c.records))
	copy(out, c.records)
	return out
}
