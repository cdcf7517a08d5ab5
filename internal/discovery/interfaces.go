package discovery

import (
	"context"
	"time"
)

// EmitFunc receives each raw item an adapter produces, in fetch order.
// Returning an error stops the drain; the adapter must propagate it unchanged.
type EmitFunc func(RawEntity) error

// Rate declares a source's request ceiling to the guard.
type Rate struct {
	RequestsPerSecond float64
	Burst             int
}

// SourceAdapter fetches raw entity listings from one external source.
// Implementations differ only in how they speak to their source; they hold no
// shared mutable state and receive session/auth material at construction.
type SourceAdapter interface {
	// SourceID returns the stable identifier for this source.
	SourceID() string

	// RateLimit declares the source's request ceiling.
	RateLimit() Rate

	// Fetch drains listings newer than the watermark, pushing each item to
	// emit. It returns the watermark a future run should resume from. A
	// *ParseError on a single item must be logged and skipped internally,
	// never returned.
	Fetch(ctx context.Context, wm Watermark, emit EmitFunc) (Watermark, error)
}

// CheckpointStore persists per-source watermarks across runs. Owned
// exclusively by the orchestrator.
type CheckpointStore interface {
	Load(ctx context.Context) (map[string]Watermark, error)
	Save(ctx context.Context, sourceID string, wm Watermark) error
}

// IndexEntry maps an identity signal to an entity key.
type IndexEntry struct {
	EntityKey string
	City      string
}

// IdentityIndex persists the resolver's identity signals so cross-run dedup
// works identically to within-run dedup.
type IdentityIndex interface {
	// LookupRegistration returns the entity key previously bound to a
	// registration identifier, if any.
	LookupRegistration(ctx context.Context, regID string) (string, bool, error)

	// CandidatesByBucket returns all match-key entries sharing a city/state
	// bucket, for similarity comparison.
	CandidatesByBucket(ctx context.Context, bucket string) (map[string]IndexEntry, error)

	// Bind records both signals for an entity key. Empty signals are skipped.
	Bind(ctx context.Context, regID, matchKey, bucket, entityKey string) error
}

// RecordStore persists canonical records between runs.
type RecordStore interface {
	Get(ctx context.Context, entityKey string) (CanonicalRecord, bool, error)
	Put(ctx context.Context, rec CanonicalRecord) error
}

// Sink emits resolved records to the hand-off boundary. Delivery is
// at-least-once; consumers dedup on EntityKey.
type Sink interface {
	Emit(ctx context.Context, records []CanonicalRecord) error
}

// Clock returns the current time (injectable for tests).
type Clock interface {
	Now() time.Time
}
