// Package resolve assigns identity keys to canonical candidates and merges
// duplicate observations of the same real-world entity across sources and
// runs.
package resolve

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/scoutlabs/scout/internal/discovery"
	"github.com/scoutlabs/scout/internal/hash/sha256"
	"github.com/scoutlabs/scout/internal/normalize"
	"github.com/scoutlabs/scout/internal/telemetry"
)

// Action describes what Resolve did with a candidate.
type Action string

// Resolver actions.
const (
	ActionCreated   Action = "created"
	ActionMerged    Action = "merged"
	ActionUnchanged Action = "unchanged"
)

// Resolution is the outcome of resolving one candidate.
type Resolution struct {
	EntityKey string
	Action    Action
	Record    discovery.CanonicalRecord
}

// Config holds resolver tuning.
type Config struct {
	// SimilarityCutoff is the minimum edit-distance ratio between match keys
	// for a fuzzy merge. The registration-id path is exact and unaffected.
	SimilarityCutoff float64
}

// Resolver owns all mutation of existing records. It must be driven by a
// single goroutine; the identity index and record store are not guarded here.
type Resolver struct {
	index   discovery.IdentityIndex
	records discovery.RecordStore
	hasher  *sha256.Hasher
	cutoff  float64
	logger  *zap.Logger
}

// New constructs a Resolver.
func New(cfg Config, index discovery.IdentityIndex, records discovery.RecordStore, logger *zap.Logger) *Resolver {
	cutoff := cfg.SimilarityCutoff
	if cutoff <= 0 || cutoff > 1 {
		cutoff = 0.90
	}
	return &Resolver{
		index:   index,
		records: records,
		hasher:  sha256.New(),
		cutoff:  cutoff,
		logger:  logger,
	}
}

// Resolve decides which entity a candidate belongs to and folds it in.
// authoritative marks candidates observed on a registry source: their
// registration identifiers take precedence on conflict, and their filled
// fields are stamped so directory observations cannot overwrite them.
func (r *Resolver) Resolve(ctx context.Context, cand discovery.CanonicalRecord, authoritative bool) (Resolution, error) {
	if authoritative {
		stampAuthoritative(&cand)
	}
	matchKey := normalize.MatchName(cand.Name)
	bucket := locationBucket(cand.Location)

	entityKey, err := r.findEntity(ctx, cand, matchKey, bucket)
	if err != nil {
		return Resolution{}, err
	}

	if entityKey == "" {
		return r.create(ctx, cand, matchKey, bucket, authoritative)
	}
	return r.merge(ctx, entityKey, cand, matchKey, bucket, authoritative)
}

// findEntity applies the identity priority order: exact registration id,
// then fuzzy match key within the location bucket.
func (r *Resolver) findEntity(ctx context.Context, cand discovery.CanonicalRecord, matchKey, bucket string) (string, error) {
	if cand.RegistrationID != "" {
		key, ok, err := r.index.LookupRegistration(ctx, cand.RegistrationID)
		if err != nil {
			return "", discovery.Fatal(fmt.Errorf("lookup registration: %w", err))
		}
		if ok {
			return key, nil
		}
	}

	// Fuzzy matching needs a location bucket; without one there is no
	// structural signal to link on.
	if matchKey == "" || bucket == "" {
		return "", nil
	}
	candidates, err := r.index.CandidatesByBucket(ctx, bucket)
	if err != nil {
		return "", discovery.Fatal(fmt.Errorf("scan match bucket: %w", err))
	}
	bestKey, bestScore := "", 0.0
	for existingMatchKey, entry := range candidates {
		score := similarity(matchKey, existingMatchKey)
		if score < r.cutoff {
			continue
		}
		// Deterministic winner when several clear the cutoff.
		if score > bestScore || (score == bestScore && entry.EntityKey < bestKey) {
			bestKey, bestScore = entry.EntityKey, score
		}
	}
	return bestKey, nil
}

func (r *Resolver) create(ctx context.Context, cand discovery.CanonicalRecord, matchKey, bucket string, authoritative bool) (Resolution, error) {
	cand.EntityKey = r.entityKey(matchKey, bucket)
	if err := r.records.Put(ctx, cand); err != nil {
		return Resolution{}, discovery.Fatal(fmt.Errorf("store record: %w", err))
	}
	if err := r.bind(ctx, cand, matchKey, bucket, authoritative); err != nil {
		return Resolution{}, err
	}
	telemetry.CountResolved(string(ActionCreated))
	return Resolution{EntityKey: cand.EntityKey, Action: ActionCreated, Record: cand}, nil
}

func (r *Resolver) merge(ctx context.Context, entityKey string, cand discovery.CanonicalRecord, matchKey, bucket string, authoritative bool) (Resolution, error) {
	existing, ok, err := r.records.Get(ctx, entityKey)
	if err != nil {
		return Resolution{}, discovery.Fatal(fmt.Errorf("load record %s: %w", entityKey, err))
	}
	if !ok {
		// Index points at a record the store lost; rebind as a fresh entity.
		r.logger.Warn("identity index entry without record",
			zap.String("entity_key", entityKey),
		)
		return r.create(ctx, cand, matchKey, bucket, authoritative)
	}

	if existing.RegistrationID != "" && cand.RegistrationID != "" &&
		existing.RegistrationID != cand.RegistrationID {
		r.logger.Warn("identity conflict on registration id",
			zap.String("entity_key", entityKey),
			zap.String("existing", existing.RegistrationID),
			zap.String("candidate", cand.RegistrationID),
			zap.Bool("candidate_authoritative", authoritative),
		)
	}

	merged, changed := mergeRecords(existing, cand, authoritative)
	merged.EntityKey = entityKey
	if !changed {
		telemetry.CountResolved(string(ActionUnchanged))
		return Resolution{EntityKey: entityKey, Action: ActionUnchanged, Record: existing}, nil
	}
	if err := r.records.Put(ctx, merged); err != nil {
		return Resolution{}, discovery.Fatal(fmt.Errorf("store record %s: %w", entityKey, err))
	}
	if err := r.bind(ctx, merged, matchKey, bucket, authoritative); err != nil {
		return Resolution{}, err
	}
	telemetry.CountResolved(string(ActionMerged))
	return Resolution{EntityKey: entityKey, Action: ActionMerged, Record: merged}, nil
}

// bind records the candidate's identity signals so later observations, in
// this run or the next, land on the same entity.
func (r *Resolver) bind(ctx context.Context, rec discovery.CanonicalRecord, matchKey, bucket string, _ bool) error {
	if err := r.index.Bind(ctx, rec.RegistrationID, matchKey, bucket, rec.EntityKey); err != nil {
		return discovery.Fatal(fmt.Errorf("bind identity signals: %w", err))
	}
	return nil
}

// entityKey derives a deterministic key from the normalized identity signals,
// so reprocessing the same candidate decides the same outcome.
func (r *Resolver) entityKey(matchKey, bucket string) string {
	return r.hasher.Key([]byte(matchKey + "|" + bucket + "|"))
}

// locationBucket picks the coarse location component the fuzzy index is
// sharded by: city when known, else state, else the unresolved raw string.
func locationBucket(l discovery.Location) string {
	for _, part := range []string{l.City, l.State, l.Raw} {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			return part
		}
	}
	return ""
}
