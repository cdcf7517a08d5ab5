package app

import (
	"context"

	"github.com/scoutlabs/scout/internal/discovery"
)

// readOnlyCheckpoints serves reads from the real store but drops writes, so a
// dry run resumes from real watermarks without advancing them.
type readOnlyCheckpoints struct {
	inner discovery.CheckpointStore
}

func (r readOnlyCheckpoints) Load(ctx context.Context) (map[string]discovery.Watermark, error) {
	return r.inner.Load(ctx)
}

func (r readOnlyCheckpoints) Save(context.Context, string, discovery.Watermark) error {
	return nil
}

// scratchState is a copy-on-write overlay for dry runs: the resolver reads
// existing records and identity bindings from the durable store but every
// write lands in run-local maps, so within-run dedup still works while the
// durable store stays byte-for-byte untouched. Like the store it wraps, it is
// only safe from the single resolver goroutine.
type scratchState struct {
	inner   stateStore
	records map[string]discovery.CanonicalRecord
	regs    map[string]string
	buckets map[string]map[string]discovery.IndexEntry
}

func newScratchState(inner stateStore) *scratchState {
	return &scratchState{
		inner:   inner,
		records: make(map[string]discovery.CanonicalRecord),
		regs:    make(map[string]string),
		buckets: make(map[string]map[string]discovery.IndexEntry),
	}
}

func (s *scratchState) Get(ctx context.Context, entityKey string) (discovery.CanonicalRecord, bool, error) {
	if rec, ok := s.records[entityKey]; ok {
		return rec, true, nil
	}
	return s.inner.Get(ctx, entityKey)
}

func (s *scratchState) Put(_ context.Context, rec discovery.CanonicalRecord) error {
	s.records[rec.EntityKey] = rec
	return nil
}

func (s *scratchState) LookupRegistration(ctx context.Context, regID string) (string, bool, error) {
	if key, ok := s.regs[regID]; ok {
		return key, true, nil
	}
	return s.inner.LookupRegistration(ctx, regID)
}

func (s *scratchState) CandidatesByBucket(ctx context.Context, bucket string) (map[string]discovery.IndexEntry, error) {
	out, err := s.inner.CandidatesByBucket(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if len(s.buckets[bucket]) > 0 {
		merged := make(map[string]discovery.IndexEntry, len(out)+len(s.buckets[bucket]))
		for k, v := range out {
			merged[k] = v
		}
		for k, v := range s.buckets[bucket] {
			merged[k] = v
		}
		out = merged
	}
	return out, nil
}

func (s *scratchState) Bind(_ context.Context, regID, matchKey, bucket, entityKey string) error {
	if regID != "" {
		s.regs[regID] = entityKey
	}
	if matchKey != "" && bucket != "" {
		if s.buckets[bucket] == nil {
			s.buckets[bucket] = make(map[string]discovery.IndexEntry)
		}
		s.buckets[bucket][matchKey] = discovery.IndexEntry{EntityKey: entityKey, City: bucket}
	}
	return nil
}
