// Package memory provides in-memory state implementations for development
// and testing. Nothing survives a restart; the postgres backend is the
// durable path.
package memory

import (
	"context"
	"sync"

	"github.com/scoutlabs/scout/internal/discovery"
)

// Store implements the checkpoint store, identity index, and record store
// backed by maps.
type Store struct {
	mu          sync.RWMutex
	checkpoints map[string]discovery.Watermark
	regIndex    map[string]string
	buckets     map[string]map[string]discovery.IndexEntry
	records     map[string]discovery.CanonicalRecord
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		checkpoints: make(map[string]discovery.Watermark),
		regIndex:    make(map[string]string),
		buckets:     make(map[string]map[string]discovery.IndexEntry),
		records:     make(map[string]discovery.CanonicalRecord),
	}
}

// Load returns all persisted watermarks.
func (s *Store) Load(_ context.Context) (map[string]discovery.Watermark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]discovery.Watermark, len(s.checkpoints))
	for k, v := range s.checkpoints {
		out[k] = v
	}
	return out, nil
}

// Save persists the watermark for one source.
func (s *Store) Save(_ context.Context, sourceID string, wm discovery.Watermark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[sourceID] = wm
	return nil
}

// LookupRegistration returns the entity key bound to a registration id.
func (s *Store) LookupRegistration(_ context.Context, regID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.regIndex[regID]
	return key, ok, nil
}

// CandidatesByBucket returns the match-key entries in one location bucket.
func (s *Store) CandidatesByBucket(_ context.Context, bucket string) (map[string]discovery.IndexEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]discovery.IndexEntry, len(s.buckets[bucket]))
	for k, v := range s.buckets[bucket] {
		out[k] = v
	}
	return out, nil
}

// Bind records identity signals for an entity key.
func (s *Store) Bind(_ context.Context, regID, matchKey, bucket, entityKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if regID != "" {
		s.regIndex[regID] = entityKey
	}
	if matchKey != "" && bucket != "" {
		if s.buckets[bucket] == nil {
			s.buckets[bucket] = make(map[string]discovery.IndexEntry)
		}
		s.buckets[bucket][matchKey] = discovery.IndexEntry{EntityKey: entityKey, City: bucket}
	}
	return nil
}

// Get returns the record for an entity key.
func (s *Store) Get(_ context.Context, entityKey string) (discovery.CanonicalRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[entityKey]
	return rec, ok, nil
}

// Put stores a record.
func (s *Store) Put(_ context.Context, rec discovery.CanonicalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.EntityKey] = rec
	return nil
}

// Records returns a snapshot of every stored record, for tests and the
// status API.
func (s *Store) Records() []discovery.CanonicalRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]discovery.CanonicalRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out
}
