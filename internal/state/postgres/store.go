// Package postgres provides Postgres-backed persistence for checkpoints, the
// identity index, and canonical records.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scoutlabs/scout/internal/discovery"
)

// Querier is the subset of pgxpool.Pool the store uses, extracted so tests
// can substitute pgxmock.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements discovery.CheckpointStore, discovery.IdentityIndex, and
// discovery.RecordStore on Postgres.
//
// Expected schema:
//
//	CREATE TABLE checkpoints (
//	    source_id TEXT PRIMARY KEY,
//	    since TIMESTAMPTZ NOT NULL,
//	    cursor TEXT NOT NULL DEFAULT ''
//	);
//	CREATE TABLE identity_registrations (
//	    registration_id TEXT PRIMARY KEY,
//	    entity_key TEXT NOT NULL
//	);
//	CREATE TABLE identity_match_keys (
//	    bucket TEXT NOT NULL,
//	    match_key TEXT NOT NULL,
//	    entity_key TEXT NOT NULL,
//	    PRIMARY KEY (bucket, match_key)
//	);
//	CREATE TABLE records (
//	    entity_key TEXT PRIMARY KEY,
//	    payload JSONB NOT NULL
//	);
type Store struct {
	db   Querier
	pool *pgxpool.Pool
}

// New connects a pool and pings it so a dead database surfaces at startup,
// before a run begins, rather than mid-pipeline.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: pool, pool: pool}, nil
}

// NewWithQuerier wraps an existing querier (used with pgxmock in tests).
func NewWithQuerier(db Querier) *Store {
	return &Store{db: db}
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Load returns all persisted watermarks.
func (s *Store) Load(ctx context.Context) (map[string]discovery.Watermark, error) {
	rows, err := s.db.Query(ctx, `SELECT source_id, since, cursor FROM checkpoints`)
	if err != nil {
		return nil, fmt.Errorf("load checkpoints: %w", err)
	}
	defer rows.Close()

	out := make(map[string]discovery.Watermark)
	for rows.Next() {
		var sourceID string
		var wm discovery.Watermark
		if err := rows.Scan(&sourceID, &wm.Since, &wm.Cursor); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		out[sourceID] = wm
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	return out, nil
}

// Save upserts the watermark for one source.
func (s *Store) Save(ctx context.Context, sourceID string, wm discovery.Watermark) error {
	query := `
		INSERT INTO checkpoints (source_id, since, cursor)
		VALUES ($1, $2, $3)
		ON CONFLICT (source_id) DO UPDATE
		SET since = EXCLUDED.since, cursor = EXCLUDED.cursor;
	`
	if _, err := s.db.Exec(ctx, query, sourceID, wm.Since, wm.Cursor); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", sourceID, err)
	}
	return nil
}

// LookupRegistration returns the entity key bound to a registration id.
func (s *Store) LookupRegistration(ctx context.Context, regID string) (string, bool, error) {
	var key string
	err := s.db.QueryRow(ctx,
		`SELECT entity_key FROM identity_registrations WHERE registration_id = $1`,
		regID,
	).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup registration %s: %w", regID, err)
	}
	return key, true, nil
}

// CandidatesByBucket returns the match-key entries in one location bucket.
func (s *Store) CandidatesByBucket(ctx context.Context, bucket string) (map[string]discovery.IndexEntry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT match_key, entity_key FROM identity_match_keys WHERE bucket = $1`,
		bucket,
	)
	if err != nil {
		return nil, fmt.Errorf("scan bucket %s: %w", bucket, err)
	}
	defer rows.Close()

	out := make(map[string]discovery.IndexEntry)
	for rows.Next() {
		var matchKey, entityKey string
		if err := rows.Scan(&matchKey, &entityKey); err != nil {
			return nil, fmt.Errorf("scan match key: %w", err)
		}
		out[matchKey] = discovery.IndexEntry{EntityKey: entityKey, City: bucket}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bucket %s: %w", bucket, err)
	}
	return out, nil
}

// Bind upserts identity signals for an entity key. Empty signals are skipped.
func (s *Store) Bind(ctx context.Context, regID, matchKey, bucket, entityKey string) error {
	if regID != "" {
		query := `
			INSERT INTO identity_registrations (registration_id, entity_key)
			VALUES ($1, $2)
			ON CONFLICT (registration_id) DO UPDATE SET entity_key = EXCLUDED.entity_key;
		`
		if _, err := s.db.Exec(ctx, query, regID, entityKey); err != nil {
			return fmt.Errorf("bind registration %s: %w", regID, err)
		}
	}
	if matchKey != "" && bucket != "" {
		query := `
			INSERT INTO identity_match_keys (bucket, match_key, entity_key)
			VALUES ($1, $2, $3)
			ON CONFLICT (bucket, match_key) DO UPDATE SET entity_key = EXCLUDED.entity_key;
		`
		if _, err := s.db.Exec(ctx, query, bucket, matchKey, entityKey); err != nil {
			return fmt.Errorf("bind match key %s/%s: %w", bucket, matchKey, err)
		}
	}
	return nil
}

// Get returns the record for an entity key.
func (s *Store) Get(ctx context.Context, entityKey string) (discovery.CanonicalRecord, bool, error) {
	var payload []byte
	err := s.db.QueryRow(ctx,
		`SELECT payload FROM records WHERE entity_key = $1`,
		entityKey,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return discovery.CanonicalRecord{}, false, nil
	}
	if err != nil {
		return discovery.CanonicalRecord{}, false, fmt.Errorf("load record %s: %w", entityKey, err)
	}
	var rec discovery.CanonicalRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return discovery.CanonicalRecord{}, false, fmt.Errorf("decode record %s: %w", entityKey, err)
	}
	return rec, true, nil
}

// Put upserts a record as a JSONB payload.
func (s *Store) Put(ctx context.Context, rec discovery.CanonicalRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.EntityKey, err)
	}
	query := `
		INSERT INTO records (entity_key, payload)
		VALUES ($1, $2)
		ON CONFLICT (entity_key) DO UPDATE SET payload = EXCLUDED.payload;
	`
	if _, err := s.db.Exec(ctx, query, rec.EntityKey, payload); err != nil {
		return fmt.Errorf("store record %s: %w", rec.EntityKey, err)
	}
	return nil
}
