package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutlabs/scout/internal/discovery"
)

func TestCheckpointRoundTrip(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	initial, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, initial)

	wm := discovery.Watermark{
		Since:  time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
		Cursor: "3",
	}
	require.NoError(t, s.Save(ctx, "startupindia", wm))

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, wm, loaded["startupindia"])

	// Load hands out a copy; mutating it must not affect the store.
	loaded["startupindia"] = discovery.Watermark{}
	again, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, wm, again["startupindia"])
}

func TestIdentityIndexBindAndLookup(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	_, ok, err := s.LookupRegistration(ctx, "CIN-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Bind(ctx, "CIN-1", "acmelabs", "bengaluru", "key-1"))

	key, ok, err := s.LookupRegistration(ctx, "CIN-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "key-1", key)

	entries, err := s.CandidatesByBucket(ctx, "bengaluru")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "key-1", entries["acmelabs"].EntityKey)

	// Empty signals are skipped, not bound to empty keys.
	require.NoError(t, s.Bind(ctx, "", "", "", "key-2"))
	_, ok, err = s.LookupRegistration(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordStorePutGet(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	rec := discovery.CanonicalRecord{EntityKey: "key-1", Name: "Acme Labs"}
	require.NoError(t, s.Put(ctx, rec))

	got, ok, err := s.Get(ctx, "key-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec, got)
	assert.Len(t, s.Records(), 1)
}
