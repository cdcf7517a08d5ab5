package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scoutlabs/scout/internal/discovery"
	"github.com/scoutlabs/scout/internal/resolve"
	"github.com/scoutlabs/scout/internal/state/memory"
)

func observation(source, name, regID string) discovery.CanonicalRecord {
	observed := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	return discovery.CanonicalRecord{
		Name:           name,
		RegistrationID: regID,
		Location:       discovery.Location{Country: "India", State: "Karnataka", City: "Bengaluru"},
		Provenance: []discovery.Observation{
			{SourceID: source, SourceURL: "https://" + source + ".test/" + name, ObservedAt: observed},
		},
		Confidence:    discovery.ConfidenceLow,
		FirstSeenAt:   observed,
		LastUpdatedAt: observed,
	}
}

func TestScratchStateLeavesDurableStateUntouched(t *testing.T) {
	t.Parallel()
	inner := memory.New()
	scratch := newScratchState(inner)
	r := resolve.New(resolve.Config{SimilarityCutoff: 0.90}, scratch, scratch, zap.NewNop())
	ctx := context.Background()

	created, err := r.Resolve(ctx, observation("mca", "Acme Labs Private Limited", "U72900KA2026PTC000111"), true)
	require.NoError(t, err)
	require.Equal(t, resolve.ActionCreated, created.Action)

	// Within-run dedup still works against the overlay.
	merged, err := r.Resolve(ctx, observation("startupindia", "Acme Labs Pvt Ltd", "U72900KA2026PTC000111"), true)
	require.NoError(t, err)
	assert.Equal(t, resolve.ActionMerged, merged.Action)
	assert.Equal(t, created.EntityKey, merged.EntityKey)

	// Nothing leaked into the store the overlay wraps.
	assert.Empty(t, inner.Records())
	_, found, err := inner.LookupRegistration(ctx, "U72900KA2026PTC000111")
	require.NoError(t, err)
	assert.False(t, found, "identity bindings must stay run-local")
}

func TestScratchStateReadsThroughToDurableState(t *testing.T) {
	t.Parallel()
	inner := memory.New()
	ctx := context.Background()

	// A real run has already created the entity.
	durable := resolve.New(resolve.Config{SimilarityCutoff: 0.90}, inner, inner, zap.NewNop())
	created, err := durable.Resolve(ctx, observation("mca", "Acme Labs Private Limited", "U72900KA2026PTC000111"), true)
	require.NoError(t, err)
	require.Equal(t, resolve.ActionCreated, created.Action)

	scratch := newScratchState(inner)
	r := resolve.New(resolve.Config{SimilarityCutoff: 0.90}, scratch, scratch, zap.NewNop())
	merged, err := r.Resolve(ctx, observation("inc42", "Acme Labs Pvt Ltd", "U72900KA2026PTC000111"), false)
	require.NoError(t, err)
	assert.Equal(t, resolve.ActionMerged, merged.Action, "the overlay sees durable identity bindings")
	assert.Equal(t, created.EntityKey, merged.EntityKey)

	// The durable record is exactly what the real run wrote.
	stored, ok, err := inner.Get(ctx, created.EntityKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, created.Record, stored)
	require.Len(t, inner.Records(), 1)
}

func TestRealRunAfterDryRunStillCreates(t *testing.T) {
	t.Parallel()
	inner := memory.New()
	ctx := context.Background()

	// Dry run first.
	scratch := newScratchState(inner)
	dry := resolve.New(resolve.Config{SimilarityCutoff: 0.90}, scratch, scratch, zap.NewNop())
	_, err := dry.Resolve(ctx, observation("yc", "Kite Systems", ""), false)
	require.NoError(t, err)
	require.Empty(t, inner.Records())

	// The real run must still see the entity as new and emit it.
	real := resolve.New(resolve.Config{SimilarityCutoff: 0.90}, inner, inner, zap.NewNop())
	res, err := real.Resolve(ctx, observation("yc", "Kite Systems", ""), false)
	require.NoError(t, err)
	assert.Equal(t, resolve.ActionCreated, res.Action)
	assert.Len(t, inner.Records(), 1)
}
