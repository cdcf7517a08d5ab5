package resolve

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scoutlabs/scout/internal/discovery"
	"github.com/scoutlabs/scout/internal/state/memory"
)

func newTestResolver(store *memory.Store) *Resolver {
	return New(Config{SimilarityCutoff: 0.90}, store, store, zap.NewNop())
}

func candidateFrom(source, name, city string, observed time.Time) discovery.CanonicalRecord {
	return discovery.CanonicalRecord{
		Name:     name,
		Location: discovery.Location{Country: "India", State: "Karnataka", City: city},
		Provenance: []discovery.Observation{
			{SourceID: source, SourceURL: "https://" + source + ".test/" + name, ObservedAt: observed},
		},
		Confidence:    discovery.ConfidenceLow,
		FirstSeenAt:   observed,
		LastUpdatedAt: observed,
	}
}

func TestResolveCreateThenMergeByRegistrationID(t *testing.T) {
	t.Parallel()
	store := memory.New()
	r := newTestResolver(store)
	ctx := context.Background()

	reg := candidateFrom("mca", "Acme Labs Private Limited", "", time.Now().UTC())
	reg.RegistrationID = "U72900KA2026PTC000111"

	created, err := r.Resolve(ctx, reg, true)
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, created.Action)
	require.NotEmpty(t, created.EntityKey)
	assert.Len(t, created.EntityKey, 16)
	assert.Equal(t, []string{"name"}, created.Record.AuthoritativeFields,
		"registry-observed fields are stamped on create")

	// A portal listing with a differently spelled name but the same CIN lands
	// on the same entity even from another location bucket.
	portal := candidateFrom("startupindia", "ACME LABS PVT LTD", "Bengaluru", time.Now().UTC())
	portal.RegistrationID = "U72900KA2026PTC000111"

	merged, err := r.Resolve(ctx, portal, true)
	require.NoError(t, err)
	assert.Equal(t, ActionMerged, merged.Action)
	assert.Equal(t, created.EntityKey, merged.EntityKey)
	assert.Len(t, merged.Record.Provenance, 2)
	assert.Len(t, store.Records(), 1)
}

func TestResolveFuzzyMatchWithinBucket(t *testing.T) {
	t.Parallel()
	store := memory.New()
	r := newTestResolver(store)
	ctx := context.Background()

	first, err := r.Resolve(ctx, candidateFrom("yc", "Flipstack Internet", "Bengaluru", time.Now().UTC()), false)
	require.NoError(t, err)
	require.Equal(t, ActionCreated, first.Action)

	// One trailing character differs; the match-key ratio clears the cutoff.
	second, err := r.Resolve(ctx, candidateFrom("inc42", "Flipstack Internets", "Bengaluru", time.Now().UTC()), false)
	require.NoError(t, err)
	assert.Equal(t, ActionMerged, second.Action)
	assert.Equal(t, first.EntityKey, second.EntityKey)
}

func TestResolveSameNameDifferentCityStaysSeparate(t *testing.T) {
	t.Parallel()
	store := memory.New()
	r := newTestResolver(store)
	ctx := context.Background()

	blr, err := r.Resolve(ctx, candidateFrom("inc42", "Acme Labs", "Bengaluru", time.Now().UTC()), false)
	require.NoError(t, err)
	jpr, err := r.Resolve(ctx, candidateFrom("citydir", "Acme Labs", "Jaipur", time.Now().UTC()), false)
	require.NoError(t, err)

	assert.NotEqual(t, blr.EntityKey, jpr.EntityKey)
	assert.Len(t, store.Records(), 2)
}

func TestResolveIsIdempotent(t *testing.T) {
	t.Parallel()
	store := memory.New()
	r := newTestResolver(store)
	ctx := context.Background()

	observed := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	cand := candidateFrom("startupindia", "Kite Systems", "Bengaluru", observed)

	first, err := r.Resolve(ctx, cand, false)
	require.NoError(t, err)
	require.Equal(t, ActionCreated, first.Action)

	// The next run fetches the identical listing again.
	rerun := candidateFrom("startupindia", "Kite Systems", "Bengaluru", observed)
	second, err := r.Resolve(ctx, rerun, false)
	require.NoError(t, err)
	assert.Equal(t, ActionUnchanged, second.Action)
	assert.Equal(t, first.Record, second.Record)
	assert.Len(t, store.Records(), 1)
}

func TestResolveOrderIndependent(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	build := func() []discovery.CanonicalRecord {
		a := candidateFrom("mca", "Acme Labs Private Limited", "Bengaluru", base)
		a.RegistrationID = "U72900KA2026PTC000111"
		b := candidateFrom("yc", "Acme Labs", "Bengaluru", base.Add(time.Hour))
		b.Website = "https://acmelabs.in"
		c := candidateFrom("inc42", "Acme Labs Pvt Ltd", "Bengaluru", base.Add(2*time.Hour))
		c.Description = "Acme builds settlement rails for exporters."
		return []discovery.CanonicalRecord{a, b, c}
	}
	authoritative := map[string]bool{"mca": true}

	perms := [][]int{
		{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0},
	}
	var want discovery.CanonicalRecord
	for i, perm := range perms {
		store := memory.New()
		r := newTestResolver(store)
		cands := build()
		for _, idx := range perm {
			cand := cands[idx]
			_, err := r.Resolve(context.Background(), cand, authoritative[cand.Provenance[0].SourceID])
			require.NoError(t, err)
		}
		records := store.Records()
		require.Len(t, records, 1, "permutation %v", perm)
		if i == 0 {
			want = records[0]
			continue
		}
		assert.Equal(t, want, records[0], "permutation %v", perm)
	}

	assert.Equal(t, "U72900KA2026PTC000111", want.RegistrationID)
	assert.Equal(t, "https://acmelabs.in", want.Website)
	assert.Len(t, want.Provenance, 3)
}
