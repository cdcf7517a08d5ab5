package tracxn

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scoutlabs/scout/internal/discovery"
)

type passCaller struct{ calls int }

func (c *passCaller) Do(ctx context.Context, _ string, fn func(context.Context) error) error {
	c.calls++
	return fn(ctx)
}

func collect(items *[]discovery.RawEntity) discovery.EmitFunc {
	return func(raw discovery.RawEntity) error {
		*items = append(*items, raw)
		return nil
	}
}

func TestFetchWithoutTokenFailsBeforeAnyRequest(t *testing.T) {
	t.Parallel()
	caller := &passCaller{}
	adapter := New(Config{BaseURL: "https://tracxn.test"}, caller, zap.NewNop())

	var items []discovery.RawEntity
	next, err := adapter.Fetch(context.Background(), discovery.Watermark{}, collect(&items))
	require.ErrorIs(t, err, discovery.ErrAuthExpired)
	assert.Zero(t, caller.calls, "no token means no network traffic")
	assert.Empty(t, items)
	assert.True(t, next.Since.IsZero(), "an auth failure advances nothing")
}

func TestFetchDrainsFeedsWithBearerToken(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tracxn-secret", r.Header.Get("Authorization"))
		if r.URL.Path != "/emerging-startups" {
			w.Write([]byte(`{"data": []}`)) //nolint:errcheck
			return
		}
		fmt.Fprint(w, `{"data": [
			{"company": {
				"name": "Kite Systems",
				"domain": "kitesystems.in",
				"description": "Drone logistics",
				"stage": "seed",
				"sectors": ["Logistics", "Drones"],
				"location": {"city": "Jaipur", "country": "India"}
			}},
			{"company": {
				"name": "Elsewhere Inc",
				"location": {"city": "Berlin", "country": "Germany"}
			}}
		]}`)
	}))
	defer srv.Close()

	adapter := New(Config{BaseURL: srv.URL, Token: "tracxn-secret"}, &passCaller{}, zap.NewNop())

	var items []discovery.RawEntity
	next, err := adapter.Fetch(context.Background(), discovery.Watermark{}, collect(&items))
	require.NoError(t, err)

	require.Len(t, items, 1, "feed entries outside the configured country are dropped")
	assert.Equal(t, "Kite Systems", items[0].Name)
	assert.Equal(t, "kitesystems.in", items[0].Website)
	assert.Equal(t, "Logistics, Drones", items[0].Industry)
	assert.Equal(t, "seed", items[0].FundingStage)
	assert.Equal(t, "Jaipur", items[0].Location)

	assert.False(t, next.Since.IsZero())
	assert.Empty(t, next.Cursor)
}

func TestFetchFailureKeepsFeedCursor(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/emerging-startups" {
			w.Write([]byte(`{"data": []}`)) //nolint:errcheck
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	adapter := New(Config{BaseURL: srv.URL, Token: "tracxn-secret"}, &passCaller{}, zap.NewNop())

	var items []discovery.RawEntity
	next, err := adapter.Fetch(context.Background(), discovery.Watermark{}, collect(&items))
	require.ErrorIs(t, err, discovery.ErrSourceUnavailable)
	assert.Equal(t, "recent-funding", next.Cursor, "resume at the feed that failed")
}

func TestFetchResumesFromFeedCursor(t *testing.T) {
	t.Parallel()
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Write([]byte(`{"data": []}`)) //nolint:errcheck
	}))
	defer srv.Close()

	adapter := New(Config{BaseURL: srv.URL, Token: "tracxn-secret"}, &passCaller{}, zap.NewNop())

	var items []discovery.RawEntity
	_, err := adapter.Fetch(context.Background(), discovery.Watermark{Cursor: "recent-funding"}, collect(&items))
	require.NoError(t, err)
	assert.Equal(t, []string{"/recent-funding"}, paths, "the finished feed is not re-fetched")
}
