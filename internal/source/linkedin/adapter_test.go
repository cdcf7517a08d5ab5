package linkedin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

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

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

const resultsPage = `{"elements": [
	{"company": {
		"name": "Acme Labs",
		"description": "Lending infrastructure for SMBs",
		"industries": ["Fintech"],
		"locations": ["Bengaluru, Karnataka, India"],
		"staffCount": 32,
		"websites": [{"url": "https://acmelabs.in"}]
	}},
	{"company": {
		"name": "Elsewhere GmbH",
		"locations": ["Berlin, Germany"]
	}},
	{"company": {
		"locations": ["Mumbai, India"]
	}}
]}`

func TestFetchWithoutCookiesFailsBeforeAnyRequest(t *testing.T) {
	t.Parallel()
	caller := &passCaller{}
	adapter := New(Config{BaseURL: "https://linkedin.test/search"}, caller, zap.NewNop())

	next, err := adapter.Fetch(context.Background(), discovery.Watermark{}, collect(&[]discovery.RawEntity{}))
	require.ErrorIs(t, err, discovery.ErrAuthExpired)
	assert.Zero(t, caller.calls, "no request leaves the adapter without cookies")
	assert.True(t, next.Since.IsZero())
}

func TestFetchSendsSessionAndFiltersToCountry(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/vnd.linkedin.normalized+json+2.1", r.Header.Get("Accept"))
		assert.Equal(t, "2.0.0", r.Header.Get("X-Restli-Protocol-Version"))
		assert.Equal(t, "ajax:123", r.Header.Get("Csrf-Token"))
		assert.Contains(t, r.Header.Get("Cookie"), "li_at=tok-abc")
		assert.Equal(t, "fintech india", r.URL.Query().Get("keywords"))
		w.Write([]byte(resultsPage)) //nolint:errcheck
	}))
	defer srv.Close()

	at := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	adapter := New(Config{
		BaseURL:    srv.URL,
		Keywords:   []string{"fintech india"},
		LiAt:       "tok-abc",
		JSessionID: "ajax:123",
		Clock:      fixedClock{at: at},
	}, &passCaller{}, zap.NewNop())

	var items []discovery.RawEntity
	next, err := adapter.Fetch(context.Background(), discovery.Watermark{}, collect(&items))
	require.NoError(t, err)

	require.Len(t, items, 1, "non-India companies and nameless results are dropped")
	assert.Equal(t, "Acme Labs", items[0].Name)
	assert.Equal(t, "https://acmelabs.in", items[0].Website)
	assert.Equal(t, "Bengaluru, Karnataka, India", items[0].Location)
	assert.Equal(t, "Fintech", items[0].Industry)
	assert.Equal(t, "32", items[0].Fields["staff_count"])

	assert.Equal(t, at, next.Since)
	assert.Empty(t, next.Cursor)
}

func TestFetchFailureKeepsKeywordCursor(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("keywords") == "saas india" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"elements": []}`)) //nolint:errcheck
	}))
	defer srv.Close()

	adapter := New(Config{
		BaseURL:    srv.URL,
		Keywords:   []string{"fintech india", "saas india"},
		LiAt:       "tok-abc",
		JSessionID: "ajax:123",
	}, &passCaller{}, zap.NewNop())

	next, err := adapter.Fetch(context.Background(), discovery.Watermark{}, collect(&[]discovery.RawEntity{}))
	require.ErrorIs(t, err, discovery.ErrSourceUnavailable)
	assert.Equal(t, "saas india", next.Cursor, "resume from the keyword that failed")
	assert.True(t, next.Since.IsZero())
}

func TestFetchResumesFromKeywordCursor(t *testing.T) {
	t.Parallel()
	var keywords []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keywords = append(keywords, r.URL.Query().Get("keywords"))
		w.Write([]byte(`{"elements": []}`)) //nolint:errcheck
	}))
	defer srv.Close()

	adapter := New(Config{
		BaseURL:    srv.URL,
		Keywords:   []string{"fintech india", "saas india"},
		LiAt:       "tok-abc",
		JSessionID: "ajax:123",
	}, &passCaller{}, zap.NewNop())

	_, err := adapter.Fetch(context.Background(), discovery.Watermark{Cursor: "saas india"}, collect(&[]discovery.RawEntity{}))
	require.NoError(t, err)
	assert.Equal(t, []string{"saas india"}, keywords, "finished keywords are not re-fetched")
}
