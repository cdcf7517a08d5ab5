package angellist

import (
	"context"
	"encoding/json"
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

func page(nodes string, hasNext bool, cursor string) string {
	next := "false"
	if hasNext {
		next = "true"
	}
	return `{"data": {"searchCompanies": {
		"edges": [` + nodes + `],
		"pageInfo": {"hasNextPage": ` + next + `, "endCursor": "` + cursor + `"}
	}}}`
}

const acmeNode = `{"node": {
	"name": "Acme Labs",
	"slug": "acme-labs",
	"websiteUrl": "https://acmelabs.in",
	"oneLiner": "Lending infrastructure for SMBs",
	"locations": ["Bengaluru, India"],
	"industries": ["Fintech", "Payments"],
	"fundingStage": "Seed",
	"employeeCount": 14
}}`

const kiteNode = `{"node": {
	"name": "Kite Systems",
	"slug": "kite-systems",
	"locations": ["Remote", "Jaipur, India"],
	"fundingStage": "SERIES_A"
}}`

func TestFetchPagesByCursor(t *testing.T) {
	t.Parallel()
	var cursors []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Query, "searchCompanies")
		assert.Equal(t, float64(2), req.Variables["first"])

		after, _ := req.Variables["after"].(string)
		cursors = append(cursors, after)
		if after == "" {
			w.Write([]byte(page(acmeNode, true, "cur-1"))) //nolint:errcheck
			return
		}
		w.Write([]byte(page(kiteNode, false, ""))) //nolint:errcheck
	}))
	defer srv.Close()

	at := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	adapter := New(Config{GraphQLURL: srv.URL, PageSize: 2, Clock: fixedClock{at: at}}, &passCaller{}, zap.NewNop())

	var items []discovery.RawEntity
	next, err := adapter.Fetch(context.Background(), discovery.Watermark{}, collect(&items))
	require.NoError(t, err)

	assert.Equal(t, []string{"", "cur-1"}, cursors, "the second request carries the page cursor")
	require.Len(t, items, 2)

	assert.Equal(t, "Acme Labs", items[0].Name)
	assert.Equal(t, "https://acmelabs.in", items[0].Website)
	assert.Equal(t, "Bengaluru, India", items[0].Location)
	assert.Equal(t, "Fintech, Payments", items[0].Industry)
	assert.Equal(t, "seed", items[0].FundingStage)
	assert.Equal(t, "14", items[0].Fields["employee_count"])

	assert.Equal(t, "https://wellfound.com/company/kite-systems", items[1].Website,
		"profile URL stands in when the node has no website")
	assert.Equal(t, "Jaipur, India", items[1].Location, "the matching location wins over a secondary office")

	assert.Equal(t, at, next.Since)
	assert.Empty(t, next.Cursor)
}

func TestFetchFailureKeepsPageCursor(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if _, resumed := req.Variables["after"]; resumed {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(page(acmeNode, true, "cur-1"))) //nolint:errcheck
	}))
	defer srv.Close()

	adapter := New(Config{GraphQLURL: srv.URL}, &passCaller{}, zap.NewNop())

	var items []discovery.RawEntity
	next, err := adapter.Fetch(context.Background(), discovery.Watermark{}, collect(&items))
	require.ErrorIs(t, err, discovery.ErrSourceUnavailable)
	assert.Equal(t, "cur-1", next.Cursor, "resume from the page that failed")
	assert.True(t, next.Since.IsZero())
	assert.Len(t, items, 1, "the drained page was already emitted")
}

func TestFetchMapsForbiddenToAuthExpired(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	adapter := New(Config{GraphQLURL: srv.URL}, &passCaller{}, zap.NewNop())

	_, err := adapter.Fetch(context.Background(), discovery.Watermark{}, collect(&[]discovery.RawEntity{}))
	require.ErrorIs(t, err, discovery.ErrAuthExpired)
}
