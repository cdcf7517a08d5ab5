package citydir

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scoutlabs/scout/internal/discovery"
)

type passCaller struct{}

func (passCaller) Do(ctx context.Context, _ string, fn func(context.Context) error) error {
	return fn(ctx)
}

func collect(items *[]discovery.RawEntity) discovery.EmitFunc {
	return func(raw discovery.RawEntity) error {
		*items = append(*items, raw)
		return nil
	}
}

const cardsHTML = `<html><body>
<div class="startup-card">
	<h3>Kite Systems</h3>
	<a href="/startups/kite-systems">Profile</a>
	<p>Drone logistics for tier-2 cities.</p>
</div>
<div class="startup-card">
	<h3>Kite Systems</h3>
	<a href="/startups/kite-systems">Profile</a>
</div>
<div class="company-card">
	<h4>Desert Works</h4>
	<a href="https://desertworks.in">Site</a>
	<div class="description">Craft marketplace.</div>
</div>
</body></html>`

const listHTML = `<html><body>
<ul class="startups">
	<li><a href="/acme">Acme Labs</a></li>
	<li><a href="/kochi-ferries">Kochi Ferries</a></li>
</ul>
</body></html>`

func TestFetchScrapesEveryCityDirectory(t *testing.T) {
	t.Parallel()
	jaipur := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, cardsHTML)
	}))
	defer jaipur.Close()
	kochi := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, listHTML)
	}))
	defer kochi.Close()

	adapter := New(Config{Cities: map[string][]string{
		"Jaipur": {jaipur.URL},
		"Kochi":  {kochi.URL},
	}}, passCaller{}, zap.NewNop())

	var items []discovery.RawEntity
	next, err := adapter.Fetch(context.Background(), discovery.Watermark{}, collect(&items))
	require.NoError(t, err)

	require.Len(t, items, 4, "repeated card names collapse to one item per page")

	assert.Equal(t, "Kite Systems", items[0].Name)
	assert.Equal(t, "Jaipur", items[0].Location)
	assert.Equal(t, jaipur.URL+"/startups/kite-systems", items[0].Website)
	assert.Equal(t, "Drone logistics for tier-2 cities.", items[0].Description)
	assert.Equal(t, jaipur.URL, items[0].Fields["directory"])

	assert.Equal(t, "Desert Works", items[1].Name)
	assert.Equal(t, "https://desertworks.in", items[1].Website)

	assert.Equal(t, "Acme Labs", items[2].Name)
	assert.Equal(t, "Kochi", items[2].Location, "bare heading lists still carry the city")
	assert.Equal(t, "Kochi Ferries", items[3].Name)

	assert.False(t, next.Since.IsZero())
	assert.Empty(t, next.Cursor)
}

func TestFetchResumesFromCityCursor(t *testing.T) {
	t.Parallel()
	var jaipurHits atomic.Int32
	jaipur := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jaipurHits.Add(1)
		fmt.Fprint(w, cardsHTML)
	}))
	defer jaipur.Close()
	kochi := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, listHTML)
	}))
	defer kochi.Close()

	adapter := New(Config{Cities: map[string][]string{
		"Jaipur": {jaipur.URL},
		"Kochi":  {kochi.URL},
	}}, passCaller{}, zap.NewNop())

	var items []discovery.RawEntity
	_, err := adapter.Fetch(context.Background(),
		discovery.Watermark{Cursor: "Kochi|" + kochi.URL}, collect(&items))
	require.NoError(t, err)

	assert.Zero(t, jaipurHits.Load(), "directories before the cursor are skipped")
	require.Len(t, items, 2)
	assert.Equal(t, "Acme Labs", items[0].Name)
}

func TestFetchFailureKeepsDirectoryCursor(t *testing.T) {
	t.Parallel()
	jaipur := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, cardsHTML)
	}))
	defer jaipur.Close()
	kochi := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer kochi.Close()

	adapter := New(Config{Cities: map[string][]string{
		"Jaipur": {jaipur.URL},
		"Kochi":  {kochi.URL},
	}}, passCaller{}, zap.NewNop())

	var items []discovery.RawEntity
	next, err := adapter.Fetch(context.Background(), discovery.Watermark{}, collect(&items))
	require.ErrorIs(t, err, discovery.ErrSourceUnavailable)

	assert.Equal(t, "Kochi|"+kochi.URL, next.Cursor, "resume at the directory that failed")
	assert.Len(t, items, 2, "the healthy directory's items still land")
}
