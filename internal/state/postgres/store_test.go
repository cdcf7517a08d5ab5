package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutlabs/scout/internal/discovery"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewWithQuerier(mock), mock
}

func TestLoadCheckpoints(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	since := time.Date(2026, 8, 19, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT source_id, since, cursor FROM checkpoints`).
		WillReturnRows(pgxmock.NewRows([]string{"source_id", "since", "cursor"}).
			AddRow("yc", since, "150").
			AddRow("mca", since, ""))

	out, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, discovery.Watermark{Since: since, Cursor: "150"}, out["yc"])
	assert.Equal(t, discovery.Watermark{Since: since}, out["mca"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveCheckpointUpserts(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	wm := discovery.Watermark{Since: time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), Cursor: "3"}
	mock.ExpectExec(`INSERT INTO checkpoints`).
		WithArgs("startupindia", wm.Since, wm.Cursor).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Save(context.Background(), "startupindia", wm))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupRegistrationMissIsNotAnError(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT entity_key FROM identity_registrations`).
		WithArgs("CIN-404").
		WillReturnError(pgx.ErrNoRows)

	_, ok, err := store.LookupRegistration(context.Background(), "CIN-404")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupRegistrationHit(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT entity_key FROM identity_registrations`).
		WithArgs("U72900KA2026PTC000111").
		WillReturnRows(pgxmock.NewRows([]string{"entity_key"}).AddRow("a1b2c3d4e5f60718"))

	key, ok, err := store.LookupRegistration(context.Background(), "U72900KA2026PTC000111")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a1b2c3d4e5f60718", key)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCandidatesByBucket(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT match_key, entity_key FROM identity_match_keys`).
		WithArgs("bengaluru").
		WillReturnRows(pgxmock.NewRows([]string{"match_key", "entity_key"}).
			AddRow("acmelabs", "key-1").
			AddRow("kitesystems", "key-2"))

	out, err := store.CandidatesByBucket(context.Background(), "bengaluru")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "key-1", out["acmelabs"].EntityKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBindSkipsEmptySignals(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	// Only the match-key signal is set, so only one upsert runs.
	mock.ExpectExec(`INSERT INTO identity_match_keys`).
		WithArgs("bengaluru", "acmelabs", "key-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Bind(context.Background(), "", "acmelabs", "bengaluru", "key-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBindBothSignals(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO identity_registrations`).
		WithArgs("CIN-1", "key-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO identity_match_keys`).
		WithArgs("bengaluru", "acmelabs", "key-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Bind(context.Background(), "CIN-1", "acmelabs", "bengaluru", "key-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRoundTrip(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	rec := discovery.CanonicalRecord{
		EntityKey: "a1b2c3d4e5f60718",
		Name:      "Acme Labs",
		Location:  discovery.Location{Country: "India", City: "Bengaluru"},
	}
	payload, err := json.Marshal(rec)
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO records`).
		WithArgs(rec.EntityKey, payload).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT payload FROM records`).
		WithArgs(rec.EntityKey).
		WillReturnRows(pgxmock.NewRows([]string{"payload"}).AddRow(payload))

	require.NoError(t, store.Put(context.Background(), rec))

	got, ok, err := store.Get(context.Background(), rec.EntityKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMissReturnsFalse(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT payload FROM records`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, ok, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryErrorsAreWrapped(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	boom := errors.New("connection refused")
	mock.ExpectQuery(`SELECT source_id, since, cursor FROM checkpoints`).
		WillReturnError(boom)

	_, err := store.Load(context.Background())
	require.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}
