package records_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jrsteele09/go-auth-client/docstore"
	"github.com/jrsteele09/go-auth-client/docstore/inmemory"
	"github.com/jrsteele09/go-auth-client/records"
	"github.com/stretchr/testify/require"
)

var errUnavailable = errors.New("store unavailable")

func newStore(t *testing.T, options ...records.Option) (*records.Store, *inmemory.Store) {
	t.Helper()
	docs := inmemory.New()
	store, err := records.NewStore(docs, options...)
	require.NoError(t, err)
	return store, docs
}

func requireKind(t *testing.T, err error, kind records.Kind) {
	t.Helper()
	var re *records.Error
	require.ErrorAs(t, err, &re)
	require.Equal(t, kind, re.Kind)
}

func TestNewStore_RequiresDocstore(t *testing.T) {
	_, err := records.NewStore(nil)
	require.Error(t, err)
}

func TestCreate_OnEmptyStore(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)

	require.NoError(t, store.Create(ctx, map[string]any{"name": "X"}))

	cached := store.Records()
	require.Len(t, cached, 1)
	require.Equal(t, "X", cached[0].Fields["name"])
	require.NotEmpty(t, cached[0].ID)

	fresh, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Equal(t, fresh, cached)
}

func TestCreate_NilFieldsStoresEmptyRecord(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)

	require.NoError(t, store.Create(ctx, nil))
	cached := store.Records()
	require.Len(t, cached, 1)
	require.Empty(t, cached[0].Fields)
}

func TestUpdate_ReplacesFieldsAndRefreshes(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)
	require.NoError(t, store.Create(ctx, map[string]any{"name": "X", "qty": 1}))
	id := store.Records()[0].ID

	require.NoError(t, store.Update(ctx, id, map[string]any{"qty": 2}))

	cached := store.Records()
	require.Equal(t, id, cached[0].ID)
	require.Equal(t, map[string]any{"qty": 2}, cached[0].Fields)

	require.NoError(t, store.Update(ctx, id, nil))
	require.Empty(t, store.Records()[0].Fields)
}

func TestDelete_TwiceIsNotFound(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)
	require.NoError(t, store.Create(ctx, map[string]any{"name": "X"}))
	id := store.Records()[0].ID

	require.NoError(t, store.Delete(ctx, id))
	require.Empty(t, store.Records())

	err := store.Delete(ctx, id)
	requireKind(t, err, records.KindNotFound)
	require.ErrorIs(t, err, records.ErrNotFound)
	require.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestEmptyIDIsNotFoundWithoutRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, docs := newStore(t)
	docs.FailNext(inmemory.OpUpdate, errUnavailable)
	docs.FailNext(inmemory.OpDelete, errUnavailable)

	require.ErrorIs(t, store.Update(ctx, "", map[string]any{"a": 1}), records.ErrNotFound)
	require.ErrorIs(t, store.Delete(ctx, ""), records.ErrNotFound)

	// The injected failures are still pending, so no call reached the store.
	requireKind(t, store.Delete(ctx, "some-id"), records.KindWriteFailure)
}

func TestListAll_FailureLeavesCacheUnchanged(t *testing.T) {
	ctx := context.Background()
	store, docs := newStore(t)
	require.NoError(t, store.Create(ctx, map[string]any{"name": "X"}))
	before := store.Records()

	docs.FailNext(inmemory.OpList, errUnavailable)
	_, err := store.ListAll(ctx)
	requireKind(t, err, records.KindFetchFailure)
	require.ErrorIs(t, err, records.ErrFetchFailure)
	require.ErrorIs(t, err, errUnavailable)

	require.Equal(t, before, store.Records())
}

func TestWriteFailure(t *testing.T) {
	ctx := context.Background()
	store, docs := newStore(t)

	docs.FailNext(inmemory.OpAdd, errUnavailable)
	err := store.Create(ctx, map[string]any{"name": "X"})
	requireKind(t, err, records.KindWriteFailure)
	require.ErrorIs(t, err, records.ErrWriteFailure)
	require.Empty(t, store.Records())
}

func TestRefreshFailureAfterWrite(t *testing.T) {
	ctx := context.Background()
	store, docs := newStore(t)
	require.NoError(t, store.Create(ctx, map[string]any{"name": "X"}))
	stale := store.Records()

	docs.FailNext(inmemory.OpList, errUnavailable)
	err := store.Create(ctx, map[string]any{"name": "Y"})
	requireKind(t, err, records.KindRefreshFailure)
	require.ErrorIs(t, err, records.ErrRefreshFailure)
	require.NotErrorIs(t, err, records.ErrFetchFailure)
	require.ErrorIs(t, err, errUnavailable)

	// The write landed; only the cache is stale.
	require.Equal(t, stale, store.Records())
	fresh, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, fresh, 2)
}

func TestRecords_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)
	require.NoError(t, store.Create(ctx, map[string]any{"name": "X"}))

	cached := store.Records()
	cached[0].Fields["name"] = "mutated"
	require.Equal(t, "X", store.Records()[0].Fields["name"])
}

func TestWithCollection(t *testing.T) {
	ctx := context.Background()
	store, docs := newStore(t, records.WithCollection("notes"))
	require.NoError(t, store.Create(ctx, map[string]any{"name": "X"}))

	inNotes, err := docs.ListCollection(ctx, "notes")
	require.NoError(t, err)
	require.Len(t, inNotes, 1)
	inDefault, err := docs.ListCollection(ctx, records.CollectionName)
	require.NoError(t, err)
	require.Empty(t, inDefault)
}
