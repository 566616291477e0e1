package persist_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-auth-client/persist"
	"github.com/stretchr/testify/require"
)

func exerciseSlot(t *testing.T, slot persist.Slot) {
	t.Helper()
	ctx := context.Background()

	payload, err := slot.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, payload)

	require.NoError(t, slot.Save(ctx, []byte(`{"uid":"u1"}`)))
	payload, err = slot.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, `{"uid":"u1"}`, string(payload))

	require.NoError(t, slot.Save(ctx, []byte(`{"uid":"u2"}`)))
	payload, err = slot.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, `{"uid":"u2"}`, string(payload))

	require.NoError(t, slot.Clear(ctx))
	payload, err = slot.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, payload)
}

func TestMemorySlot(t *testing.T) {
	exerciseSlot(t, persist.NewMemorySlot())
}

func TestMemorySlot_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := persist.NewMemorySlot().Load(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSQLiteSlot_InMemory(t *testing.T) {
	slot, err := persist.OpenSQLiteSlot(persist.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = slot.Close() })
	exerciseSlot(t, slot)
}

func TestSQLiteSlot_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")
	ctx := context.Background()

	slot, err := persist.OpenSQLiteSlot(path)
	require.NoError(t, err)
	require.NoError(t, slot.Save(ctx, []byte("opaque")))
	require.NoError(t, slot.Close())

	reopened, err := persist.OpenSQLiteSlot(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	payload, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "opaque", string(payload))
}

func TestOpenSQLiteSlot_RequiresPath(t *testing.T) {
	_, err := persist.OpenSQLiteSlot("  ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "path is required")
}
