package peerstore

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := New(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func TestUpsertAndLookup(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	err := store.Upsert(ctx, []Peer{
		{ID: 100, AccessHash: 111, Kind: KindChannel, Username: "newsch", Title: "News"},
		{ID: 200, AccessHash: 222, Kind: KindChannel, Title: "Private"},
	})
	require.NoError(t, err)

	got, err := store.ChannelByID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(111), got.AccessHash)
	assert.Equal(t, "newsch", got.Username)
	assert.Equal(t, "News", got.Title)
	assert.False(t, got.UpdatedAt.IsZero())

	got, err = store.ChannelByUsername(ctx, "newsch")
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.ID)
}

func TestUsernameLookupIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Upsert(ctx, []Peer{
		{ID: 100, AccessHash: 111, Kind: KindChannel, Username: "NewsCh", Title: "News"},
	}))

	got, err := store.ChannelByUsername(ctx, "newsch")
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.ID)
}

func TestUpsertRefreshesExistingPeer(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Upsert(ctx, []Peer{
		{ID: 100, AccessHash: 111, Kind: KindChannel, Username: "old", Title: "Old"},
	}))
	require.NoError(t, store.Upsert(ctx, []Peer{
		{ID: 100, AccessHash: 999, Kind: KindChannel, Username: "new", Title: "New"},
	}))

	got, err := store.ChannelByID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(999), got.AccessHash)
	assert.Equal(t, "new", got.Username)
	assert.Equal(t, "New", got.Title)
}

func TestLookupMisses(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.ChannelByID(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.ChannelByUsername(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNonChannelKindsAreNotReturned(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Upsert(ctx, []Peer{
		{ID: 100, AccessHash: 111, Kind: KindUser, Username: "alice"},
	}))

	_, err := store.ChannelByID(ctx, 100)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.ChannelByUsername(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertEmptyIsNoop(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	assert.NoError(t, store.Upsert(ctx, nil))
}
