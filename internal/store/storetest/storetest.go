// Package storetest holds the behaviour every store.IdentityStore implementation must share.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/lounge-server/internal/store"
)

// Factory returns a fresh, empty store for a single subtest.
type Factory func(t *testing.T) store.IdentityStore

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, st store.IdentityStore)
	}{
		{"FirstIdentityIsOwner", testFirstIdentityIsOwner},
		{"ConcurrentCreateSingleOwner", testConcurrentCreateSingleOwner},
		{"CreateConflicts", testCreateConflicts},
		{"GetUnknown", testGetUnknown},
		{"RecordLogin", testRecordLogin},
		{"IncrementMessageCount", testIncrementMessageCount},
		{"BanAndMute", testBanAndMute},
		{"Badges", testBadges},
		{"DeleteBansName", testDeleteBansName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newStore(t)
			t.Cleanup(func() { _ = st.Close() })
			tt.fn(t, st)
		})
	}
}

var epoch = time.Date(2026, 1, 2, 15, 4, 0, 0, time.UTC)

func create(t *testing.T, st store.IdentityStore, name string) *store.Identity {
	t.Helper()
	ident, err := st.CreateIdentity(context.Background(), store.NewIdentity{
		Name:         name,
		Email:        name + "@example.com",
		PasswordHash: "hash-" + name,
		Address:      "10.0.0.1",
		CreatedAt:    epoch,
	})
	require.NoError(t, err)
	return ident
}

func testFirstIdentityIsOwner(t *testing.T, st store.IdentityStore) {
	ctx := context.Background()

	alice := create(t, st, "alice")
	require.Equal(t, []string{"owner", "dev"}, alice.Badges)

	bob := create(t, st, "bob")
	require.Equal(t, []string{"new"}, bob.Badges)

	got, err := st.GetIdentity(ctx, "alice")
	require.NoError(t, err)
	require.True(t, got.IsOwner())
	require.Equal(t, "alice@example.com", got.Email)
	require.Equal(t, "hash-alice", got.PasswordHash)
	require.Equal(t, []string{"10.0.0.1"}, got.Addresses)
	require.False(t, got.Banned)
	require.False(t, got.Muted)
	require.True(t, got.CreatedAt.Equal(epoch))
}

func testConcurrentCreateSingleOwner(t *testing.T, st store.IdentityStore) {
	const n = 8
	var wg sync.WaitGroup
	results := make([]*store.Identity, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("user%02d", i)
			results[i], errs[i] = st.CreateIdentity(context.Background(), store.NewIdentity{
				Name:         name,
				Email:        name + "@example.com",
				PasswordHash: "hash",
				CreatedAt:    epoch,
			})
		}(i)
	}
	wg.Wait()

	owners := 0
	for i := range n {
		require.NoError(t, errs[i])
		if results[i].IsOwner() {
			owners++
		}
	}
	require.Equal(t, 1, owners)
}

func testCreateConflicts(t *testing.T, st store.IdentityStore) {
	ctx := context.Background()
	create(t, st, "alice")

	_, err := st.CreateIdentity(ctx, store.NewIdentity{Name: "alice", Email: "other@example.com", CreatedAt: epoch})
	require.ErrorIs(t, err, store.ErrNameTaken)

	_, err = st.CreateIdentity(ctx, store.NewIdentity{Name: "alicia", Email: "ALICE@example.com", CreatedAt: epoch})
	require.ErrorIs(t, err, store.ErrEmailTaken)
}

func testGetUnknown(t *testing.T, st store.IdentityStore) {
	_, err := st.GetIdentity(context.Background(), "ghost")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = st.IncrementMessageCount(context.Background(), "ghost")
	require.ErrorIs(t, err, store.ErrNotFound)

	err = st.SetMuted(context.Background(), "ghost", true, "alice", epoch)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testRecordLogin(t *testing.T, st store.IdentityStore) {
	ctx := context.Background()
	create(t, st, "alice")

	later := epoch.Add(time.Hour)
	require.NoError(t, st.RecordLogin(ctx, "alice", "10.0.0.2", later))
	require.NoError(t, st.RecordLogin(ctx, "alice", "10.0.0.1", later))

	got, err := st.GetIdentity(ctx, "alice")
	require.NoError(t, err)
	require.True(t, got.LastLogin.Equal(later))
	require.ElementsMatch(t, []string{"10.0.0.1", "10.0.0.2"}, got.Addresses)
}

func testIncrementMessageCount(t *testing.T, st store.IdentityStore) {
	ctx := context.Background()
	create(t, st, "alice")

	for i := int64(1); i <= 3; i++ {
		n, err := st.IncrementMessageCount(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, i, n)
	}

	got, err := st.GetIdentity(ctx, "alice")
	require.NoError(t, err)
	require.EqualValues(t, 3, got.MessageCount)
}

func testBanAndMute(t *testing.T, st store.IdentityStore) {
	ctx := context.Background()
	create(t, st, "alice")
	create(t, st, "bob")

	require.NoError(t, st.SetMuted(ctx, "bob", true, "alice", epoch))
	require.NoError(t, st.SetBanned(ctx, "bob", true, "alice", epoch.Add(time.Minute)))

	got, err := st.GetIdentity(ctx, "bob")
	require.NoError(t, err)
	require.True(t, got.Muted)
	require.True(t, got.Banned)

	bans, err := st.ListBans(ctx)
	require.NoError(t, err)
	require.Len(t, bans, 1)
	require.Equal(t, "bob", bans[0].Name)
	require.Equal(t, "alice", bans[0].By)

	mutes, err := st.ListMutes(ctx)
	require.NoError(t, err)
	require.Len(t, mutes, 1)

	require.NoError(t, st.SetMuted(ctx, "bob", false, "alice", epoch))
	require.NoError(t, st.SetBanned(ctx, "bob", false, "alice", epoch))

	got, err = st.GetIdentity(ctx, "bob")
	require.NoError(t, err)
	require.False(t, got.Muted)
	require.False(t, got.Banned)

	bans, err = st.ListBans(ctx)
	require.NoError(t, err)
	require.Empty(t, bans)
}

func testBadges(t *testing.T, st store.IdentityStore) {
	ctx := context.Background()
	create(t, st, "alice")
	create(t, st, "bob")

	badges, err := st.AddBadge(ctx, "bob", "vip")
	require.NoError(t, err)
	require.Equal(t, []string{"new", "vip"}, badges)

	badges, err = st.AddBadge(ctx, "bob", "vip")
	require.NoError(t, err)
	require.Equal(t, []string{"new", "vip"}, badges)

	badges, err = st.RemoveBadge(ctx, "bob", "new")
	require.NoError(t, err)
	require.Equal(t, []string{"vip"}, badges)

	_, err = st.AddBadge(ctx, "bob", "owner")
	require.ErrorIs(t, err, store.ErrProtectedBadge)

	_, err = st.RemoveBadge(ctx, "alice", "owner")
	require.ErrorIs(t, err, store.ErrProtectedBadge)

	_, err = st.AddBadge(ctx, "ghost", "vip")
	require.ErrorIs(t, err, store.ErrNotFound)

	got, err := st.GetIdentity(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, []string{"owner", "dev"}, got.Badges)
}

func testDeleteBansName(t *testing.T, st store.IdentityStore) {
	ctx := context.Background()
	create(t, st, "alice")
	create(t, st, "bob")

	require.NoError(t, st.DeleteIdentity(ctx, "bob", "alice", epoch))

	_, err := st.GetIdentity(ctx, "bob")
	require.ErrorIs(t, err, store.ErrNotFound)

	bans, err := st.ListBans(ctx)
	require.NoError(t, err)
	require.Len(t, bans, 1)
	require.Equal(t, "bob", bans[0].Name)

	_, err = st.CreateIdentity(ctx, store.NewIdentity{Name: "bob", Email: "bob2@example.com", CreatedAt: epoch})
	require.ErrorIs(t, err, store.ErrBanned)

	require.ErrorIs(t, st.DeleteIdentity(ctx, "bob", "alice", epoch), store.ErrNotFound)
}
