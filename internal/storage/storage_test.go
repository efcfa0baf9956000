package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ernie/teamswitch/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

var base = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func TestGetCooldownAbsent(t *testing.T) {
	s := newTestStore(t)
	c, err := s.GetCooldown(context.Background(), "76561198000000001")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestUpsertCooldownMergesFields(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := "76561198000000001"

	require.NoError(t, s.UpsertCooldown(ctx, id, CooldownPatch{
		PlayerName:   ptr("Ghost"),
		LastSwitchAt: ptr(base),
	}))
	require.NoError(t, s.UpsertCooldown(ctx, id, CooldownPatch{
		ScrambleLockdownExpiry: ptr(base.Add(20 * time.Minute)),
	}))

	c, err := s.GetCooldown(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "Ghost", c.DisplayName())
	require.NotNil(t, c.LastSwitchAt)
	assert.True(t, base.Equal(*c.LastSwitchAt))
	require.NotNil(t, c.ScrambleLockdownExpiry)
	assert.True(t, base.Add(20*time.Minute).Equal(*c.ScrambleLockdownExpiry))
}

func TestTimestampsKeepSubMillisecondPrecision(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	at := time.Date(2026, 3, 14, 12, 0, 0, 999_912_345, time.UTC)

	require.NoError(t, s.UpsertCooldown(ctx, "p1", CooldownPatch{LastSwitchAt: ptr(at)}))
	c, err := s.GetCooldown(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, c.LastSwitchAt)
	assert.True(t, at.Equal(*c.LastSwitchAt), "got %s", c.LastSwitchAt.Format(time.RFC3339Nano))

	active, err := s.CountActiveCooldowns(ctx, at, at.Add(-time.Microsecond))
	require.NoError(t, err)
	assert.Equal(t, 1, active)
}

func TestBulkUpsertOnlyTouchesListedFields(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpsertCooldown(ctx, "a", CooldownPatch{PlayerName: ptr("Alpha"), LastSwitchAt: ptr(base)}))

	expiry := base.Add(time.Hour)
	err := s.BulkUpsertCooldowns(ctx, []domain.PlayerCooldown{
		{PlayerID: "a", LastSwitchAt: ptr(base.Add(time.Minute)), ScrambleLockdownExpiry: &expiry},
		{PlayerID: "b", PlayerName: ptr("Bravo"), ScrambleLockdownExpiry: &expiry},
	}, FieldScrambleLockdownExpiry, FieldPlayerName)
	require.NoError(t, err)

	a, err := s.GetCooldown(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Alpha", a.DisplayName(), "nil name keeps the stored one")
	assert.True(t, base.Equal(*a.LastSwitchAt), "unlisted field untouched")
	assert.True(t, expiry.Equal(*a.ScrambleLockdownExpiry))

	b, err := s.GetCooldown(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "Bravo", b.DisplayName())
	assert.Nil(t, b.LastSwitchAt)
}

func TestBulkUpsertRejectsUnknownField(t *testing.T) {
	s := newTestStore(t)
	err := s.BulkUpsertCooldowns(context.Background(), []domain.PlayerCooldown{{PlayerID: "a"}}, Field("player_id"))
	assert.Error(t, err)
}

func TestDeleteCooldowns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.UpsertCooldown(ctx, id, CooldownPatch{LastSwitchAt: ptr(base)}))
	}

	found, err := s.DeleteCooldown(ctx, "a")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = s.DeleteCooldown(ctx, "a")
	require.NoError(t, err)
	assert.False(t, found)

	n, err := s.DeleteAllCooldowns(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	count, err := s.CountCooldowns(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDeleteExpiredCooldowns(t *testing.T) {
	ctx := context.Background()
	now := base
	cooldown := 5 * time.Minute

	tests := []struct {
		name    string
		patch   CooldownPatch
		removed bool
	}{
		{"cooldown over, no lockdown", CooldownPatch{LastSwitchAt: ptr(now.Add(-10 * time.Minute))}, true},
		{"cooldown over, lockdown running", CooldownPatch{
			LastSwitchAt:           ptr(now.Add(-10 * time.Minute)),
			ScrambleLockdownExpiry: ptr(now.Add(time.Hour)),
		}, false},
		{"cooldown running", CooldownPatch{LastSwitchAt: ptr(now.Add(-time.Minute))}, false},
		{"lockdown over, no switch", CooldownPatch{ScrambleLockdownExpiry: ptr(now.Add(-time.Second))}, true},
		{"name only", CooldownPatch{PlayerName: ptr("Idle")}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestStore(t)
			require.NoError(t, s.UpsertCooldown(ctx, "p", tc.patch))

			n, err := s.DeleteExpiredCooldowns(ctx, now, now.Add(-cooldown))
			require.NoError(t, err)

			c, err := s.GetCooldown(ctx, "p")
			require.NoError(t, err)
			if tc.removed {
				assert.Equal(t, int64(1), n)
				assert.Nil(t, c)
			} else {
				assert.Zero(t, n)
				assert.NotNil(t, c)
			}
		})
	}
}

func TestScanAndFindCooldowns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.UpsertCooldown(ctx, "1", CooldownPatch{PlayerName: ptr("SniperWolf"), LastSwitchAt: ptr(base)}))
	require.NoError(t, s.UpsertCooldown(ctx, "2", CooldownPatch{PlayerName: ptr("wolfpack"), ScrambleLockdownExpiry: ptr(base.Add(time.Hour))}))
	require.NoError(t, s.UpsertCooldown(ctx, "3", CooldownPatch{PlayerName: ptr("Medic")}))

	locked, err := s.ScanCooldowns(ctx, func(c domain.PlayerCooldown) bool { return c.LockedAt(base) })
	require.NoError(t, err)
	require.Len(t, locked, 1)
	assert.Equal(t, "2", locked[0].PlayerID)

	wolves, err := s.FindCooldownsByName(ctx, "WOLF")
	require.NoError(t, err)
	assert.Len(t, wolves, 2)

	active, err := s.ListActiveCooldowns(ctx, base, base.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "2", active[0].PlayerID, "locked players first")

	n, err := s.CountActiveCooldowns(ctx, base, base.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.CountActiveCooldowns(ctx, base, base)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "switch at the cutoff no longer counts")
}

func TestQueue(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first, err := s.Enqueue(ctx, "a", "Alpha")
	require.NoError(t, err)
	_, err = s.Enqueue(ctx, "b", "Bravo")
	require.NoError(t, err)
	_, err = s.Enqueue(ctx, "a", "Alpha")
	require.NoError(t, err)

	queued, err := s.ListQueued(ctx)
	require.NoError(t, err)
	require.Len(t, queued, 3, "duplicates are kept")
	assert.Equal(t, first.ID, queued[0].ID)
	assert.Equal(t, []string{"a", "b", "a"}, []string{queued[0].PlayerID, queued[1].PlayerID, queued[2].PlayerID})

	require.NoError(t, s.RemoveQueued(ctx, first.ID))
	queued, err = s.ListQueued(ctx)
	require.NoError(t, err)
	assert.Len(t, queued, 2)
}

func TestClosedStoreReportsUnavailable(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "closed.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.GetCooldown(context.Background(), "a")
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))

	err = s.UpsertCooldown(context.Background(), "a", CooldownPatch{})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
