package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Harshitk-cp/mnemo/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const day = 24 * time.Hour

func newTestSweeper(ms *mockMemoryStore, clock domain.Clock) *DecaySweeper {
	return NewDecaySweeper(ms, clock, domain.DefaultRetentionPolicy(), zap.NewNop())
}

func TestDecaySweeper_Sweep(t *testing.T) {
	ms := newMockMemoryStore()
	now := testEpoch
	s := newTestSweeper(ms, newFixedClock(now))

	staleShort := seed(ms, "u1", domain.MemoryClassShort, "stale short", []string{"a"}, now.Add(-31*day))
	freshShort := seed(ms, "u1", domain.MemoryClassShort, "fresh short", []string{"a"}, now.Add(-29*day))
	boundary := seed(ms, "u1", domain.MemoryClassShort, "boundary", []string{"a"}, now.Add(-30*day))
	oldDeep := seed(ms, "u1", domain.MemoryClassDeep, "old deep", []string{"a"}, now.Add(-400*day))

	weakRel := seed(ms, "u2", domain.MemoryClassRelationship, "weak rel", []string{"b"}, now.Add(-46*day))
	ms.memories[weakRel.ID].ReferenceCount = 2
	strongRel := seed(ms, "u2", domain.MemoryClassRelationship, "strong rel", []string{"b"}, now.Add(-46*day))
	ms.memories[strongRel.ID].ReferenceCount = 3

	result, err := s.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Users)
	assert.Equal(t, 2, result.Deleted)
	assert.Zero(t, result.Failures)

	assert.True(t, ms.get(staleShort.ID).Deleted)
	assert.True(t, ms.get(weakRel.ID).Deleted)
	assert.False(t, ms.get(freshShort.ID).Deleted)
	assert.False(t, ms.get(boundary.ID).Deleted)
	assert.False(t, ms.get(oldDeep.ID).Deleted)
	assert.False(t, ms.get(strongRel.ID).Deleted)

	deletedAt := ms.get(staleShort.ID).DeletedAt
	require.NotNil(t, deletedAt)
	assert.True(t, deletedAt.Equal(now))
}

func TestDecaySweeper_Idempotent(t *testing.T) {
	ms := newMockMemoryStore()
	now := testEpoch
	s := newTestSweeper(ms, newFixedClock(now))
	seed(ms, "u1", domain.MemoryClassShort, "stale", []string{"a"}, now.Add(-40*day))
	seed(ms, "u1", domain.MemoryClassShort, "fresh", []string{"a"}, now)

	first, err := s.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Deleted)

	second, err := s.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, second.Deleted)
}

func TestDecaySweeper_EmptyStore(t *testing.T) {
	s := newTestSweeper(newMockMemoryStore(), newFixedClock(testEpoch))

	result, err := s.Sweep(context.Background(), testEpoch)
	require.NoError(t, err)
	assert.Zero(t, result.Users)
	assert.Zero(t, result.Deleted)
}

func TestDecaySweeper_PartialFailure(t *testing.T) {
	ms := newMockMemoryStore()
	now := testEpoch
	s := newTestSweeper(ms, newFixedClock(now))
	s.SetWorkers(1)

	seed(ms, "u1", domain.MemoryClassShort, "stale", []string{"a"}, now.Add(-40*day))
	seed(ms, "u2", domain.MemoryClassShort, "stale", []string{"a"}, now.Add(-40*day))
	ok := seed(ms, "u3", domain.MemoryClassShort, "stale", []string{"a"}, now.Add(-40*day))
	ms.failUsers["u2"] = true

	result, err := s.Sweep(context.Background(), now)
	assert.ErrorIs(t, err, domain.ErrSweepPartialFailure)
	assert.Equal(t, 1, result.Failures)
	assert.Equal(t, 2, result.Deleted)
	assert.True(t, ms.get(ok.ID).Deleted, "users after a failed one are still swept")
}

func TestDecaySweeper_ListUsersFails(t *testing.T) {
	ms := newMockMemoryStore()
	ms.err = errors.New("no route to host")
	s := newTestSweeper(ms, newFixedClock(testEpoch))

	result, err := s.Sweep(context.Background(), testEpoch)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	require.NotNil(t, result)
}

func TestDecaySweeper_Cancelled(t *testing.T) {
	ms := newMockMemoryStore()
	now := testEpoch
	s := newTestSweeper(ms, newFixedClock(now))
	stale := seed(ms, "u1", domain.MemoryClassShort, "stale", []string{"a"}, now.Add(-40*day))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := s.Sweep(ctx, now)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, result.Skipped)
	assert.False(t, ms.get(stale.ID).Deleted)
}

// cancellingStore cancels the sweep from inside one user's batch.
type cancellingStore struct {
	*mockMemoryStore
	cancelOn string
	cancel   context.CancelFunc
}

func (c *cancellingStore) GetByUserForDecay(ctx context.Context, userID string) ([]domain.Memory, error) {
	if userID == c.cancelOn {
		c.cancel()
		return nil, ctx.Err()
	}
	return c.mockMemoryStore.GetByUserForDecay(ctx, userID)
}

func TestDecaySweeper_CancelledMidSweep(t *testing.T) {
	ms := newMockMemoryStore()
	now := testEpoch
	const users = 40
	for i := 0; i < users; i++ {
		seed(ms, fmt.Sprintf("u%02d", i), domain.MemoryClassShort, "stale", []string{"a"}, now.Add(-40*day))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &cancellingStore{mockMemoryStore: ms, cancelOn: "u00", cancel: cancel}

	s := NewDecaySweeper(store, newFixedClock(now), domain.DefaultRetentionPolicy(), zap.NewNop())
	s.SetWorkers(2)

	result, err := s.Sweep(ctx, now)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrSweepPartialFailure)
	require.NotNil(t, result)
	assert.Equal(t, users, result.Users)
	assert.Zero(t, result.Failures, "interrupted users are skipped, not failed")
	assert.GreaterOrEqual(t, result.Skipped, 1)
	assert.Equal(t, users, result.Deleted+result.Skipped)
}

func TestDecaySweeper_Purge(t *testing.T) {
	ms := newMockMemoryStore()
	now := testEpoch
	s := newTestSweeper(ms, newFixedClock(now))
	s.SetPurgeAfter(7 * day)

	old := seed(ms, "u1", domain.MemoryClassShort, "old", []string{"a"}, now.Add(-90*day))
	deletedAt := now.Add(-10 * day)
	ms.memories[old.ID].Deleted = true
	ms.memories[old.ID].DeletedAt = &deletedAt
	recent := seed(ms, "u1", domain.MemoryClassShort, "recently expired", []string{"a"}, now.Add(-31*day))

	result, err := s.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Purged)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 1, ms.count())
	assert.True(t, ms.get(recent.ID).Deleted)
}

func TestDecaySweeper_RunOnceRecordsResult(t *testing.T) {
	ms := newMockMemoryStore()
	clock := newFixedClock(testEpoch)
	s := newTestSweeper(ms, clock)
	seed(ms, "u1", domain.MemoryClassShort, "stale", []string{"a"}, testEpoch.Add(-31*day))

	assert.Nil(t, s.LastResult())

	_, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	last := s.LastResult()
	require.NotNil(t, last)
	assert.Equal(t, 1, last.Deleted)
}

func TestDecaySweeper_ClockDrivesExpiry(t *testing.T) {
	ms := newMockMemoryStore()
	clock := newFixedClock(testEpoch)
	s := newTestSweeper(ms, clock)
	m := seed(ms, "u1", domain.MemoryClassShort, "note", []string{"a"}, testEpoch)

	_, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, ms.get(m.ID).Deleted)

	clock.Advance(30*day + time.Second)
	_, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, ms.get(m.ID).Deleted)
}

func TestDecaySweeper_StartRejectsBadSchedule(t *testing.T) {
	s := newTestSweeper(newMockMemoryStore(), newFixedClock(testEpoch))
	s.SetSchedule("every other tuesday")

	assert.Error(t, s.Start())
}

func TestDecaySweeper_StartStop(t *testing.T) {
	s := newTestSweeper(newMockMemoryStore(), newFixedClock(testEpoch))
	s.SetSchedule("@every 1h")

	require.NoError(t, s.Start())

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
