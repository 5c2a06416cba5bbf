package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/sitewatch/internal/domain"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := New(context.Background(), path)
	require.NoError(t, err)
	return s, path
}

func TestSQLiteStore_UpsertAndReopen(t *testing.T) {
	ctx := context.Background()
	s, path := openTemp(t)

	missing, err := s.Get(ctx, "https://example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)

	at := time.Date(2025, 8, 18, 12, 0, 0, 123, time.UTC)
	st := domain.TargetState{
		TargetID:            "https://example.com",
		CanonicalStatus:     domain.StatusDown,
		LastFingerprint:     "abc",
		ConsecutiveFailures: 4,
		LastNotifiedStatus:  domain.StatusUp,
		LastTransitionAt:    at,
		LastCheckedAt:       at.Add(time.Minute),
		LastReason:          "timeout",
	}
	require.NoError(t, s.Put(ctx, st))

	st.LastNotifiedStatus = domain.StatusDown
	st.LastNotifiedAt = at.Add(2 * time.Minute)
	require.NoError(t, s.Put(ctx, st))
	require.NoError(t, s.Close())

	s2, err := New(ctx, path)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Get(ctx, st.TargetID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.StatusDown, got.LastNotifiedStatus)
	assert.Equal(t, uint(4), got.ConsecutiveFailures)
	assert.True(t, got.LastTransitionAt.Equal(at))
	assert.True(t, got.LastNotifiedAt.Equal(at.Add(2*time.Minute)))
	assert.True(t, got.LastRemediatedAt.IsZero())
	assert.Equal(t, "timeout", got.LastReason)

	all, err := s2.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLiteStore_ConcurrentDistinctKeys(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	defer s.Close()

	ids := []domain.TargetID{"a", "b", "c", "d", "e", "f"}
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id domain.TargetID) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				st := domain.NewTargetState(id)
				st.ConsecutiveFailures = uint(i)
				assert.NoError(t, s.Put(ctx, st))
			}
		}(id)
	}
	wg.Wait()

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, len(ids))
	for _, st := range all {
		assert.Equal(t, uint(9), st.ConsecutiveFailures)
	}
}
