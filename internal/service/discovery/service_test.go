package discovery_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/matchmaker/internal/db"
	svcErr "github.com/oggyb/matchmaker/internal/errors"
	"github.com/oggyb/matchmaker/internal/service/discovery"
	"github.com/oggyb/matchmaker/internal/session"
	"github.com/oggyb/matchmaker/internal/testutil"
)

// setupService seeds one serious_dating viewer, n serious_dating candidates and
// a life_partner profile that must never be offered.
func setupService(t *testing.T, n int) (*testutil.Env, *discovery.Service, db.Profile, []db.Profile) {
	t.Helper()
	env := testutil.NewEnv(t)
	gdb := env.App.DB

	viewer := testutil.Profile(t, gdb, "Ada", db.IntentSeriousDating, "honesty")
	testutil.Profile(t, gdb, "Other intent", db.IntentLifePartner)
	var candidates []db.Profile
	for i := 0; i < n; i++ {
		candidates = append(candidates, testutil.Profile(t, gdb, "candidate", db.IntentSeriousDating))
	}
	return env, discovery.NewService(env.App), viewer, candidates
}

func collect(t *testing.T, seq discovery.Candidates) []db.Profile {
	t.Helper()
	var out []db.Profile
	for p, err := range seq {
		require.NoError(t, err)
		out = append(out, p)
	}
	return out
}

func TestSelectCandidates_FiltersAndOrder(t *testing.T) {
	ctx := context.Background()
	_, svc, viewer, candidates := setupService(t, 3)
	sess := session.New(viewer.ID)

	require.NoError(t, svc.RecordShown(ctx, sess, candidates[1].ID))

	seq, err := svc.SelectCandidates(ctx, sess, 0)
	require.NoError(t, err)
	got := collect(t, seq)

	require.Len(t, got, 2)
	assert.Equal(t, candidates[0].ID, got[0].ID)
	assert.Equal(t, candidates[2].ID, got[1].ID)
	for _, p := range got {
		assert.Equal(t, db.IntentSeriousDating, p.Intent)
		assert.NotEqual(t, viewer.ID, p.ID)
	}
}

func TestSelectCandidates_SingleUse(t *testing.T) {
	ctx := context.Background()
	_, svc, viewer, _ := setupService(t, 2)

	seq, err := svc.SelectCandidates(ctx, session.New(viewer.ID), 0)
	require.NoError(t, err)

	assert.Len(t, collect(t, seq), 2)
	assert.Empty(t, collect(t, seq))
}

func TestSelectCandidates_NoSideEffects(t *testing.T) {
	ctx := context.Background()
	_, svc, viewer, _ := setupService(t, 2)
	sess := session.New(viewer.ID)

	for range 2 {
		seq, err := svc.SelectCandidates(ctx, sess, 0)
		require.NoError(t, err)
		collect(t, seq)
	}

	remaining, err := svc.RemainingQuota(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, 5, remaining)
}

func TestSelectCandidates_BoundedByRemaining(t *testing.T) {
	ctx := context.Background()
	_, svc, viewer, candidates := setupService(t, 10)
	sess := session.New(viewer.ID)

	for _, c := range candidates[:3] {
		require.NoError(t, svc.RecordShown(ctx, sess, c.ID))
	}

	seq, err := svc.SelectCandidates(ctx, sess, 10)
	require.NoError(t, err)
	assert.Len(t, collect(t, seq), 2)

	seq, err = svc.SelectCandidates(ctx, sess, 1)
	require.NoError(t, err)
	assert.Len(t, collect(t, seq), 1)
}

func TestSelectCandidates_UnknownViewer(t *testing.T) {
	_, svc, _, _ := setupService(t, 1)

	_, err := svc.SelectCandidates(context.Background(), session.New(999), 0)
	assert.ErrorIs(t, err, svcErr.ErrProfileNotFound)

	_, err = svc.SelectCandidates(context.Background(), session.Session{}, 0)
	assert.ErrorIs(t, err, session.ErrNoSession)
}

// Four seen, a fifth selected and recorded, then a sixth selection is refused.
func TestQuotaScenario_FifthThenExceeded(t *testing.T) {
	ctx := context.Background()
	_, svc, viewer, candidates := setupService(t, 8)
	sess := session.New(viewer.ID)

	for _, c := range candidates[:4] {
		require.NoError(t, svc.RecordShown(ctx, sess, c.ID))
	}
	remaining, err := svc.RemainingQuota(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)

	seq, err := svc.SelectCandidates(ctx, sess, 0)
	require.NoError(t, err)
	got := collect(t, seq)
	require.Len(t, got, 1)
	require.NoError(t, svc.RecordShown(ctx, sess, got[0].ID))

	remaining, err = svc.RemainingQuota(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	_, err = svc.SelectCandidates(ctx, sess, 0)
	assert.ErrorIs(t, err, svcErr.ErrQuotaExceeded)

	err = svc.RecordShown(ctx, sess, candidates[7].ID)
	assert.ErrorIs(t, err, svcErr.ErrQuotaExceeded)
}

func TestQuota_CalendarDayBoundary(t *testing.T) {
	ctx := context.Background()
	env, svc, viewer, candidates := setupService(t, 7)
	sess := session.New(viewer.ID)

	env.Clock.Set(time.Date(2026, 10, 15, 23, 59, 0, 0, time.UTC))
	for _, c := range candidates[:5] {
		require.NoError(t, svc.RecordShown(ctx, sess, c.ID))
	}
	_, err := svc.SelectCandidates(ctx, sess, 0)
	require.ErrorIs(t, err, svcErr.ErrQuotaExceeded)

	// two minutes later is a new calendar day, not a rolling window
	env.Clock.Advance(2 * time.Minute)

	remaining, err := svc.RemainingQuota(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, 5, remaining)

	seq, err := svc.SelectCandidates(ctx, sess, 0)
	require.NoError(t, err)
	assert.Len(t, collect(t, seq), 2)
}

func TestRecordShown_Errors(t *testing.T) {
	ctx := context.Background()
	_, svc, viewer, candidates := setupService(t, 1)
	sess := session.New(viewer.ID)

	assert.ErrorIs(t, svc.RecordShown(ctx, sess, viewer.ID), svcErr.ErrSelfDecision)
	assert.ErrorIs(t, svc.RecordShown(ctx, sess, 0), svcErr.ErrInvalidArgument)
	assert.ErrorIs(t, svc.RecordShown(ctx, sess, 12345), svcErr.ErrProfileNotFound)

	require.NoError(t, svc.RecordShown(ctx, sess, candidates[0].ID))
	assert.ErrorIs(t, svc.RecordShown(ctx, sess, candidates[0].ID), svcErr.ErrDuplicateShown)

	remaining, err := svc.RemainingQuota(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, 4, remaining)
}

func TestRemainingQuota_CacheFollowsRecords(t *testing.T) {
	ctx := context.Background()
	env, svc, viewer, candidates := setupService(t, 2)
	sess := session.New(viewer.ID)

	remaining, err := svc.RemainingQuota(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, 5, remaining)

	key := env.App.RedisCache.KeyForUsedQuota(viewer.ID, "2026-10-15")
	cached, err := env.Redis.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "0", cached)
	assert.Equal(t, 14*time.Hour, env.Redis.TTL(key))

	require.NoError(t, svc.RecordShown(ctx, sess, candidates[0].ID))
	cached, err = env.Redis.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "1", cached)

	remaining, err = svc.RemainingQuota(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, 4, remaining)
}

func TestRemainingQuota_LateFillCannotRestoreSlot(t *testing.T) {
	ctx := context.Background()
	env, svc, viewer, candidates := setupService(t, 2)
	sess := session.New(viewer.ID)
	key := env.App.RedisCache.KeyForUsedQuota(viewer.ID, "2026-10-15")

	// a reader counted 0 used, then RecordShown committed and cached 1
	require.NoError(t, svc.RecordShown(ctx, sess, candidates[0].ID))

	// the reader's fill arrives last
	stored, err := env.App.RedisCache.RaiseInt(ctx, key, 0, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored)

	remaining, err := svc.RemainingQuota(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, 4, remaining)
}

func TestRemainingQuota_FillAfterEvictionUsesCounter(t *testing.T) {
	ctx := context.Background()
	env, svc, viewer, candidates := setupService(t, 2)
	sess := session.New(viewer.ID)

	for _, c := range candidates {
		require.NoError(t, svc.RecordShown(ctx, sess, c.ID))
	}
	env.Redis.FlushAll()

	remaining, err := svc.RemainingQuota(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)
}

func TestRemainingQuota_RedisDownFallsBackToDB(t *testing.T) {
	ctx := context.Background()
	env, svc, viewer, candidates := setupService(t, 1)
	sess := session.New(viewer.ID)

	require.NoError(t, svc.RecordShown(ctx, sess, candidates[0].ID))
	env.Redis.Close()

	remaining, err := svc.RemainingQuota(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, 4, remaining)
}

func TestRecordShown_ConcurrentNeverExceedsCap(t *testing.T) {
	ctx := context.Background()
	_, svc, viewer, candidates := setupService(t, 12)
	sess := session.New(viewer.ID)

	var wg sync.WaitGroup
	errs := make(chan error, len(candidates))
	for _, c := range candidates {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			errs <- svc.RecordShown(ctx, sess, id)
		}(c.ID)
	}
	wg.Wait()
	close(errs)

	var ok int
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, errors.Is(err, svcErr.ErrQuotaExceeded), "unexpected error: %v", err)
	}
	assert.Equal(t, 5, ok)

	remaining, err := svc.RemainingQuota(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}
