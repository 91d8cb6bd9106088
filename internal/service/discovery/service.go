// Package discovery selects daily candidates and enforces the per-day
// discovery quota.
package discovery

import (
	"context"
	"errors"
	"iter"
	"sync/atomic"
	"time"

	"github.com/oggyb/matchmaker/internal/app"
	"github.com/oggyb/matchmaker/internal/db"
	svcErr "github.com/oggyb/matchmaker/internal/errors"
	"github.com/oggyb/matchmaker/internal/logger"
	"github.com/oggyb/matchmaker/internal/repository"
	"github.com/oggyb/matchmaker/internal/session"
)

const dayLayout = "2006-01-02"

// Candidates is a single-use sequence of profiles. The store is queried when
// iteration starts; ranging over it a second time yields nothing.
type Candidates = iter.Seq2[db.Profile, error]

// Service implements the Candidate Selector and the Discovery Quota Tracker.
type Service struct {
	appCtx        *app.AppContext
	profileRepo   *repository.ProfileRepository
	discoveryRepo *repository.DiscoveryRepository
	loc           *time.Location
}

// NewService creates a discovery service with dependencies from AppContext.
// Dependencies include:
//   - DB connection (via ProfileRepository and DiscoveryRepository)
//   - RedisCache for the used-quota counter
//   - Clock for the calendar day
func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:        appCtx,
		profileRepo:   repository.NewProfileRepository(appCtx.DB),
		discoveryRepo: repository.NewDiscoveryRepository(appCtx.DB),
		loc:           appCtx.Config.Location(),
	}
}

// SelectCandidates returns the next profiles the viewer may be shown.
//
// Behavior:
//   - Same intent only; excludes the viewer and everyone already shown on any day.
//   - At most min(limit, remaining quota); limit <= 0 uses the configured batch size.
//   - Remaining quota of zero → svcErr.ErrQuotaExceeded.
//   - No side effects. Showing a candidate is recorded by RecordShown.
//
// Example:
//
//	seq, err := svc.SelectCandidates(ctx, sess, 0)
//	for p, err := range seq { ... }
func (s *Service) SelectCandidates(ctx context.Context, sess session.Session, limit int) (Candidates, error) {
	log := logger.FromContext(ctx, s.appCtx.Logger)
	log.Debug("SelectCandidates called", "viewer", sess.UserID, "limit", limit)

	if !sess.Valid() {
		return nil, session.ErrNoSession
	}

	viewer, err := s.profileRepo.GetByID(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}

	remaining, err := s.RemainingQuota(ctx, sess)
	if err != nil {
		return nil, err
	}
	if remaining == 0 {
		return nil, svcErr.ErrQuotaExceeded
	}

	if limit <= 0 {
		limit = s.appCtx.Config.Discovery.BatchSize
	}
	limit = min(limit, remaining)

	var used atomic.Bool
	return func(yield func(db.Profile, error) bool) {
		if used.Swap(true) {
			return
		}
		profiles, err := s.profileRepo.ListCandidates(ctx, viewer.ID, viewer.Intent, limit)
		if err != nil {
			yield(db.Profile{}, err)
			return
		}
		log.Debug("SelectCandidates result", "viewer", viewer.ID, "count", len(profiles))
		for _, p := range profiles {
			if !yield(p, nil) {
				return
			}
		}
	}, nil
}

// RemainingQuota returns dailyCap minus the slots used today, floored at 0.
//
// Cache-first strategy:
//  1. Attempts to read the used count from Redis (discovery:used:userID:day).
//  2. On miss or Redis error, reads the day's quota counter from the DB.
//  3. Raises the cached count to that value until the end of the day. The
//     cache only ever moves up, so a fill racing RecordShown cannot undo it.
func (s *Service) RemainingQuota(ctx context.Context, sess session.Session) (int, error) {
	if !sess.Valid() {
		return 0, session.ErrNoSession
	}
	log := logger.FromContext(ctx, s.appCtx.Logger)

	now := s.appCtx.Clock.Now().In(s.loc)
	day := now.Format(dayLayout)
	key := s.appCtx.RedisCache.KeyForUsedQuota(sess.UserID, day)

	if n, ok, err := s.appCtx.RedisCache.GetInt(ctx, key); err != nil {
		log.Warn("quota cache read failed", "key", key, "err", err)
	} else if ok {
		return s.remaining(int(n)), nil
	}

	used, err := s.discoveryRepo.UsedOnDay(ctx, sess.UserID, day)
	if err != nil {
		return 0, err
	}
	if stored, err := s.appCtx.RedisCache.RaiseInt(ctx, key, int64(used), untilEndOfDay(now)); err != nil {
		log.Warn("quota cache write failed", "key", key, "err", err)
	} else {
		used = int(stored)
	}
	return s.remaining(used), nil
}

// RecordShown appends "viewer was shown candidate today" and claims a quota slot.
//
// Behavior:
//   - Own id → svcErr.ErrSelfDecision; unknown candidate → svcErr.ErrProfileNotFound.
//   - Pair already recorded on any day → svcErr.ErrDuplicateShown.
//   - Cap reached → svcErr.ErrQuotaExceeded.
func (s *Service) RecordShown(ctx context.Context, sess session.Session, candidateID uint64) error {
	log := logger.FromContext(ctx, s.appCtx.Logger)
	log.Debug("RecordShown called", "viewer", sess.UserID, "candidate", candidateID)

	if !sess.Valid() {
		return session.ErrNoSession
	}
	if candidateID == 0 {
		return svcErr.Invalid("candidate id is required")
	}
	if candidateID == sess.UserID {
		return svcErr.ErrSelfDecision
	}
	if _, err := s.profileRepo.GetByID(ctx, candidateID); err != nil {
		return err
	}

	now := s.appCtx.Clock.Now().In(s.loc)
	day := now.Format(dayLayout)
	used, err := s.discoveryRepo.Record(ctx, sess.UserID, candidateID, day, s.appCtx.Config.Discovery.DailyCap)
	if err != nil {
		if !errors.Is(err, svcErr.ErrDuplicateShown) && !errors.Is(err, svcErr.ErrQuotaExceeded) {
			log.Error("RecordShown failed", "viewer", sess.UserID, "candidate", candidateID, "err", err)
		}
		return err
	}

	key := s.appCtx.RedisCache.KeyForUsedQuota(sess.UserID, day)
	if _, err := s.appCtx.RedisCache.RaiseInt(ctx, key, int64(used), untilEndOfDay(now)); err != nil {
		log.Warn("quota cache update failed", "key", key, "err", err)
		if err := s.appCtx.RedisCache.Del(ctx, key); err != nil {
			log.Warn("quota cache invalidation failed", "key", key, "err", err)
		}
	}
	return nil
}

func (s *Service) remaining(used int) int {
	limit := s.appCtx.Config.Discovery.DailyCap
	return max(0, min(limit-used, limit))
}

// untilEndOfDay is the time left until the next midnight in now's location.
func untilEndOfDay(now time.Time) time.Duration {
	y, m, d := now.Date()
	next := time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
	if ttl := next.Sub(now); ttl > 0 {
		return ttl
	}
	return time.Second
}
