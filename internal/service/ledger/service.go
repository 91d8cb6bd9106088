// Package ledger turns one-sided likes into exactly one mutual match per pair.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/oggyb/matchmaker/internal/app"
	"github.com/oggyb/matchmaker/internal/db"
	svcErr "github.com/oggyb/matchmaker/internal/errors"
	"github.com/oggyb/matchmaker/internal/logger"
	"github.com/oggyb/matchmaker/internal/repository"
	"github.com/oggyb/matchmaker/internal/service/discovery"
	"github.com/oggyb/matchmaker/internal/session"
)

// LikeResult is the authoritative state of the pair after a like. Clients use
// it to confirm or roll back whatever they rendered provisionally.
type LikeResult struct {
	Match  db.Match `json:"match"`
	Mutual bool     `json:"mutual"`
}

// Service is the only writer of match status.
type Service struct {
	appCtx    *app.AppContext
	matchRepo *repository.MatchRepository
	discovery *discovery.Service
}

func NewService(appCtx *app.AppContext, disc *discovery.Service) *Service {
	return &Service{
		appCtx:    appCtx,
		matchRepo: repository.NewMatchRepository(appCtx.DB),
		discovery: disc,
	}
}

// Like records that the viewer likes target.
//
// Behavior:
//   - Records the discovery first; already recorded counts as shown, not an error.
//   - Inserts a pending match. When the pair already has a row:
//     reverse pending → accepted (conditional update, one winner);
//     own pending or accepted → returned unchanged.
//   - The pair constraint conflict never reaches the caller on success. If the
//     conflicting row cannot be found the insert is retried once.
//
// Example:
//
//	res, err := svc.Like(ctx, sess, 42)
//	if res.Mutual { ... }
func (s *Service) Like(ctx context.Context, sess session.Session, targetID uint64) (LikeResult, error) {
	log := logger.FromContext(ctx, s.appCtx.Logger)
	log.Debug("Like called", "viewer", sess.UserID, "target", targetID)

	if err := s.record(ctx, sess, targetID); err != nil {
		return LikeResult{}, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		m := &db.Match{
			User1:     sess.UserID,
			User2:     targetID,
			Status:    db.MatchPending,
			CreatedAt: s.now(),
		}
		err := s.matchRepo.Insert(ctx, m)
		if err == nil {
			log.Info("like recorded", "match_id", m.ID, "from", sess.UserID, "to", targetID)
			return LikeResult{Match: *m}, nil
		}
		if !errors.Is(err, svcErr.ErrUniquenessConflict) {
			return LikeResult{}, err
		}

		res, found, err := s.reconcile(ctx, sess.UserID, targetID)
		if err != nil {
			return LikeResult{}, err
		}
		if found {
			return res, nil
		}
		log.Debug("pair row vanished after conflict, retrying insert", "viewer", sess.UserID, "target", targetID)
	}
	return LikeResult{}, svcErr.ErrUniquenessConflict
}

// reconcile resolves an insert that collided with an existing row for the pair.
// found is false only when no row exists any more.
func (s *Service) reconcile(ctx context.Context, viewerID, targetID uint64) (LikeResult, bool, error) {
	log := logger.FromContext(ctx, s.appCtx.Logger)

	existing, err := s.matchRepo.GetByPair(ctx, viewerID, targetID)
	if errors.Is(err, svcErr.ErrMatchNotFound) {
		return LikeResult{}, false, nil
	}
	if err != nil {
		return LikeResult{}, false, err
	}

	if existing.Accepted() || existing.User1 == viewerID {
		return LikeResult{Match: *existing, Mutual: existing.Accepted()}, true, nil
	}

	// reverse pending like: accept it
	changed, err := s.matchRepo.Accept(ctx, existing.ID, s.now())
	if err != nil {
		return LikeResult{}, false, err
	}
	if changed {
		log.Info("mutual match formed", "match_id", existing.ID, "user_1", existing.User1, "user_2", existing.User2)
	}

	// re-read: a concurrent reciprocal like may have accepted it first
	current, err := s.matchRepo.GetByID(ctx, existing.ID)
	if err != nil {
		return LikeResult{}, false, err
	}
	return LikeResult{Match: *current, Mutual: current.Accepted()}, true, nil
}

// Skip records the discovery only. Skipping the same person twice is fine.
func (s *Service) Skip(ctx context.Context, sess session.Session, targetID uint64) error {
	logger.FromContext(ctx, s.appCtx.Logger).Debug("Skip called", "viewer", sess.UserID, "target", targetID)
	return s.record(ctx, sess, targetID)
}

func (s *Service) record(ctx context.Context, sess session.Session, targetID uint64) error {
	err := s.discovery.RecordShown(ctx, sess, targetID)
	if errors.Is(err, svcErr.ErrDuplicateShown) {
		return nil
	}
	return err
}

// ListMutual returns the viewer's accepted matches, newest first.
func (s *Service) ListMutual(ctx context.Context, sess session.Session) ([]db.Match, error) {
	if !sess.Valid() {
		return nil, session.ErrNoSession
	}
	return s.matchRepo.ListAccepted(ctx, sess.UserID)
}

// ListLiked returns the viewer's likes still waiting for a reply.
func (s *Service) ListLiked(ctx context.Context, sess session.Session) ([]db.Match, error) {
	if !sess.Valid() {
		return nil, session.ErrNoSession
	}
	return s.matchRepo.ListPendingFrom(ctx, sess.UserID)
}

// Get returns a match the viewer takes part in, in either column.
func (s *Service) Get(ctx context.Context, sess session.Session, matchID uint64) (*db.Match, error) {
	if !sess.Valid() {
		return nil, session.ErrNoSession
	}
	m, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !m.Involves(sess.UserID) {
		return nil, svcErr.ErrNotParticipant
	}
	return m, nil
}

func (s *Service) now() time.Time {
	return s.appCtx.Clock.Now().UTC().Truncate(time.Millisecond)
}
