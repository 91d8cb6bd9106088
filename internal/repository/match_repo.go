package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/matchmaker/internal/db"
	svcErr "github.com/oggyb/matchmaker/internal/errors"
)

// MatchRepository provides data access methods for the Match model.
// Only the match ledger mutates a match's status.
type MatchRepository struct {
	db *gorm.DB
}

// NewMatchRepository creates a new repository bound to the given DB connection.
func NewMatchRepository(database *gorm.DB) *MatchRepository {
	return &MatchRepository{db: database}
}

// Insert creates a pending match. PairKey is filled in from the participants.
//
// Behavior:
//   - The unique index on pair_key rejects a second live row for {a, b};
//     that case returns svcErr.ErrUniquenessConflict for the ledger to reconcile.
//
// Example:
//
//	repo.Insert(ctx, &db.Match{User1: 1, User2: 2, Status: db.MatchPending})
func (r *MatchRepository) Insert(ctx context.Context, m *db.Match) error {
	m.PairKey = db.PairKey(m.User1, m.User2)
	err := r.db.WithContext(ctx).Create(m).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return svcErr.ErrUniquenessConflict
	}
	return svcErr.Store(err)
}

// GetByPair returns the match for the unordered pair {a, b}, or
// svcErr.ErrMatchNotFound.
func (r *MatchRepository) GetByPair(ctx context.Context, a, b uint64) (*db.Match, error) {
	var m db.Match
	err := r.db.WithContext(ctx).Where("pair_key = ?", db.PairKey(a, b)).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.ErrMatchNotFound
	}
	if err != nil {
		return nil, svcErr.Store(err)
	}
	return &m, nil
}

// GetByID returns svcErr.ErrMatchNotFound for unknown ids.
func (r *MatchRepository) GetByID(ctx context.Context, id uint64) (*db.Match, error) {
	var m db.Match
	err := r.db.WithContext(ctx).First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.ErrMatchNotFound
	}
	if err != nil {
		return nil, svcErr.Store(err)
	}
	return &m, nil
}

// Accept moves a pending match to accepted.
//
// Behavior:
//   - Conditional on status = pending; the row transitions at most once.
//   - Returns false when the row was not pending (already accepted by a
//     concurrent caller); the caller re-reads.
func (r *MatchRepository) Accept(ctx context.Context, id uint64, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Match{}).
		Where("id = ? AND status = ?", id, db.MatchPending).
		Updates(map[string]any{"status": db.MatchAccepted, "accepted_at": at})
	if res.Error != nil {
		return false, svcErr.Store(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ListAccepted returns the user's mutual matches, checking both columns.
// Ordered by accepted_at DESC, id DESC.
func (r *MatchRepository) ListAccepted(ctx context.Context, userID uint64) ([]db.Match, error) {
	var matches []db.Match
	err := r.db.WithContext(ctx).
		Where("(user_1 = ? OR user_2 = ?) AND status = ?", userID, userID, db.MatchAccepted).
		Order("accepted_at DESC, id DESC").
		Find(&matches).Error
	if err != nil {
		return nil, svcErr.Store(err)
	}
	return matches, nil
}

// ListPendingFrom returns likes the user sent that are not yet reciprocated.
func (r *MatchRepository) ListPendingFrom(ctx context.Context, userID uint64) ([]db.Match, error) {
	var matches []db.Match
	err := r.db.WithContext(ctx).
		Where("user_1 = ? AND status = ?", userID, db.MatchPending).
		Order("created_at DESC, id DESC").
		Find(&matches).Error
	if err != nil {
		return nil, svcErr.Store(err)
	}
	return matches, nil
}
