package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/oggyb/matchmaker/internal/db"
	svcErr "github.com/oggyb/matchmaker/internal/errors"
)

// ProfileRepository reads profiles. Profiles are owned by their subject and
// written elsewhere; this service never mutates them.
type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(database *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: database}
}

// GetByID returns svcErr.ErrProfileNotFound for unknown ids.
func (r *ProfileRepository) GetByID(ctx context.Context, id uint64) (*db.Profile, error) {
	var p db.Profile
	err := r.db.WithContext(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.ErrProfileNotFound
	}
	if err != nil {
		return nil, svcErr.Store(err)
	}
	return &p, nil
}

// GetMany returns the profiles that exist among ids, keyed by id.
func (r *ProfileRepository) GetMany(ctx context.Context, ids []uint64) (map[uint64]db.Profile, error) {
	out := make(map[uint64]db.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var profiles []db.Profile
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&profiles).Error; err != nil {
		return nil, svcErr.Store(err)
	}
	for _, p := range profiles {
		out[p.ID] = p
	}
	return out, nil
}

// ListCandidates returns up to limit profiles a viewer may be shown.
//
// Behavior:
//   - Same intent as the viewer only (hard filter).
//   - Excludes the viewer and everyone in the viewer's discovery history, any day.
//   - Ordered by id ASC so repeated calls over unchanged state agree.
//
// Example:
//
//	repo.ListCandidates(ctx, 42, db.IntentSeriousDating, 5)
func (r *ProfileRepository) ListCandidates(
	ctx context.Context,
	viewerID uint64,
	intent db.Intent,
	limit int,
) ([]db.Profile, error) {
	seen := r.db.
		Model(&db.DiscoveryRecord{}).
		Select("discovered_user_id").
		Where("user_id = ?", viewerID)

	var profiles []db.Profile
	err := r.db.WithContext(ctx).
		Where("intent = ?", intent).
		Where("id <> ?", viewerID).
		Where("id NOT IN (?)", seen).
		Order("id ASC").
		Limit(limit).
		Find(&profiles).Error
	if err != nil {
		return nil, svcErr.Store(err)
	}
	return profiles, nil
}
