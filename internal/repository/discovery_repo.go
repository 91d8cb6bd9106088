package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/matchmaker/internal/db"
	svcErr "github.com/oggyb/matchmaker/internal/errors"
)

// DiscoveryRepository owns discovery_history and its per-day quota counter.
type DiscoveryRepository struct {
	db *gorm.DB
}

func NewDiscoveryRepository(database *gorm.DB) *DiscoveryRepository {
	return &DiscoveryRepository{db: database}
}

// Record appends "viewer was shown candidate on day" and claims one quota slot.
// It returns the slots used on day after the claim.
//
// Behavior:
//   - Pair already recorded on any day → svcErr.ErrDuplicateShown.
//   - used >= dailyCap for (viewer, day) → svcErr.ErrQuotaExceeded.
//   - The slot is claimed with a conditional UPDATE (used < cap), so two
//     concurrent calls can never both take the last slot.
//   - Record and slot commit or roll back together.
//
// Example:
//
//	repo.Record(ctx, 1, 2, "2026-10-15", 5)
func (r *DiscoveryRepository) Record(
	ctx context.Context,
	viewerID, candidateID uint64,
	day string,
	dailyCap int,
) (int, error) {
	var used int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&db.DiscoveryRecord{}).
			Where("user_id = ? AND discovered_user_id = ?", viewerID, candidateID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return svcErr.ErrDuplicateShown
		}

		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&db.DiscoveryQuota{UserID: viewerID, Day: day}).Error; err != nil {
			return err
		}

		claim := tx.Model(&db.DiscoveryQuota{}).
			Where("user_id = ? AND day = ? AND used < ?", viewerID, day, dailyCap).
			UpdateColumn("used", gorm.Expr("used + 1"))
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			return svcErr.ErrQuotaExceeded
		}

		if err := tx.Create(&db.DiscoveryRecord{
			UserID:           viewerID,
			DiscoveredUserID: candidateID,
			DiscoveredAt:     day,
		}).Error; err != nil {
			return err
		}

		var q db.DiscoveryQuota
		if err := tx.Where("user_id = ? AND day = ?", viewerID, day).First(&q).Error; err != nil {
			return err
		}
		used = q.Used
		return nil
	})

	switch {
	case err == nil:
		return used, nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		// lost a race with a concurrent Record for the same pair
		return 0, svcErr.ErrDuplicateShown
	case errors.Is(err, svcErr.ErrDuplicateShown), errors.Is(err, svcErr.ErrQuotaExceeded):
		return 0, err
	default:
		return 0, svcErr.Store(err)
	}
}

// UsedOnDay returns the quota slots the viewer has claimed on day. A day
// without a counter row has used none.
func (r *DiscoveryRepository) UsedOnDay(ctx context.Context, viewerID uint64, day string) (int, error) {
	var q db.DiscoveryQuota
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND day = ?", viewerID, day).
		First(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, svcErr.Store(err)
	}
	return q.Used, nil
}
