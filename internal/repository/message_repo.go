package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/matchmaker/internal/db"
	svcErr "github.com/oggyb/matchmaker/internal/errors"
	"github.com/oggyb/matchmaker/internal/utils/pagination"
)

// MessageRepository persists conversation messages. Canonical order is
// created_at ASC, id ASC everywhere.
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(database *gorm.DB) *MessageRepository {
	return &MessageRepository{db: database}
}

func (r *MessageRepository) Create(ctx context.Context, m *db.Message) error {
	return svcErr.Store(r.db.WithContext(ctx).Create(m).Error)
}

// List returns the whole conversation in canonical order.
func (r *MessageRepository) List(ctx context.Context, matchID uint64) ([]db.Message, error) {
	var messages []db.Message
	err := r.db.WithContext(ctx).
		Where("match_id = ?", matchID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, svcErr.Store(err)
	}
	return messages, nil
}

// ListPage returns up to limit messages after the cursor in canonical order.
//
// Behavior:
//   - Empty token → first page (oldest messages).
//   - Fetches limit+1 rows; the extra row only signals that a next page exists.
//
// Example:
//
//	repo.ListPage(ctx, 7, nil, 50)
func (r *MessageRepository) ListPage(
	ctx context.Context,
	matchID uint64,
	paginationToken *string,
	limit int,
) ([]db.Message, *string, error) {
	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, svcErr.Invalid("%v", err)
	}

	query := r.db.WithContext(ctx).
		Where("match_id = ?", matchID).
		Order("created_at ASC, id ASC").
		Limit(limit + 1)

	if !cursor.IsZero() {
		ts := time.UnixMilli(cursor.CreatedUnix).UTC()
		query = query.Where(
			"(created_at > ? OR (created_at = ? AND id > ?))",
			ts, ts, cursor.ID,
		)
	}

	var messages []db.Message
	if err := query.Find(&messages).Error; err != nil {
		return nil, nil, svcErr.Store(err)
	}

	var nextToken *string
	if len(messages) > limit {
		last := messages[limit-1]
		token, _ := pagination.Encode(pagination.Cursor{
			ID:          last.ID,
			CreatedUnix: last.CreatedAt.UnixMilli(),
		})
		nextToken = &token
		messages = messages[:limit]
	}

	return messages, nextToken, nil
}

// Last returns the newest message of a conversation, or nil when it is empty.
func (r *MessageRepository) Last(ctx context.Context, matchID uint64) (*db.Message, error) {
	var m db.Message
	err := r.db.WithContext(ctx).
		Where("match_id = ?", matchID).
		Order("created_at DESC, id DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, svcErr.Store(err)
	}
	return &m, nil
}

// CountUnread counts messages addressed to reader that have no read_at yet.
func (r *MessageRepository) CountUnread(ctx context.Context, matchID, readerID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Message{}).
		Where("match_id = ? AND sender_id <> ? AND read_at IS NULL", matchID, readerID).
		Count(&count).Error
	if err != nil {
		return 0, svcErr.Store(err)
	}
	return count, nil
}

// MarkRead stamps read_at on every unread message the reader received.
//
// Behavior:
//   - Only rows with sender_id <> reader and read_at IS NULL change, so a
//     second call is a no-op and an existing read_at is never moved.
//   - Returns the rows that changed, in canonical order, for the change feed.
func (r *MessageRepository) MarkRead(
	ctx context.Context,
	matchID, readerID uint64,
	at time.Time,
) ([]db.Message, error) {
	var changed []db.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uint64
		if err := tx.Model(&db.Message{}).
			Where("match_id = ? AND sender_id <> ? AND read_at IS NULL", matchID, readerID).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		if err := tx.Model(&db.Message{}).
			Where("id IN ? AND read_at IS NULL", ids).
			UpdateColumn("read_at", at).Error; err != nil {
			return err
		}

		return tx.Where("id IN ? AND read_at = ?", ids, at).
			Order("created_at ASC, id ASC").
			Find(&changed).Error
	})
	if err != nil {
		return nil, svcErr.Store(err)
	}
	return changed, nil
}

// getString safely dereferences a string pointer for pagination tokens.
func getString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
