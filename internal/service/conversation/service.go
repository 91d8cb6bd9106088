// Package conversation stores and reads the messages of mutual matches.
package conversation

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oggyb/matchmaker/internal/app"
	"github.com/oggyb/matchmaker/internal/db"
	svcErr "github.com/oggyb/matchmaker/internal/errors"
	"github.com/oggyb/matchmaker/internal/logger"
	"github.com/oggyb/matchmaker/internal/repository"
	"github.com/oggyb/matchmaker/internal/session"
)

// MaxContentLength bounds a single message, in bytes after trimming.
const MaxContentLength = 4000

const defaultPageSize = 50

// MessageView is a message as one participant sees it. ReadAt is set only on
// the viewer's own outgoing messages; the reader never sees a receipt.
type MessageView struct {
	ID        uint64     `json:"id"`
	MatchID   uint64     `json:"match_id"`
	SenderID  uint64     `json:"sender_id"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"created_at"`
	Incoming  bool       `json:"incoming"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

// ViewFor projects m for viewerID.
func ViewFor(m db.Message, viewerID uint64) MessageView {
	v := MessageView{
		ID:        m.ID,
		MatchID:   m.MatchID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		Incoming:  m.SenderID != viewerID,
	}
	if !v.Incoming {
		v.ReadAt = m.ReadAt
	}
	return v
}

// Summary is one row of the viewer's conversation list.
type Summary struct {
	Match        db.Match     `json:"match"`
	Other        db.Profile   `json:"other"`
	LastMessage  *MessageView `json:"last_message,omitempty"`
	Unread       int64        `json:"unread"`
	LastActivity time.Time    `json:"last_activity"`
}

type Service struct {
	appCtx      *app.AppContext
	matchRepo   *repository.MatchRepository
	messageRepo *repository.MessageRepository
	profileRepo *repository.ProfileRepository
}

func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:      appCtx,
		matchRepo:   repository.NewMatchRepository(appCtx.DB),
		messageRepo: repository.NewMessageRepository(appCtx.DB),
		profileRepo: repository.NewProfileRepository(appCtx.DB),
	}
}

// Send persists a message from the viewer and emits it on the change feed.
//
// Behavior:
//   - Content is trimmed; empty or over MaxContentLength → svcErr.ErrInvalidArgument.
//   - The match must be accepted at the time of every send → svcErr.ErrNotAMutualMatch.
//   - Never retried here. On error the caller decides whether to resend.
//
// Example:
//
//	msg, err := svc.Send(ctx, sess, 7, "hi")
func (s *Service) Send(ctx context.Context, sess session.Session, matchID uint64, content string) (db.Message, error) {
	log := logger.FromContext(ctx, s.appCtx.Logger)
	log.Debug("Send called", "sender", sess.UserID, "match_id", matchID)

	content = strings.TrimSpace(content)
	if content == "" {
		return db.Message{}, svcErr.Invalid("content must not be empty")
	}
	if len(content) > MaxContentLength {
		return db.Message{}, svcErr.Invalid("content exceeds %d bytes", MaxContentLength)
	}

	m, err := s.participantMatch(ctx, sess, matchID)
	if err != nil {
		return db.Message{}, err
	}
	if !m.Accepted() {
		return db.Message{}, svcErr.ErrNotAMutualMatch
	}

	msg := db.Message{
		MatchID:   matchID,
		SenderID:  sess.UserID,
		Content:   content,
		CreatedAt: s.now(),
	}
	if err := s.messageRepo.Create(ctx, &msg); err != nil {
		log.Error("Send failed", "match_id", matchID, "err", err)
		return db.Message{}, err
	}

	s.appCtx.Feed.MessageInserted(ctx, msg)
	return msg, nil
}

// ListMessages returns the whole conversation in canonical order.
func (s *Service) ListMessages(ctx context.Context, sess session.Session, matchID uint64) ([]MessageView, error) {
	if _, err := s.participantMatch(ctx, sess, matchID); err != nil {
		return nil, err
	}
	messages, err := s.messageRepo.List(ctx, matchID)
	if err != nil {
		return nil, err
	}
	return views(messages, sess.UserID), nil
}

// ListMessagesPage is ListMessages with cursor pagination, oldest first.
// limit <= 0 uses a page of 50.
func (s *Service) ListMessagesPage(
	ctx context.Context,
	sess session.Session,
	matchID uint64,
	paginationToken *string,
	limit int,
) ([]MessageView, *string, error) {
	if _, err := s.participantMatch(ctx, sess, matchID); err != nil {
		return nil, nil, err
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	messages, next, err := s.messageRepo.ListPage(ctx, matchID, paginationToken, limit)
	if err != nil {
		return nil, nil, err
	}
	return views(messages, sess.UserID), next, nil
}

// MarkRead stamps every unread message the viewer received in the match and
// returns how many changed. A second call changes nothing.
func (s *Service) MarkRead(ctx context.Context, sess session.Session, matchID uint64) (int, error) {
	log := logger.FromContext(ctx, s.appCtx.Logger)

	if _, err := s.participantMatch(ctx, sess, matchID); err != nil {
		return 0, err
	}
	changed, err := s.messageRepo.MarkRead(ctx, matchID, sess.UserID, s.now())
	if err != nil {
		log.Error("MarkRead failed", "match_id", matchID, "err", err)
		return 0, err
	}
	for _, m := range changed {
		s.appCtx.Feed.MessageUpdated(ctx, m)
	}
	log.Debug("MarkRead done", "reader", sess.UserID, "match_id", matchID, "changed", len(changed))
	return len(changed), nil
}

// ListConversations returns the viewer's mutual matches with the other
// profile, the last message and the unread count, most recent activity first.
func (s *Service) ListConversations(ctx context.Context, sess session.Session) ([]Summary, error) {
	if !sess.Valid() {
		return nil, session.ErrNoSession
	}
	matches, err := s.matchRepo.ListAccepted(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}

	ids := make([]uint64, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.Other(sess.UserID))
	}
	profiles, err := s.profileRepo.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(matches))
	for _, m := range matches {
		sum := Summary{
			Match:        m,
			Other:        profiles[m.Other(sess.UserID)],
			LastActivity: m.CreatedAt,
		}
		if m.AcceptedAt != nil {
			sum.LastActivity = *m.AcceptedAt
		}

		last, err := s.messageRepo.Last(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		if last != nil {
			v := ViewFor(*last, sess.UserID)
			sum.LastMessage = &v
			sum.LastActivity = last.CreatedAt
		}

		if sum.Unread, err = s.messageRepo.CountUnread(ctx, m.ID, sess.UserID); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}

	slices.SortStableFunc(out, func(a, b Summary) int {
		if c := b.LastActivity.Compare(a.LastActivity); c != 0 {
			return c
		}
		return cmp.Compare(b.Match.ID, a.Match.ID)
	})
	return out, nil
}

// Starters suggests openers built from the other participant's profile.
func (s *Service) Starters(ctx context.Context, sess session.Session, matchID uint64) ([]string, error) {
	m, err := s.participantMatch(ctx, sess, matchID)
	if err != nil {
		return nil, err
	}
	other, err := s.profileRepo.GetByID(ctx, m.Other(sess.UserID))
	if err != nil {
		return nil, err
	}
	return starters(*other), nil
}

func starters(p db.Profile) []string {
	if len(p.Values) == 0 {
		return []string{"Tell me something real about your day."}
	}
	return []string{
		fmt.Sprintf("I saw you value %s. How does that show up in your life?", p.Values[0]),
		fmt.Sprintf("Your intent is %s. What's been your biggest learning in dating so far?",
			strings.ReplaceAll(string(p.Intent), "_", " ")),
		"What's one thing that always makes you feel like you can trust someone?",
	}
}

// participantMatch loads the match and checks that the viewer is in it.
func (s *Service) participantMatch(ctx context.Context, sess session.Session, matchID uint64) (*db.Match, error) {
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

// now is the store timestamp: UTC, millisecond precision.
func (s *Service) now() time.Time {
	return s.appCtx.Clock.Now().UTC().Truncate(time.Millisecond)
}

func views(messages []db.Message, viewerID uint64) []MessageView {
	out := make([]MessageView, 0, len(messages))
	for _, m := range messages {
		out = append(out, ViewFor(m, viewerID))
	}
	return out
}
