package api

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/oggyb/matchmaker/internal/app"
	svcErr "github.com/oggyb/matchmaker/internal/errors"
	"github.com/oggyb/matchmaker/internal/logger"
	"github.com/oggyb/matchmaker/internal/presence"
	"github.com/oggyb/matchmaker/internal/service/conversation"
	"github.com/oggyb/matchmaker/internal/service/convsync"
	"github.com/oggyb/matchmaker/internal/service/discovery"
	"github.com/oggyb/matchmaker/internal/service/ledger"
	"github.com/oggyb/matchmaker/internal/session"
)

const (
	// subscribedHeader is sent once a SubscribeConversation listener is registered.
	subscribedHeader = "x-subscribed"
	// typingIdleHeader carries the idle timeout clients debounce typing with.
	typingIdleHeader = "x-typing-idle"
)

// Service implements the Matchmaker gRPC API on top of the domain services.
// Every method reads the caller from the session the auth interceptor put in
// the context and maps domain errors with svcErr.Map.
type Service struct {
	appCtx       *app.AppContext
	discovery    *discovery.Service
	ledger       *ledger.Service
	conversation *conversation.Service
	presence     *presence.Channel
	hub          *convsync.Hub
}

// NewService wires every domain service from AppContext. The hub is shared
// with the caller so it can be closed on shutdown.
func NewService(appCtx *app.AppContext, hub *convsync.Hub) *Service {
	disc := discovery.NewService(appCtx)
	return &Service{
		appCtx:       appCtx,
		discovery:    disc,
		ledger:       ledger.NewService(appCtx, disc),
		conversation: conversation.NewService(appCtx),
		presence:     presence.NewChannel(appCtx.RedisCache, appCtx.Logger.With("component", "presence"), appCtx.Clock),
		hub:          hub,
	}
}

func (s *Service) SelectCandidates(ctx context.Context, req *SelectCandidatesRequest) (*SelectCandidatesResponse, error) {
	sess, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	seq, err := s.discovery.SelectCandidates(ctx, sess, req.Limit)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	resp := &SelectCandidatesResponse{}
	for p, err := range seq {
		if err != nil {
			return nil, svcErr.Map(err)
		}
		resp.Candidates = append(resp.Candidates, p)
	}
	return resp, nil
}

func (s *Service) RemainingQuota(ctx context.Context, _ *Empty) (*RemainingQuotaResponse, error) {
	sess, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	n, err := s.discovery.RemainingQuota(ctx, sess)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &RemainingQuotaResponse{Remaining: n}, nil
}

func (s *Service) RecordShown(ctx context.Context, req *TargetRequest) (*Empty, error) {
	sess, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.discovery.RecordShown(ctx, sess, req.TargetUserID); err != nil {
		return nil, svcErr.Map(err)
	}
	return &Empty{}, nil
}

func (s *Service) Like(ctx context.Context, req *TargetRequest) (*LikeResponse, error) {
	sess, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.ledger.Like(ctx, sess, req.TargetUserID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &res, nil
}

func (s *Service) Skip(ctx context.Context, req *TargetRequest) (*Empty, error) {
	sess, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.Skip(ctx, sess, req.TargetUserID); err != nil {
		return nil, svcErr.Map(err)
	}
	return &Empty{}, nil
}

func (s *Service) ListMutual(ctx context.Context, _ *Empty) (*MatchesResponse, error) {
	sess, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	matches, err := s.ledger.ListMutual(ctx, sess)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &MatchesResponse{Matches: matches}, nil
}

func (s *Service) ListLiked(ctx context.Context, _ *Empty) (*MatchesResponse, error) {
	sess, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	matches, err := s.ledger.ListLiked(ctx, sess)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &MatchesResponse{Matches: matches}, nil
}

// Send is never retried server-side: a transport error after this point
// leaves the caller to decide whether to resend.
func (s *Service) Send(ctx context.Context, req *SendRequest) (*SendResponse, error) {
	sess, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	// the message is persisted or not; a client hang-up must not interrupt it
	msg, err := s.conversation.Send(context.WithoutCancel(ctx), sess, req.MatchID, req.Content)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &SendResponse{Message: conversation.ViewFor(msg, sess.UserID)}, nil
}

func (s *Service) ListMessages(ctx context.Context, req *ListMessagesRequest) (*ListMessagesResponse, error) {
	sess, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if req.Limit <= 0 && req.PaginationToken == nil {
		msgs, err := s.conversation.ListMessages(ctx, sess, req.MatchID)
		if err != nil {
			return nil, svcErr.Map(err)
		}
		return &ListMessagesResponse{Messages: msgs}, nil
	}
	msgs, next, err := s.conversation.ListMessagesPage(ctx, sess, req.MatchID, req.PaginationToken, req.Limit)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &ListMessagesResponse{Messages: msgs, NextPaginationToken: next}, nil
}

func (s *Service) MarkRead(ctx context.Context, req *MatchRequest) (*MarkReadResponse, error) {
	sess, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	n, err := s.conversation.MarkRead(ctx, sess, req.MatchID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &MarkReadResponse{Updated: n}, nil
}

func (s *Service) ListConversations(ctx context.Context, _ *Empty) (*ConversationsResponse, error) {
	sess, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	list, err := s.conversation.ListConversations(ctx, sess)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &ConversationsResponse{Conversations: list}, nil
}

func (s *Service) Starters(ctx context.Context, req *MatchRequest) (*StartersResponse, error) {
	sess, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	starters, err := s.conversation.Starters(ctx, sess, req.MatchID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &StartersResponse{Starters: starters}, nil
}

// SetTyping relays the caller's typing state. Only participants may publish;
// the relay itself never fails the call.
func (s *Service) SetTyping(ctx context.Context, req *SetTypingRequest) (*Empty, error) {
	sess, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.ledger.Get(ctx, sess, req.MatchID); err != nil {
		return nil, svcErr.Map(err)
	}
	s.presence.SetTyping(context.WithoutCancel(ctx), req.MatchID, sess.UserID, req.IsTyping)
	return &Empty{}, nil
}

// SubscribeConversation streams events of one match until the client cancels.
// A listener that falls behind is cut off with ResourceExhausted.
func (s *Service) SubscribeConversation(req *MatchRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()
	sess, err := caller(ctx)
	if err != nil {
		return err
	}

	sub, err := s.hub.Subscribe(ctx, sess, req.MatchID)
	if err != nil {
		return svcErr.Map(err)
	}
	defer sub.Close()

	header := metadata.Pairs(
		subscribedHeader, "1",
		typingIdleHeader, s.typingIdle().String(),
	)
	if err := stream.SendHeader(header); err != nil {
		return err
	}

	for ev := range sub.Events() {
		if err := stream.SendMsg(&ev); err != nil {
			logger.FromContext(ctx, s.appCtx.Logger).Debug("subscriber gone", "match_id", req.MatchID, "err", err)
			return err
		}
	}
	return svcErr.Map(sub.Err())
}

func (s *Service) typingIdle() time.Duration {
	if d := s.appCtx.Config.Presence.IdleTimeout; d > 0 {
		return d
	}
	return presence.DefaultIdleTimeout
}

func caller(ctx context.Context) (session.Session, error) {
	sess, err := session.FromContext(ctx)
	if err != nil {
		return session.Session{}, svcErr.Unauthenticated("missing session")
	}
	return sess, nil
}
