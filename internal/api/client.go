package api

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/oggyb/matchmaker/internal/clock"
	"github.com/oggyb/matchmaker/internal/presence"
)

// Client is a typed client of matchmaker.v1.Matchmaker.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// WithToken attaches the caller's bearer token to outgoing calls.
func WithToken(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, authHeader, "Bearer "+token)
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.cc.Invoke(ctx, fullMethod(method), in, out, grpc.CallContentSubtype(CodecName))
}

func (c *Client) SelectCandidates(ctx context.Context, limit int) (*SelectCandidatesResponse, error) {
	out := new(SelectCandidatesResponse)
	return out, c.invoke(ctx, "SelectCandidates", &SelectCandidatesRequest{Limit: limit}, out)
}

func (c *Client) RemainingQuota(ctx context.Context) (int, error) {
	out := new(RemainingQuotaResponse)
	err := c.invoke(ctx, "RemainingQuota", &Empty{}, out)
	return out.Remaining, err
}

func (c *Client) RecordShown(ctx context.Context, targetID uint64) error {
	return c.invoke(ctx, "RecordShown", &TargetRequest{TargetUserID: targetID}, &Empty{})
}

func (c *Client) Like(ctx context.Context, targetID uint64) (*LikeResponse, error) {
	out := new(LikeResponse)
	return out, c.invoke(ctx, "Like", &TargetRequest{TargetUserID: targetID}, out)
}

func (c *Client) Skip(ctx context.Context, targetID uint64) error {
	return c.invoke(ctx, "Skip", &TargetRequest{TargetUserID: targetID}, &Empty{})
}

func (c *Client) ListMutual(ctx context.Context) (*MatchesResponse, error) {
	out := new(MatchesResponse)
	return out, c.invoke(ctx, "ListMutual", &Empty{}, out)
}

func (c *Client) ListLiked(ctx context.Context) (*MatchesResponse, error) {
	out := new(MatchesResponse)
	return out, c.invoke(ctx, "ListLiked", &Empty{}, out)
}

func (c *Client) Send(ctx context.Context, matchID uint64, content string) (*SendResponse, error) {
	out := new(SendResponse)
	return out, c.invoke(ctx, "Send", &SendRequest{MatchID: matchID, Content: content}, out)
}

func (c *Client) ListMessages(ctx context.Context, req *ListMessagesRequest) (*ListMessagesResponse, error) {
	out := new(ListMessagesResponse)
	return out, c.invoke(ctx, "ListMessages", req, out)
}

func (c *Client) MarkRead(ctx context.Context, matchID uint64) (int, error) {
	out := new(MarkReadResponse)
	err := c.invoke(ctx, "MarkRead", &MatchRequest{MatchID: matchID}, out)
	return out.Updated, err
}

func (c *Client) ListConversations(ctx context.Context) (*ConversationsResponse, error) {
	out := new(ConversationsResponse)
	return out, c.invoke(ctx, "ListConversations", &Empty{}, out)
}

func (c *Client) Starters(ctx context.Context, matchID uint64) ([]string, error) {
	out := new(StartersResponse)
	err := c.invoke(ctx, "Starters", &MatchRequest{MatchID: matchID}, out)
	return out.Starters, err
}

func (c *Client) SetTyping(ctx context.Context, matchID uint64, isTyping bool) error {
	return c.invoke(ctx, "SetTyping", &SetTypingRequest{MatchID: matchID, IsTyping: isTyping}, &Empty{})
}

// TypingIndicator turns keystrokes in one conversation into SetTyping calls:
// typing on the first keystroke, not typing after idle without one, on Sent
// or on Close. Pass EventStream.TypingIdle to follow the server's policy;
// idle <= 0 means presence.DefaultIdleTimeout. Failed calls are dropped.
func (c *Client) TypingIndicator(ctx context.Context, matchID uint64, idle time.Duration) *presence.Indicator {
	return presence.NewIndicator(clock.Real(), idle, func(isTyping bool) {
		_ = c.SetTyping(ctx, matchID, isTyping)
	})
}

// EventStream receives conversation events. Cancel the context passed to
// SubscribeConversation to unsubscribe.
type EventStream struct {
	stream     grpc.ClientStream
	typingIdle time.Duration
}

// TypingIdle is the server's typing idle timeout, or 0 if it sent none.
func (s *EventStream) TypingIdle() time.Duration { return s.typingIdle }

func (s *EventStream) Recv() (*Event, error) {
	ev := new(Event)
	if err := s.stream.RecvMsg(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// SubscribeConversation returns once the server has registered the listener,
// so events caused after it returns are delivered.
func (c *Client) SubscribeConversation(ctx context.Context, matchID uint64) (*EventStream, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], fullMethod("SubscribeConversation"),
		grpc.CallContentSubtype(CodecName))
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&MatchRequest{MatchID: matchID}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}

	md, err := stream.Header()
	if err != nil {
		return nil, err
	}
	if len(md.Get(subscribedHeader)) == 0 {
		// the server ended the call before subscribing; surface its status
		if err := stream.RecvMsg(new(Event)); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("api: subscription not confirmed")
	}
	es := &EventStream{stream: stream}
	if v := md.Get(typingIdleHeader); len(v) > 0 {
		if d, err := time.ParseDuration(v[0]); err == nil {
			es.typingIdle = d
		}
	}
	return es, nil
}
