package api

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "matchmaker.v1.Matchmaker"

// MatchmakerServer is the server API of matchmaker.v1.Matchmaker.
type MatchmakerServer interface {
	SelectCandidates(context.Context, *SelectCandidatesRequest) (*SelectCandidatesResponse, error)
	RemainingQuota(context.Context, *Empty) (*RemainingQuotaResponse, error)
	RecordShown(context.Context, *TargetRequest) (*Empty, error)
	Like(context.Context, *TargetRequest) (*LikeResponse, error)
	Skip(context.Context, *TargetRequest) (*Empty, error)
	ListMutual(context.Context, *Empty) (*MatchesResponse, error)
	ListLiked(context.Context, *Empty) (*MatchesResponse, error)
	Send(context.Context, *SendRequest) (*SendResponse, error)
	ListMessages(context.Context, *ListMessagesRequest) (*ListMessagesResponse, error)
	MarkRead(context.Context, *MatchRequest) (*MarkReadResponse, error)
	ListConversations(context.Context, *Empty) (*ConversationsResponse, error)
	Starters(context.Context, *MatchRequest) (*StartersResponse, error)
	SetTyping(context.Context, *SetTypingRequest) (*Empty, error)
	SubscribeConversation(*MatchRequest, grpc.ServerStream) error
}

var _ MatchmakerServer = (*Service)(nil)

// ServiceDesc is written by hand in place of protoc output; bodies use the
// JSON codec.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MatchmakerServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("SelectCandidates", MatchmakerServer.SelectCandidates),
		unary("RemainingQuota", MatchmakerServer.RemainingQuota),
		unary("RecordShown", MatchmakerServer.RecordShown),
		unary("Like", MatchmakerServer.Like),
		unary("Skip", MatchmakerServer.Skip),
		unary("ListMutual", MatchmakerServer.ListMutual),
		unary("ListLiked", MatchmakerServer.ListLiked),
		unary("Send", MatchmakerServer.Send),
		unary("ListMessages", MatchmakerServer.ListMessages),
		unary("MarkRead", MatchmakerServer.MarkRead),
		unary("ListConversations", MatchmakerServer.ListConversations),
		unary("Starters", MatchmakerServer.Starters),
		unary("SetTyping", MatchmakerServer.SetTyping),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "SubscribeConversation",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(MatchRequest)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(MatchmakerServer).SubscribeConversation(in, stream)
			},
		},
	},
	Metadata: "matchmaker/v1/matchmaker.json",
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// unary adapts a typed handler to grpc.MethodDesc, running the interceptor
// chain the way generated code does.
func unary[Req, Resp any](
	name string,
	call func(MatchmakerServer, context.Context, *Req) (*Resp, error),
) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(MatchmakerServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(MatchmakerServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
