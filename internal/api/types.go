package api

import (
	"github.com/oggyb/matchmaker/internal/db"
	"github.com/oggyb/matchmaker/internal/service/conversation"
	"github.com/oggyb/matchmaker/internal/service/convsync"
	"github.com/oggyb/matchmaker/internal/service/ledger"
)

// Wire types of matchmaker.v1.Matchmaker. The caller is always the
// authenticated user; no request carries a user id for "me".

type Empty struct{}

type SelectCandidatesRequest struct {
	Limit int `json:"limit,omitempty"`
}

type SelectCandidatesResponse struct {
	Candidates []db.Profile `json:"candidates"`
}

type RemainingQuotaResponse struct {
	Remaining int `json:"remaining"`
}

type TargetRequest struct {
	TargetUserID uint64 `json:"target_user_id"`
}

type LikeResponse = ledger.LikeResult

type MatchesResponse struct {
	Matches []db.Match `json:"matches"`
}

type MatchRequest struct {
	MatchID uint64 `json:"match_id"`
}

type SendRequest struct {
	MatchID uint64 `json:"match_id"`
	Content string `json:"content"`
}

type SendResponse struct {
	Message conversation.MessageView `json:"message"`
}

type ListMessagesRequest struct {
	MatchID         uint64  `json:"match_id"`
	PaginationToken *string `json:"pagination_token,omitempty"`
	// Limit > 0 switches to paged reads.
	Limit int `json:"limit,omitempty"`
}

type ListMessagesResponse struct {
	Messages            []conversation.MessageView `json:"messages"`
	NextPaginationToken *string                    `json:"next_pagination_token,omitempty"`
}

type MarkReadResponse struct {
	Updated int `json:"updated"`
}

type ConversationsResponse struct {
	Conversations []conversation.Summary `json:"conversations"`
}

type StartersResponse struct {
	Starters []string `json:"starters"`
}

type SetTypingRequest struct {
	MatchID  uint64 `json:"match_id"`
	IsTyping bool   `json:"is_typing"`
}

type Event = convsync.Event
