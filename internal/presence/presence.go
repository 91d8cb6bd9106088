// Package presence relays ephemeral typing state between the participants of
// a conversation. Nothing is persisted and nothing is acknowledged.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oggyb/matchmaker/internal/clock"
)

// State is one participant's presence in one conversation.
type State struct {
	MatchID  uint64    `json:"match_id"`
	UserID   uint64    `json:"user_id"`
	IsTyping bool      `json:"is_typing"`
	At       time.Time `json:"at"`
}

// ChannelName is the Redis channel presence of a match is relayed on.
func ChannelName(matchID uint64) string {
	return fmt.Sprintf("presence:match:%d", matchID)
}

func Decode(payload []byte) (State, error) {
	var s State
	if err := json.Unmarshal(payload, &s); err != nil {
		return s, fmt.Errorf("presence: decode state: %w", err)
	}
	return s, nil
}

type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Channel is a pure relay: it does not debounce, dedupe or remember.
type Channel struct {
	pub   Publisher
	log   *slog.Logger
	clock clock.Clock
}

func NewChannel(pub Publisher, log *slog.Logger, clk clock.Clock) *Channel {
	if clk == nil {
		clk = clock.Real()
	}
	return &Channel{pub: pub, log: log, clock: clk}
}

// SetTyping publishes the state to every subscriber of the conversation.
// Failures are logged and otherwise ignored.
func (c *Channel) SetTyping(ctx context.Context, matchID, userID uint64, isTyping bool) {
	payload, err := json.Marshal(State{
		MatchID:  matchID,
		UserID:   userID,
		IsTyping: isTyping,
		At:       c.clock.Now().UTC(),
	})
	if err != nil {
		c.log.Error("presence: marshal", "err", err)
		return
	}
	if err := c.pub.Publish(ctx, ChannelName(matchID), payload); err != nil {
		c.log.Warn("presence: publish failed", "match_id", matchID, "user_id", userID, "err", err)
	}
}
