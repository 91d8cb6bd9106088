// Package feed is the store's change feed: after a row is committed the
// writer emits a row-level event on a Redis channel scoped to the
// conversation, and Conversation Sync turns those into typed events.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/oggyb/matchmaker/internal/db"
)

type EventType string

const (
	Insert EventType = "insert"
	Update EventType = "update"
)

const TableMessages = "messages"

// Change is the wire form of one row event.
type Change struct {
	EventType EventType       `json:"event_type"`
	Table     string          `json:"table"`
	Row       json.RawMessage `json:"row"`
}

// Message decodes the row of a messages change.
func (c Change) Message() (db.Message, error) {
	var m db.Message
	if c.Table != TableMessages {
		return m, fmt.Errorf("feed: change on %q is not a message", c.Table)
	}
	if err := json.Unmarshal(c.Row, &m); err != nil {
		return m, fmt.Errorf("feed: decode message row: %w", err)
	}
	return m, nil
}

func Decode(payload []byte) (Change, error) {
	var c Change
	if err := json.Unmarshal(payload, &c); err != nil {
		return c, fmt.Errorf("feed: decode change: %w", err)
	}
	return c, nil
}

// MessagesChannel is the channel carrying message changes of one match.
func MessagesChannel(matchID uint64) string {
	return fmt.Sprintf("feed:messages:%d", matchID)
}

type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Feed emits committed changes. Emission is best-effort: the row is already
// durable, so a failed publish is logged and never turned into a write error.
type Feed struct {
	pub Publisher
	log *slog.Logger
}

func New(pub Publisher, log *slog.Logger) *Feed {
	return &Feed{pub: pub, log: log}
}

func (f *Feed) MessageInserted(ctx context.Context, m db.Message) {
	f.emit(ctx, MessagesChannel(m.MatchID), Insert, TableMessages, m)
}

func (f *Feed) MessageUpdated(ctx context.Context, m db.Message) {
	f.emit(ctx, MessagesChannel(m.MatchID), Update, TableMessages, m)
}

func (f *Feed) emit(ctx context.Context, channel string, et EventType, table string, row any) {
	raw, err := json.Marshal(row)
	if err != nil {
		f.log.Error("feed: marshal row", "table", table, "err", err)
		return
	}
	payload, err := json.Marshal(Change{EventType: et, Table: table, Row: raw})
	if err != nil {
		f.log.Error("feed: marshal change", "table", table, "err", err)
		return
	}
	if err := f.pub.Publish(ctx, channel, payload); err != nil {
		f.log.Warn("feed: publish failed", "channel", channel, "event", et, "err", err)
	}
}
