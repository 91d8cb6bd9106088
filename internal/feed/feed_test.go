package feed_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/matchmaker/internal/db"
	"github.com/oggyb/matchmaker/internal/feed"
	"github.com/oggyb/matchmaker/internal/logger"
	"github.com/oggyb/matchmaker/internal/testutil"
)

type failingPublisher struct{ calls int }

func (p *failingPublisher) Publish(context.Context, string, []byte) error {
	p.calls++
	return errors.New("redis down")
}

func TestFeed_MessageInsertedRoundTrip(t *testing.T) {
	rc, _ := testutil.NewRedis(t)
	ctx := context.Background()

	ps, err := rc.Subscribe(ctx, feed.MessagesChannel(7))
	require.NoError(t, err)
	defer ps.Close()

	f := feed.New(rc, logger.Discard())
	sent := db.Message{ID: 3, MatchID: 7, SenderID: 1, Content: "hi", CreatedAt: testutil.Now}
	f.MessageInserted(ctx, sent)

	select {
	case msg := <-ps.Channel():
		change, err := feed.Decode([]byte(msg.Payload))
		require.NoError(t, err)
		assert.Equal(t, feed.Insert, change.EventType)

		got, err := change.Message()
		require.NoError(t, err)
		assert.Equal(t, sent.ID, got.ID)
		assert.Equal(t, "hi", got.Content)
		assert.True(t, sent.CreatedAt.Equal(got.CreatedAt))
	case <-time.After(2 * time.Second):
		t.Fatal("no change received")
	}
}

func TestFeed_PublishFailureIsSwallowed(t *testing.T) {
	pub := &failingPublisher{}
	f := feed.New(pub, logger.Discard())

	assert.NotPanics(t, func() {
		f.MessageUpdated(context.Background(), db.Message{ID: 1, MatchID: 1})
	})
	assert.Equal(t, 1, pub.calls)
}

func TestChange_RejectsOtherTables(t *testing.T) {
	_, err := feed.Change{EventType: feed.Insert, Table: "matches", Row: []byte(`{}`)}.Message()
	assert.Error(t, err)

	_, err = feed.Decode([]byte("not json"))
	assert.Error(t, err)
}
