package convsync_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/matchmaker/internal/db"
	svcErr "github.com/oggyb/matchmaker/internal/errors"
	"github.com/oggyb/matchmaker/internal/presence"
	"github.com/oggyb/matchmaker/internal/service/conversation"
	"github.com/oggyb/matchmaker/internal/service/convsync"
	"github.com/oggyb/matchmaker/internal/session"
	"github.com/oggyb/matchmaker/internal/testutil"
)

const wait = 2 * time.Second

type fixture struct {
	env      *testutil.Env
	hub      *convsync.Hub
	conv     *conversation.Service
	presence *presence.Channel
	a, b, c  db.Profile
	match    db.Match
}

func setup(t *testing.T, buffer int) fixture {
	t.Helper()
	env := testutil.NewEnv(t)
	env.App.Config.Sync.Buffer = buffer
	gdb := env.App.DB

	f := fixture{
		env:      env,
		conv:     conversation.NewService(env.App),
		presence: presence.NewChannel(env.App.RedisCache, env.App.Logger, env.Clock),
		a:        testutil.Profile(t, gdb, "A", db.IntentSeriousDating),
		b:        testutil.Profile(t, gdb, "B", db.IntentSeriousDating),
		c:        testutil.Profile(t, gdb, "C", db.IntentSeriousDating),
	}
	f.match = testutil.AcceptedMatch(t, gdb, f.a.ID, f.b.ID)
	f.hub = convsync.NewHub(env.App)
	t.Cleanup(f.hub.Close)
	return f
}

func (f fixture) subscribe(t *testing.T, userID uint64) *convsync.Subscription {
	t.Helper()
	sub, err := f.hub.Subscribe(context.Background(), session.New(userID), f.match.ID)
	require.NoError(t, err)
	t.Cleanup(sub.Close)
	return sub
}

func TestSubscribe_ParticipantsOnly(t *testing.T) {
	f := setup(t, 8)

	_, err := f.hub.Subscribe(context.Background(), session.New(f.c.ID), f.match.ID)
	assert.ErrorIs(t, err, svcErr.ErrNotParticipant)

	_, err = f.hub.Subscribe(context.Background(), session.New(f.a.ID), 4242)
	assert.ErrorIs(t, err, svcErr.ErrMatchNotFound)

	assert.Zero(t, f.hub.Active())
}

func TestMessagesFanOutInFeedOrder(t *testing.T) {
	ctx := context.Background()
	f := setup(t, 8)
	subA := f.subscribe(t, f.a.ID)
	subB := f.subscribe(t, f.b.ID)
	assert.Equal(t, 1, f.hub.Active())

	sent, err := f.conv.Send(ctx, session.New(f.a.ID), f.match.ID, "hi")
	require.NoError(t, err)
	f.env.Clock.Advance(time.Second)
	_, err = f.conv.MarkRead(ctx, session.New(f.b.ID), f.match.ID)
	require.NoError(t, err)

	for _, sub := range []*convsync.Subscription{subA, subB} {
		ev := testutil.RequireReceive(t, sub.Events(), wait, "insert")
		assert.Equal(t, convsync.MessageInserted, ev.Kind)
		require.NotNil(t, ev.Message)
		assert.Equal(t, sent.ID, ev.Message.ID)

		ev = testutil.RequireReceive(t, sub.Events(), wait, "update")
		assert.Equal(t, convsync.MessageUpdated, ev.Kind)
		require.NotNil(t, ev.Message)
		assert.Equal(t, sent.ID, ev.Message.ID)
	}
}

func TestReceiptVisibleToSenderOnly(t *testing.T) {
	ctx := context.Background()
	f := setup(t, 8)

	_, err := f.conv.Send(ctx, session.New(f.a.ID), f.match.ID, "hi")
	require.NoError(t, err)

	subA := f.subscribe(t, f.a.ID)
	subB := f.subscribe(t, f.b.ID)

	_, err = f.conv.MarkRead(ctx, session.New(f.b.ID), f.match.ID)
	require.NoError(t, err)

	evA := testutil.RequireReceive(t, subA.Events(), wait, "sender update")
	require.Equal(t, convsync.MessageUpdated, evA.Kind)
	assert.False(t, evA.Message.Incoming)
	assert.NotNil(t, evA.Message.ReadAt)

	evB := testutil.RequireReceive(t, subB.Events(), wait, "reader update")
	require.Equal(t, convsync.MessageUpdated, evB.Kind)
	assert.True(t, evB.Message.Incoming)
	assert.Nil(t, evB.Message.ReadAt)
}

func TestPresence_RelayAndSnapshot(t *testing.T) {
	ctx := context.Background()
	f := setup(t, 8)
	subA := f.subscribe(t, f.a.ID)
	subB := f.subscribe(t, f.b.ID)

	f.presence.SetTyping(ctx, f.match.ID, f.a.ID, true)

	ev := testutil.RequireReceive(t, subB.Events(), wait, "b sees a typing")
	assert.Equal(t, convsync.PresenceChanged, ev.Kind)
	require.NotNil(t, ev.Presence)
	assert.Equal(t, f.a.ID, ev.Presence.UserID)
	assert.True(t, ev.Presence.IsTyping)

	// the typist is not echoed
	testutil.RequireNoReceive(t, subA.Events(), 100*time.Millisecond, "own presence")

	// b opens a second view: it starts with a's current state
	late := f.subscribe(t, f.b.ID)
	snap := testutil.RequireReceive(t, late.Events(), wait, "snapshot")
	assert.Equal(t, convsync.PresenceChanged, snap.Kind)
	assert.Equal(t, f.a.ID, snap.Presence.UserID)
	assert.True(t, snap.Presence.IsTyping)

	// a's own late subscription has nothing to replay
	lateA := f.subscribe(t, f.a.ID)
	testutil.RequireNoReceive(t, lateA.Events(), 100*time.Millisecond, "no self snapshot")

	f.presence.SetTyping(ctx, f.match.ID, f.a.ID, false)
	ev = testutil.RequireReceive(t, subB.Events(), wait, "b sees a stop")
	assert.False(t, ev.Presence.IsTyping)

	fresh := f.subscribe(t, f.b.ID)
	testutil.RequireNoReceive(t, fresh.Events(), 100*time.Millisecond, "empty snapshot once idle")
}

func TestPresence_ClearedWhenTypistLeaves(t *testing.T) {
	ctx := context.Background()
	f := setup(t, 8)
	subA := f.subscribe(t, f.a.ID)
	subB := f.subscribe(t, f.b.ID)

	f.presence.SetTyping(ctx, f.match.ID, f.a.ID, true)
	ev := testutil.RequireReceive(t, subB.Events(), wait, "b sees a typing")
	require.True(t, ev.Presence.IsTyping)

	subA.Close()

	ev = testutil.RequireReceive(t, subB.Events(), wait, "b sees a stop on disconnect")
	assert.Equal(t, convsync.PresenceChanged, ev.Kind)
	require.NotNil(t, ev.Presence)
	assert.Equal(t, f.a.ID, ev.Presence.UserID)
	assert.False(t, ev.Presence.IsTyping)

	fresh := f.subscribe(t, f.b.ID)
	testutil.RequireNoReceive(t, fresh.Events(), 100*time.Millisecond, "departed typist not replayed")
}

func TestPresence_KeptWhileTypistHasAnotherView(t *testing.T) {
	ctx := context.Background()
	f := setup(t, 8)
	first := f.subscribe(t, f.a.ID)
	f.subscribe(t, f.a.ID)
	subB := f.subscribe(t, f.b.ID)

	f.presence.SetTyping(ctx, f.match.ID, f.a.ID, true)
	testutil.RequireReceive(t, subB.Events(), wait, "b sees a typing")

	first.Close()
	testutil.RequireNoReceive(t, subB.Events(), 100*time.Millisecond, "a is still connected")

	late := f.subscribe(t, f.b.ID)
	snap := testutil.RequireReceive(t, late.Events(), wait, "snapshot")
	assert.True(t, snap.Presence.IsTyping)
}

func TestSubscribe_ConcurrentOpenSharesTopic(t *testing.T) {
	f := setup(t, 8)

	subs := make(chan *convsync.Subscription, 10)
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		user := f.a.ID
		if i%2 == 1 {
			user = f.b.ID
		}
		go func() {
			sub, err := f.hub.Subscribe(context.Background(), session.New(user), f.match.ID)
			errs <- err
			subs <- sub
		}()
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, <-errs)
		sub := <-subs
		t.Cleanup(sub.Close)
	}
	assert.Equal(t, 1, f.hub.Active())
}

func TestClose_LastListenerTearsDown(t *testing.T) {
	f := setup(t, 8)
	subA := f.subscribe(t, f.a.ID)
	subB := f.subscribe(t, f.b.ID)

	subA.Close()
	subA.Close()
	_, ok := <-subA.Events()
	assert.False(t, ok)
	assert.NoError(t, subA.Err())
	assert.Equal(t, 1, f.hub.Active())

	subB.Close()
	assert.Zero(t, f.hub.Active())

	// a new subscriber reopens the key
	again := f.subscribe(t, f.a.ID)
	assert.Equal(t, 1, f.hub.Active())
	again.Close()
	assert.Zero(t, f.hub.Active())
}

func TestContextCancelCloses(t *testing.T) {
	f := setup(t, 8)
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := f.hub.Subscribe(ctx, session.New(f.a.ID), f.match.ID)
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool { return f.hub.Active() == 0 }, wait, 10*time.Millisecond)
	_, ok := <-sub.Events()
	assert.False(t, ok)
}

func TestSlowConsumerIsDropped(t *testing.T) {
	ctx := context.Background()
	f := setup(t, 1)
	slow := f.subscribe(t, f.b.ID)

	for _, text := range []string{"one", "two", "three"} {
		_, err := f.conv.Send(ctx, session.New(f.a.ID), f.match.ID, text)
		require.NoError(t, err)
	}

	// nothing is read until the hub has given up on the listener
	require.Eventually(t, func() bool { return slow.Err() != nil }, wait, 10*time.Millisecond)
	assert.ErrorIs(t, slow.Err(), svcErr.ErrSlowConsumer)

	// the buffered event is still readable, then the stream ends
	first := testutil.RequireReceive(t, slow.Events(), wait, "buffered event")
	assert.Equal(t, "one", first.Message.Content)
	_, ok := <-slow.Events()
	assert.False(t, ok)
	assert.Zero(t, f.hub.Active())
}
