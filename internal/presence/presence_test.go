package presence_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/matchmaker/internal/clock"
	"github.com/oggyb/matchmaker/internal/logger"
	"github.com/oggyb/matchmaker/internal/presence"
	"github.com/oggyb/matchmaker/internal/testutil"
)

type recorder struct {
	mu    sync.Mutex
	calls []bool
}

func (r *recorder) notify(isTyping bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, isTyping)
}

func (r *recorder) got() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.calls...)
}

func TestSetTyping_Relays(t *testing.T) {
	ctx := context.Background()
	rc, _ := testutil.NewRedis(t)
	ch := presence.NewChannel(rc, logger.Discard(), clock.Fake(testutil.Now))

	ps, err := rc.Subscribe(ctx, presence.ChannelName(7))
	require.NoError(t, err)
	defer ps.Close()

	ch.SetTyping(ctx, 7, 42, true)

	msg := testutil.RequireReceive(t, ps.Channel(), time.Second, "presence relay")
	assert.Equal(t, "presence:match:7", msg.Channel)
	st, err := presence.Decode([]byte(msg.Payload))
	require.NoError(t, err)
	assert.Equal(t, presence.State{MatchID: 7, UserID: 42, IsTyping: true, At: testutil.Now}, st)
}

func TestSetTyping_PublishFailureIsSwallowed(t *testing.T) {
	rc, mr := testutil.NewRedis(t)
	ch := presence.NewChannel(rc, logger.Discard(), nil)
	mr.Close()

	assert.NotPanics(t, func() { ch.SetTyping(context.Background(), 1, 2, true) })
}

func TestIndicator_IdleTimeout(t *testing.T) {
	clk := clock.Fake(testutil.Now)
	rec := &recorder{}
	ind := presence.NewIndicator(clk, 2*time.Second, rec.notify)

	ind.Keystroke()
	ind.Keystroke()
	assert.Equal(t, []bool{true}, rec.got())

	clk.Advance(1500 * time.Millisecond)
	ind.Keystroke() // restarts the idle window
	clk.Advance(1500 * time.Millisecond)
	assert.True(t, ind.Typing())
	assert.Equal(t, []bool{true}, rec.got())

	clk.Advance(500 * time.Millisecond)
	assert.False(t, ind.Typing())
	assert.Equal(t, []bool{true, false}, rec.got())

	// first keystroke after the idle period starts typing again
	ind.Keystroke()
	assert.Equal(t, []bool{true, false, true}, rec.got())
	assert.Equal(t, 1, clk.Pending())
}

func TestIndicator_SentRevertsImmediately(t *testing.T) {
	clk := clock.Fake(testutil.Now)
	rec := &recorder{}
	ind := presence.NewIndicator(clk, 2*time.Second, rec.notify)

	ind.Keystroke()
	ind.Sent()
	assert.Equal(t, []bool{true, false}, rec.got())
	assert.Zero(t, clk.Pending())

	clk.Advance(5 * time.Second)
	ind.Sent()
	assert.Equal(t, []bool{true, false}, rec.got())
}

func TestIndicator_CloseStopsEverything(t *testing.T) {
	clk := clock.Fake(testutil.Now)
	rec := &recorder{}
	ind := presence.NewIndicator(clk, 0, rec.notify)

	ind.Keystroke()
	ind.Close()
	ind.Keystroke()
	clk.Advance(presence.DefaultIdleTimeout)

	assert.Equal(t, []bool{true, false}, rec.got())
	assert.Zero(t, clk.Pending())
}
