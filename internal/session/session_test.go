package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/matchmaker/internal/clock"
	"github.com/oggyb/matchmaker/internal/session"
)

func TestIdentity_IssueAndVerify(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC))
	id := session.NewIdentity("secret", "matchmaker", time.Hour, clk)

	token, err := id.Issue(42)
	require.NoError(t, err)

	sess, err := id.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), sess.UserID)
}

func TestIdentity_Rejects(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC))
	id := session.NewIdentity("secret", "matchmaker", time.Hour, clk)
	token, err := id.Issue(7)
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		other := session.NewIdentity("other", "matchmaker", time.Hour, clk)
		_, err := other.Verify(token)
		assert.True(t, errors.Is(err, session.ErrInvalidToken))
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := session.NewIdentity("secret", "someone-else", time.Hour, clk)
		_, err := other.Verify(token)
		assert.True(t, errors.Is(err, session.ErrInvalidToken))
	})

	t.Run("expired", func(t *testing.T) {
		clk.Advance(2 * time.Hour)
		_, err := id.Verify(token)
		assert.True(t, errors.Is(err, session.ErrInvalidToken))
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := id.Verify("not-a-token")
		assert.True(t, errors.Is(err, session.ErrInvalidToken))
	})
}

func TestContext(t *testing.T) {
	_, err := session.FromContext(context.Background())
	assert.ErrorIs(t, err, session.ErrNoSession)

	ctx := session.NewContext(context.Background(), session.New(9))
	sess, err := session.FromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), sess.UserID)
}
