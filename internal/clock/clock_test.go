package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClock_AdvanceFiresInOrder(t *testing.T) {
	c := Fake(time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC))

	var fired []string
	c.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	c.AfterFunc(time.Second, func() { fired = append(fired, "a") })
	stopped := c.AfterFunc(time.Second, func() { fired = append(fired, "x") })
	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())

	c.Advance(500 * time.Millisecond)
	assert.Empty(t, fired)

	c.Advance(2 * time.Second)
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, 0, c.Pending())
}

func TestFakeClock_SetDoesNotFire(t *testing.T) {
	start := time.Date(2026, 10, 15, 23, 59, 0, 0, time.UTC)
	c := Fake(start)
	called := false
	c.AfterFunc(time.Minute, func() { called = true })

	c.Set(start.Add(time.Hour))
	assert.False(t, called)
	assert.Equal(t, 16, c.Now().Day())
}
