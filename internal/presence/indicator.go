package presence

import (
	"sync"
	"time"

	"github.com/oggyb/matchmaker/internal/clock"
)

// DefaultIdleTimeout is how long typing lasts after the last keystroke.
const DefaultIdleTimeout = 2 * time.Second

// Indicator is the client side of the typing policy: typing starts on the
// first keystroke after an idle period and ends after idle without a
// keystroke, on send, or on close. notify only sees transitions.
type Indicator struct {
	mu     sync.Mutex
	clock  clock.Clock
	idle   time.Duration
	notify func(isTyping bool)

	typing bool
	closed bool
	gen    uint64
	timer  clock.Timer
}

func NewIndicator(clk clock.Clock, idle time.Duration, notify func(isTyping bool)) *Indicator {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &Indicator{clock: clk, idle: idle, notify: notify}
}

// Keystroke marks activity and restarts the idle timer.
func (i *Indicator) Keystroke() {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return
	}
	started := !i.typing
	i.typing = true
	i.stopLocked()
	gen := i.gen
	i.timer = i.clock.AfterFunc(i.idle, func() { i.expire(gen) })
	i.mu.Unlock()

	if started {
		i.notify(true)
	}
}

// Sent ends typing immediately.
func (i *Indicator) Sent() {
	i.stop(false)
}

// Close ends typing and ignores every later call.
func (i *Indicator) Close() {
	i.stop(true)
}

func (i *Indicator) Typing() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.typing
}

func (i *Indicator) expire(gen uint64) {
	i.mu.Lock()
	if gen != i.gen || !i.typing {
		// superseded by a later keystroke, Sent or Close
		i.mu.Unlock()
		return
	}
	i.typing = false
	i.timer = nil
	i.mu.Unlock()

	i.notify(false)
}

func (i *Indicator) stop(closing bool) {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return
	}
	i.closed = closing
	i.stopLocked()
	wasTyping := i.typing
	i.typing = false
	i.mu.Unlock()

	if wasTyping {
		i.notify(false)
	}
}

// stopLocked cancels the pending timer. The generation bump covers a timer
// that already fired and is waiting on the lock.
func (i *Indicator) stopLocked() {
	i.gen++
	if i.timer != nil {
		i.timer.Stop()
		i.timer = nil
	}
}
