// Package convsync merges the message change feed and the presence relay of a
// match into one ordered event stream per listener.
package convsync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oggyb/matchmaker/internal/app"
	"github.com/oggyb/matchmaker/internal/clock"
	svcErr "github.com/oggyb/matchmaker/internal/errors"
	"github.com/oggyb/matchmaker/internal/feed"
	"github.com/oggyb/matchmaker/internal/logger"
	"github.com/oggyb/matchmaker/internal/presence"
	"github.com/oggyb/matchmaker/internal/repository"
	"github.com/oggyb/matchmaker/internal/service/conversation"
	"github.com/oggyb/matchmaker/internal/session"
)

// openTimeout bounds the Redis subscribe round trip of a new topic.
const openTimeout = 5 * time.Second

type EventKind string

const (
	MessageInserted EventKind = "message_inserted"
	MessageUpdated  EventKind = "message_updated"
	PresenceChanged EventKind = "presence_changed"
)

// Event is a tagged variant: Message is set for the two message kinds,
// Presence for PresenceChanged. Messages are projected for the listener, so
// read receipts follow the same visibility rule as ListMessages.
type Event struct {
	Kind     EventKind                 `json:"kind"`
	Message  *conversation.MessageView `json:"message,omitempty"`
	Presence *presence.State           `json:"presence,omitempty"`
}

// Hub owns one Redis subscription per match with at least one local listener.
type Hub struct {
	appCtx    *app.AppContext
	matchRepo *repository.MatchRepository
	buffer    int
	log       *slog.Logger

	mu     sync.Mutex
	topics map[uint64]*topic
}

func NewHub(appCtx *app.AppContext) *Hub {
	buffer := appCtx.Config.Sync.Buffer
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		appCtx:    appCtx,
		matchRepo: repository.NewMatchRepository(appCtx.DB),
		buffer:    buffer,
		log:       appCtx.Logger.With("component", "convsync"),
		topics:    make(map[uint64]*topic),
	}
}

// Subscribe registers the viewer as a listener of matchID.
//
// Behavior:
//   - Participants only → svcErr.ErrNotParticipant / svcErr.ErrMatchNotFound.
//   - The first events are the current presence of the other participants.
//   - Events then follow in relay order. A listener whose buffer is full is
//     closed and Err reports svcErr.ErrSlowConsumer.
//   - Cancelling ctx closes the subscription.
func (h *Hub) Subscribe(ctx context.Context, sess session.Session, matchID uint64) (*Subscription, error) {
	if !sess.Valid() {
		return nil, session.ErrNoSession
	}
	m, err := h.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !m.Involves(sess.UserID) {
		return nil, svcErr.ErrNotParticipant
	}

	var s *Subscription
	for s == nil {
		t, err := h.acquire(ctx, matchID)
		if err != nil {
			return nil, err
		}

		h.mu.Lock()
		if h.topics[matchID] != t {
			// torn down between opening and joining; take the next one
			h.mu.Unlock()
			continue
		}
		s = &Subscription{
			hub:    h,
			topic:  t,
			userID: sess.UserID,
			events: make(chan Event, h.buffer),
		}
		t.mu.Lock()
		t.listeners[s] = struct{}{}
		for _, st := range t.presence {
			if st.UserID == sess.UserID {
				continue
			}
			st := st
			s.sendLocked(Event{Kind: PresenceChanged, Presence: &st})
		}
		t.mu.Unlock()
		h.mu.Unlock()
	}

	s.mu.Lock()
	s.stopCtx = context.AfterFunc(ctx, s.Close)
	s.mu.Unlock()
	logger.FromContext(ctx, h.log).Debug("subscribed", "match_id", matchID, "user_id", sess.UserID)
	return s, nil
}

// Close ends every subscription and releases all Redis connections.
func (h *Hub) Close() {
	h.mu.Lock()
	topics := h.topics
	h.topics = make(map[uint64]*topic)
	h.mu.Unlock()

	for _, t := range topics {
		<-t.ready
		t.mu.Lock()
		for s := range t.listeners {
			s.finishLocked(nil)
		}
		clear(t.listeners)
		t.mu.Unlock()
		t.close()
	}
}

// Active returns how many matches currently hold a Redis subscription.
func (h *Hub) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics)
}

// acquire returns the topic of matchID once its Redis subscription is live.
// The subscribe round trip runs outside h.mu; concurrent callers for the same
// match wait on the first one.
func (h *Hub) acquire(ctx context.Context, matchID uint64) (*topic, error) {
	h.mu.Lock()
	t, ok := h.topics[matchID]
	if !ok {
		t = &topic{
			matchID:   matchID,
			clock:     h.appCtx.Clock,
			log:       h.log.With("match_id", matchID),
			ready:     make(chan struct{}),
			listeners: make(map[*Subscription]struct{}),
			presence:  make(map[uint64]presence.State),
		}
		h.topics[matchID] = t
	}
	h.mu.Unlock()

	if !ok {
		h.open(ctx, t)
	}
	select {
	case <-t.ready:
	case <-ctx.Done():
		// nobody may join a topic this caller opened; let it go once live
		go func() {
			<-t.ready
			h.release(t)
		}()
		return nil, ctx.Err()
	}
	if t.err != nil {
		return nil, t.err
	}
	return t, nil
}

func (h *Hub) open(ctx context.Context, t *topic) {
	defer close(t.ready)

	// the connection outlives the caller that happened to open it
	openCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), openTimeout)
	defer cancel()

	ps, err := h.appCtx.RedisCache.Subscribe(openCtx,
		feed.MessagesChannel(t.matchID),
		presence.ChannelName(t.matchID),
	)
	if err != nil {
		t.err = svcErr.Store(err)
		h.mu.Lock()
		if h.topics[t.matchID] == t {
			delete(h.topics, t.matchID)
		}
		h.mu.Unlock()
		return
	}
	t.ps = ps
	go h.run(t, ps.Channel())
}

func (h *Hub) run(t *topic, msgs <-chan *redis.Message) {
	for msg := range msgs {
		if t.dispatch(msg) {
			h.release(t)
		}
	}
}

// detach removes s and tears the topic down when it was the last listener.
func (h *Hub) detach(s *Subscription, cause error) {
	t := s.topic

	h.mu.Lock()
	t.mu.Lock()
	t.removeLocked(s, cause)
	t.mu.Unlock()
	teardown := h.unlinkIfEmptyLocked(t)
	h.mu.Unlock()

	if teardown {
		t.close()
	}
}

// release tears t down if dispatch left it without listeners.
func (h *Hub) release(t *topic) {
	h.mu.Lock()
	teardown := h.unlinkIfEmptyLocked(t)
	h.mu.Unlock()

	if teardown {
		t.close()
	}
}

func (h *Hub) unlinkIfEmptyLocked(t *topic) bool {
	t.mu.Lock()
	empty := len(t.listeners) == 0
	t.mu.Unlock()
	if !empty || h.topics[t.matchID] != t {
		return false
	}
	delete(h.topics, t.matchID)
	return true
}

type topic struct {
	matchID uint64
	clock   clock.Clock
	log     *slog.Logger

	// ps and err are set before ready is closed
	ready chan struct{}
	ps    *redis.PubSub
	err   error

	mu        sync.Mutex
	listeners map[*Subscription]struct{}
	presence  map[uint64]presence.State
	closeOnce sync.Once
}

// dispatch fans msg out to every listener, dropping the ones that fell
// behind. It reports whether that left the topic without listeners.
func (t *topic) dispatch(msg *redis.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	var slow []*Subscription
	switch msg.Channel {
	case feed.MessagesChannel(t.matchID):
		change, err := feed.Decode([]byte(msg.Payload))
		if err != nil {
			t.log.Warn("dropping undecodable change", "err", err)
			return false
		}
		m, err := change.Message()
		if err != nil {
			t.log.Warn("dropping change", "err", err)
			return false
		}
		kind := MessageInserted
		if change.EventType == feed.Update {
			kind = MessageUpdated
		}
		for s := range t.listeners {
			v := conversation.ViewFor(m, s.userID)
			if !s.sendLocked(Event{Kind: kind, Message: &v}) {
				slow = append(slow, s)
			}
		}

	case presence.ChannelName(t.matchID):
		st, err := presence.Decode([]byte(msg.Payload))
		if err != nil {
			t.log.Warn("dropping undecodable presence", "err", err)
			return false
		}
		slow = t.presenceLocked(st)
	}

	for _, s := range slow {
		t.removeLocked(s, svcErr.ErrSlowConsumer)
	}
	return len(slow) > 0 && len(t.listeners) == 0
}

// presenceLocked records st and sends it to everyone but its owner. It
// returns the listeners whose buffer was full.
func (t *topic) presenceLocked(st presence.State) []*Subscription {
	if st.IsTyping {
		t.presence[st.UserID] = st
	} else {
		delete(t.presence, st.UserID)
	}
	var slow []*Subscription
	for s := range t.listeners {
		if s.userID == st.UserID {
			continue
		}
		if !s.sendLocked(Event{Kind: PresenceChanged, Presence: &st}) {
			slow = append(slow, s)
		}
	}
	return slow
}

// removeLocked ends s. When s was the last listener of its user on this topic
// and that user was typing, the typing state is dropped and the remaining
// listeners are told it stopped.
func (t *topic) removeLocked(s *Subscription, cause error) {
	if _, ok := t.listeners[s]; !ok {
		s.finishLocked(cause)
		return
	}
	delete(t.listeners, s)
	s.finishLocked(cause)

	if _, typing := t.presence[s.userID]; !typing {
		return
	}
	for o := range t.listeners {
		if o.userID == s.userID {
			return
		}
	}
	stopped := presence.State{MatchID: t.matchID, UserID: s.userID, At: t.clock.Now().UTC()}
	for _, slow := range t.presenceLocked(stopped) {
		t.removeLocked(slow, svcErr.ErrSlowConsumer)
	}
}

func (t *topic) close() {
	t.closeOnce.Do(func() {
		if t.ps == nil {
			return
		}
		if err := t.ps.Close(); err != nil {
			t.log.Warn("closing pubsub", "err", err)
		}
	})
}

// Subscription is a listener handle. Events is closed when the subscription
// ends; Err then tells why.
type Subscription struct {
	hub    *Hub
	topic  *topic
	userID uint64
	events chan Event

	mu      sync.Mutex
	stopCtx func() bool

	// guarded by topic.mu
	closed bool
	err    error
}

func (s *Subscription) Events() <-chan Event { return s.events }

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.mu.Lock()
	stop := s.stopCtx
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
	s.hub.detach(s, nil)
}

// Err is svcErr.ErrSlowConsumer when the hub dropped the listener, nil otherwise.
func (s *Subscription) Err() error {
	s.topic.mu.Lock()
	defer s.topic.mu.Unlock()
	return s.err
}

func (s *Subscription) sendLocked(ev Event) bool {
	if s.closed {
		return true
	}
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}

func (s *Subscription) finishLocked(cause error) {
	if s.closed {
		return
	}
	s.closed = true
	s.err = cause
	close(s.events)
}
