package ws

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"chatspace/internal/domain"
	"chatspace/internal/metrics"
	"chatspace/internal/service"
)

// Tracker aggregates live connections per identity into one online/offline
// state. Transitions for one identity are serialized, so a disconnect racing
// a reconnect cannot leave the identity offline while a connection is live.
type Tracker struct {
	hub     *Hub
	users   domain.UserRepository
	metrics *metrics.Metrics
	log     *zap.Logger

	locks *keyedMutex

	mu     sync.RWMutex
	conns  map[*Client]int64
	counts map[int64]int
}

var (
	_ service.PresenceSource = (*Tracker)(nil)
	_ service.LiveCounter    = (*Tracker)(nil)
)

func NewTracker(hub *Hub, users domain.UserRepository, m *metrics.Metrics, log *zap.Logger) *Tracker {
	return &Tracker{
		hub:     hub,
		users:   users,
		metrics: m,
		log:     log,
		locks:   newKeyedMutex(),
		conns:   make(map[*Client]int64),
		counts:  make(map[int64]int),
	}
}

// Connect registers c. The first connection of an identity persists and
// broadcasts the online transition.
func (t *Tracker) Connect(ctx context.Context, c *Client) {
	uid := c.UserID()
	unlock := t.locks.Lock(uid)
	defer unlock()

	t.mu.Lock()
	t.conns[c] = uid
	t.counts[uid]++
	first := t.counts[uid] == 1
	online := len(t.counts)
	t.mu.Unlock()

	t.hub.Register(c)
	t.metrics.ConnectionOpened()
	if !first {
		return
	}
	t.metrics.SetOnlineUsers(online)
	t.transition(ctx, uid, domain.StatusOnline)
}

// Disconnect removes c. When it was the identity's last connection the
// offline transition is persisted and broadcast.
func (t *Tracker) Disconnect(ctx context.Context, c *Client) {
	uid := c.UserID()
	unlock := t.locks.Lock(uid)
	defer unlock()

	t.hub.Unregister(c)

	t.mu.Lock()
	if _, ok := t.conns[c]; !ok {
		t.mu.Unlock()
		return
	}
	delete(t.conns, c)
	t.counts[uid]--
	last := t.counts[uid] == 0
	if last {
		delete(t.counts, uid)
	}
	online := len(t.counts)
	t.mu.Unlock()

	t.metrics.ConnectionClosed()
	if !last {
		return
	}
	t.metrics.SetOnlineUsers(online)
	t.transition(ctx, uid, domain.StatusOffline)
}

func (t *Tracker) transition(ctx context.Context, uid int64, status string) {
	if err := t.users.SetStatus(ctx, uid, status); err != nil {
		t.log.Warn("persist presence", zap.Int64("user_id", uid), zap.String("status", status), zap.Error(err))
	}
	t.hub.BroadcastAll(Event{Type: EventUserStatusChange, Payload: StatusPayload{UserID: uid, Status: status}})
	t.log.Debug("presence changed", zap.Int64("user_id", uid), zap.String("status", status))
}

func (t *Tracker) IsOnline(userID int64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.counts[userID] > 0
}

func (t *Tracker) OnlineCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.counts)
}

func (t *Tracker) ConnectionCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}
