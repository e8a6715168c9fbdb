package ws

import (
	"sync"

	"go.uber.org/zap"

	"chatspace/internal/domain"
	"chatspace/internal/metrics"
	"chatspace/internal/service"
)

// Hub routes events to live clients: everyone, an identity's connections,
// or a channel's broadcast group. Group changes take the write lock and
// fan-out takes the read lock, so a subscription change is ordered entirely
// before or after any in-flight fan-out.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]struct{}
	byUser   map[int64]map[*Client]struct{}
	channels map[int64]map[*Client]struct{}

	metrics *metrics.Metrics
	log     *zap.Logger
}

var _ service.Notifier = (*Hub)(nil)

func NewHub(m *metrics.Metrics, log *zap.Logger) *Hub {
	return &Hub{
		clients:  make(map[*Client]struct{}),
		byUser:   make(map[int64]map[*Client]struct{}),
		channels: make(map[int64]map[*Client]struct{}),
		metrics:  m,
		log:      log,
	}
}

// Register adds c to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = struct{}{}
	if h.byUser[c.UserID()] == nil {
		h.byUser[c.UserID()] = make(map[*Client]struct{})
	}
	h.byUser[c.UserID()][c] = struct{}{}
}

// Unregister removes c and all of its channel subscriptions.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.clients, c)
	if conns, ok := h.byUser[c.UserID()]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.byUser, c.UserID())
		}
	}
	for id := range c.channels {
		h.leaveLocked(c, id)
	}
}

// Subscribe adds c to a channel group. It reports false if c was already in it.
func (h *Hub) Subscribe(c *Client, channelID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := c.channels[channelID]; ok {
		return false
	}
	if h.channels[channelID] == nil {
		h.channels[channelID] = make(map[*Client]struct{})
	}
	h.channels[channelID][c] = struct{}{}
	c.channels[channelID] = struct{}{}
	return true
}

func (h *Hub) Unsubscribe(c *Client, channelID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, channelID)
}

func (h *Hub) leaveLocked(c *Client, channelID int64) {
	delete(c.channels, channelID)
	if group, ok := h.channels[channelID]; ok {
		delete(group, c)
		if len(group) == 0 {
			delete(h.channels, channelID)
		}
	}
}

func (h *Hub) Subscribed(c *Client, channelID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.channels[channelID]
	return ok
}

// RemoveChannel drops a channel group entirely.
func (h *Hub) RemoveChannel(channelID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.channels[channelID] {
		delete(c.channels, channelID)
	}
	delete(h.channels, channelID)
}

// BroadcastChannel delivers ev to every subscriber of channelID except skip.
func (h *Hub) BroadcastChannel(channelID int64, ev Event, skip *Client) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for c := range h.channels[channelID] {
		if c == skip {
			continue
		}
		if h.deliver(c, ev) {
			n++
		}
	}
	h.metrics.Delivered(n)
	return n
}

// BroadcastAll delivers ev to every live client.
func (h *Hub) BroadcastAll(ev Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for c := range h.clients {
		if h.deliver(c, ev) {
			n++
		}
	}
	h.metrics.Delivered(n)
	return n
}

// BroadcastToUsers delivers ev to all connections of the given identities.
func (h *Hub) BroadcastToUsers(userIDs []int64, ev Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, uid := range userIDs {
		for c := range h.byUser[uid] {
			if h.deliver(c, ev) {
				n++
			}
		}
	}
	h.metrics.Delivered(n)
	return n
}

// SendTo delivers ev to a single client.
func (h *Hub) SendTo(c *Client, ev Event) bool {
	ok := h.deliver(c, ev)
	if ok {
		h.metrics.Delivered(1)
	}
	return ok
}

func (h *Hub) deliver(c *Client, ev Event) bool {
	ok, dropped := c.enqueue(ev)
	if dropped {
		h.metrics.SlowClient()
		h.log.Warn("closing slow client",
			zap.String("conn_id", c.ID()),
			zap.Int64("user_id", c.UserID()),
			zap.String("event", ev.Type),
		)
	}
	return ok
}

// DisconnectUser closes every live connection of an identity.
func (h *Hub) DisconnectUser(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for c := range h.byUser[userID] {
		c.Close()
		n++
	}
	return n
}

// CloseAll closes every live connection. Used on shutdown, since hijacked
// sockets are not drained by http.Server.Shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.Close()
	}
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ChannelCreated announces a new channel. Public channels go to everyone;
// direct and private-group channels only reach their members.
func (h *Hub) ChannelCreated(ch *domain.Channel, memberIDs []int64) {
	ev := Event{Type: EventChannelCreated, Payload: ch}
	if ch.IsPublic() {
		h.BroadcastAll(ev)
		return
	}
	h.BroadcastToUsers(memberIDs, ev)
}

func (h *Hub) ChannelDeleted(channelID int64) {
	h.BroadcastAll(Event{Type: EventChannelDeleted, Payload: ChannelDeletedPayload{ChannelID: channelID}})
	h.RemoveChannel(channelID)
}

// UserDeleted announces the deletion and closes the identity's connections.
func (h *Hub) UserDeleted(userID int64) {
	h.BroadcastAll(Event{Type: EventUserDeleted, Payload: UserDeletedPayload{UserID: userID}})
	if n := h.DisconnectUser(userID); n > 0 {
		h.log.Info("closed connections of deleted identity", zap.Int64("user_id", userID), zap.Int("connections", n))
	}
}
