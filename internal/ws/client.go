package ws

import (
	"sync"

	"github.com/google/uuid"

	"chatspace/internal/security"
)

const sendQueueSize = 256

// Client is one live connection bound to a verified identity. Outbound
// events are queued on send and written by the connection's write pump.
type Client struct {
	id     string
	claims *security.Claims

	send      chan Event
	done      chan struct{}
	closeOnce sync.Once

	// channels is guarded by Hub.mu.
	channels map[int64]struct{}
}

func NewClient(claims *security.Claims) *Client {
	return &Client{
		id:       uuid.NewString(),
		claims:   claims,
		send:     make(chan Event, sendQueueSize),
		done:     make(chan struct{}),
		channels: make(map[int64]struct{}),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) UserID() int64 { return c.claims.UserID }

func (c *Client) Claims() *security.Claims { return c.claims }

// Send exposes the outbound queue to the transport.
func (c *Client) Send() <-chan Event { return c.send }

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close marks the client dead. It is safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// enqueue never blocks. A full queue closes the client and the event is dropped.
func (c *Client) enqueue(ev Event) (delivered, dropped bool) {
	if c.closed() {
		return false, false
	}
	select {
	case c.send <- ev:
		return true, false
	default:
		c.Close()
		return false, true
	}
}
