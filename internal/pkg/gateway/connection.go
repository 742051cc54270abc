package gateway

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Gopher0727/Guildhall/internal/model"
)

// Connection is one WebSocket client. Writes go through send and are
// flushed by the connection's write pump; a client that falls behind by a
// full buffer is disconnected.
type Connection struct {
	ID     string
	UserID string

	user *model.User
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	topics map[string]struct{}
	closed bool
}

func newConnection(user *model.User, conn *websocket.Conn, buffer int) *Connection {
	if buffer <= 0 {
		buffer = 64
	}
	return &Connection{
		ID:     uuid.NewString(),
		UserID: user.ID,
		user:   user,
		conn:   conn,
		send:   make(chan []byte, buffer),
		topics: make(map[string]struct{}),
	}
}

// enqueue queues a frame without blocking. It reports false if the
// connection is closed or its buffer is full.
func (c *Connection) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Connection) addTopic(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.topics[topic]; ok {
		return false
	}
	c.topics[topic] = struct{}{}
	return true
}

func (c *Connection) removeTopic(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.topics[topic]; !ok {
		return false
	}
	delete(c.topics, topic)
	return true
}

// Topics returns a snapshot of the connection's subscriptions.
func (c *Connection) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.topics))
	for t := range c.topics {
		out = append(out, t)
	}
	return out
}

// close is idempotent. It closes send, which tells the write pump to send
// a close frame and exit.
func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
