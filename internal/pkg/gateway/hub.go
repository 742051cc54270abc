package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Gopher0727/Guildhall/internal/pkg/events"
)

// Frame is the JSON envelope for every server-to-client message.
type Frame struct {
	Op    string         `json:"op"`
	Type  string         `json:"type,omitempty"`
	Topic string         `json:"topic,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
	At    int64          `json:"at,omitempty"`
	Error string         `json:"error,omitempty"`
}

// Hub tracks live connections and their topic subscriptions on this node.
// Subscriptions are authorized when made and re-authorized whenever the
// user loses a membership.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]*Connection
	topics map[string]map[string]*Connection
	// revocations counts membership losses per user, so a subscribe racing
	// a revocation re-checks instead of slipping in behind it.
	revocations map[string]uint64
	authz       TopicAuthorizer
	logger      *zap.Logger
}

func NewHub(authz TopicAuthorizer, logger *zap.Logger) *Hub {
	return &Hub{
		conns:       make(map[string]*Connection),
		topics:      make(map[string]map[string]*Connection),
		revocations: make(map[string]uint64),
		authz:       authz,
		logger:      logger,
	}
}

func (h *Hub) add(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.ID] = c
}

// remove drops c and all of its subscriptions, then closes it.
func (h *Hub) remove(c *Connection) {
	h.mu.Lock()
	delete(h.conns, c.ID)
	for _, topic := range c.Topics() {
		h.unindex(topic, c.ID)
	}
	h.mu.Unlock()
	c.close()
}

func (h *Hub) subscribe(c *Connection, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribeLocked(c, topic)
}

// authorizedSubscribe checks topic for c's user and subscribes on success.
func (h *Hub) authorizedSubscribe(ctx context.Context, c *Connection, topic string) error {
	for {
		h.mu.RLock()
		gen := h.revocations[c.UserID]
		h.mu.RUnlock()

		if err := h.authz.AuthorizeTopic(ctx, c.user, topic); err != nil {
			return err
		}

		h.mu.Lock()
		if h.revocations[c.UserID] == gen {
			h.subscribeLocked(c, topic)
			h.mu.Unlock()
			return nil
		}
		h.mu.Unlock()
	}
}

func (h *Hub) subscribeLocked(c *Connection, topic string) {
	if _, live := h.conns[c.ID]; !live {
		return
	}
	if !c.addTopic(topic) {
		return
	}
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[string]*Connection)
		h.topics[topic] = subs
	}
	subs[c.ID] = c
}

func (h *Hub) unsubscribe(c *Connection, topic string) {
	if !c.removeTopic(topic) {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unindex(topic, c.ID)
}

func (h *Hub) unindex(topic, connID string) {
	subs := h.topics[topic]
	delete(subs, connID)
	if len(subs) == 0 {
		delete(h.topics, topic)
	}
}

// Broadcast pushes e to every connection subscribed to e.Topic. Slow
// consumers are dropped.
func (h *Hub) Broadcast(e events.Event) int {
	frame, err := json.Marshal(Frame{Op: "event", Type: e.Type, Topic: e.Topic, Data: e.Data, At: e.At.UnixMilli()})
	if err != nil {
		h.logger.Error("failed to encode event frame", zap.String("type", e.Type), zap.Error(err))
		return 0
	}

	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.topics[e.Topic]))
	for _, c := range h.topics[e.Topic] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.enqueue(frame) {
			delivered++
			continue
		}
		h.logger.Warn("dropping slow gateway client", zap.String("conn_id", c.ID), zap.String("user_id", c.UserID))
		h.remove(c)
	}

	if e.Type == events.MemberLeft {
		if userID, ok := strings.CutPrefix(e.Topic, events.UserTopic("")); ok && userID != "" {
			h.revoke(userID)
		}
	}
	return delivered
}

// revoke re-authorizes every subscription the user holds on this node and
// drops the ones that no longer pass. Clients get a "revoked" frame per
// dropped topic.
func (h *Hub) revoke(userID string) {
	h.mu.Lock()
	h.revocations[userID]++
	var conns []*Connection
	for _, c := range h.conns {
		if c.UserID == userID {
			conns = append(conns, c)
		}
	}
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), authorizeTimeout)
	defer cancel()

	own := events.UserTopic(userID)
	verdicts := make(map[string]error)
	for _, c := range conns {
		for _, topic := range c.Topics() {
			if topic == own {
				continue
			}
			err, seen := verdicts[topic]
			if !seen {
				err = h.authz.AuthorizeTopic(ctx, c.user, topic)
				verdicts[topic] = err
			}
			if err == nil {
				continue
			}
			h.unsubscribe(c, topic)
			h.push(c, Frame{Op: "revoked", Topic: topic, Error: err.Error()})
			h.logger.Info("gateway subscription revoked",
				zap.String("conn_id", c.ID),
				zap.String("user_id", userID),
				zap.String("topic", topic),
				zap.Error(err),
			)
		}
	}
}

// push queues a single frame for c, dropping c if it cannot keep up.
func (h *Hub) push(c *Connection, f Frame) {
	raw, err := json.Marshal(f)
	if err != nil {
		return
	}
	if !c.enqueue(raw) {
		h.remove(c)
	}
}

// Run feeds events from src into the hub until ctx is done.
func (h *Hub) Run(ctx context.Context, src events.Source) error {
	return src.Run(ctx, func(e events.Event) { h.Broadcast(e) })
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Shutdown closes every connection.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		h.remove(c)
	}
}
