package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Gopher0727/Guildhall/config"
	"github.com/Gopher0727/Guildhall/internal/model"
	"github.com/Gopher0727/Guildhall/internal/pkg/events"
)

const (
	writeWait        = 10 * time.Second
	authorizeTimeout = 5 * time.Second
	maxClientFrame   = 4 << 10
)

// Authenticator resolves the token passed on the upgrade request.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, error)
}

// TopicAuthorizer decides whether user may subscribe to, or stay
// subscribed to, topic.
type TopicAuthorizer interface {
	AuthorizeTopic(ctx context.Context, user *model.User, topic string) error
}

// clientFrame is what clients send: subscribe, unsubscribe or ping.
type clientFrame struct {
	Op    string `json:"op"`
	Topic string `json:"topic"`
}

type Handler struct {
	hub       *Hub
	auth      Authenticator
	logger    *zap.Logger
	upgrader  websocket.Upgrader
	heartbeat time.Duration
	buffer    int
}

func NewHandler(hub *Hub, auth Authenticator, cfg *config.GatewayConfig, logger *zap.Logger) *Handler {
	heartbeat := time.Duration(cfg.HeartbeatInterval) * time.Second
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &Handler{
		hub:    hub,
		auth:   auth,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		heartbeat: heartbeat,
		buffer:    cfg.SendBuffer,
	}
}

// ServeWS upgrades GET /ws?token=... and runs the connection until the
// client goes away. The user's own topic is subscribed automatically.
func (h *Handler) ServeWS(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token is required"})
		return
	}
	user, err := h.auth.Authenticate(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := newConnection(user, ws, h.buffer)
	h.hub.add(conn)
	h.hub.subscribe(conn, events.UserTopic(user.ID))
	h.reply(conn, Frame{Op: "ready", Data: map[string]any{"user_id": user.ID, "connection_id": conn.ID}})

	log := h.logger.With(zap.String("conn_id", conn.ID), zap.String("user_id", user.ID))
	log.Info("gateway client connected")

	go h.writePump(conn, log)
	h.readPump(conn, log)
}

// readPump drops the client once nothing, pongs included, arrives for two
// heartbeats.
func (h *Handler) readPump(conn *Connection, log *zap.Logger) {
	defer func() {
		h.hub.remove(conn)
		log.Info("gateway client disconnected")
	}()

	conn.conn.SetReadLimit(maxClientFrame)
	_ = conn.conn.SetReadDeadline(time.Now().Add(2 * h.heartbeat))
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(2 * h.heartbeat))
	})

	for {
		_, raw, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("gateway read failed", zap.Error(err))
			}
			return
		}
		_ = conn.conn.SetReadDeadline(time.Now().Add(2 * h.heartbeat))

		var f clientFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			h.reply(conn, Frame{Op: "error", Error: "malformed frame"})
			continue
		}
		h.handleFrame(conn, f)
	}
}

func (h *Handler) handleFrame(conn *Connection, f clientFrame) {
	switch f.Op {
	case "ping":
		h.reply(conn, Frame{Op: "pong", At: time.Now().UnixMilli()})
	case "subscribe":
		ctx, cancel := context.WithTimeout(context.Background(), authorizeTimeout)
		defer cancel()
		if err := h.hub.authorizedSubscribe(ctx, conn, f.Topic); err != nil {
			h.reply(conn, Frame{Op: "error", Topic: f.Topic, Error: err.Error()})
			return
		}
		h.reply(conn, Frame{Op: "subscribed", Topic: f.Topic})
	case "unsubscribe":
		h.hub.unsubscribe(conn, f.Topic)
		h.reply(conn, Frame{Op: "unsubscribed", Topic: f.Topic})
	default:
		h.reply(conn, Frame{Op: "error", Error: "unknown op " + f.Op})
	}
}

func (h *Handler) reply(conn *Connection, f Frame) {
	h.hub.push(conn, f)
}

func (h *Handler) writePump(conn *Connection, log *zap.Logger) {
	ticker := time.NewTicker(h.heartbeat)
	defer func() {
		ticker.Stop()
		_ = conn.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-conn.send:
			_ = conn.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug("gateway write failed", zap.Error(err))
				h.hub.remove(conn)
				return
			}
		case <-ticker.C:
			_ = conn.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.hub.remove(conn)
				return
			}
		}
	}
}
