package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/Guildhall/internal/model"
	"github.com/Gopher0727/Guildhall/internal/service"
	logger "github.com/Gopher0727/Guildhall/middleware/log"
)

// MessageHandler serves messages and typing state for both channels and
// direct messages. Route constructors take the conversation kind.
type MessageHandler struct {
	responder
	messages service.IMessageService
	typing   service.ITypingService
}

func NewMessageHandler(messages service.IMessageService, typing service.ITypingService, log *logger.Logger) *MessageHandler {
	return &MessageHandler{responder: responder{log: log}, messages: messages, typing: typing}
}

type listMessagesQuery struct {
	Before string `form:"before"`
	Limit  int    `form:"limit" binding:"omitempty,min=1"`
}

func (h *MessageHandler) List(kind model.ConversationKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := h.user(c)
		if !ok {
			return
		}
		var q listMessagesQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var before int64
		if q.Before != "" {
			if before, ok = parseMessageID(c, q.Before); !ok {
				return
			}
		}
		conv := model.Conversation{Kind: kind, ID: c.Param("id")}
		page, err := h.messages.List(c.Request.Context(), user, conv, before, q.Limit)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

func (h *MessageHandler) Send(kind model.ConversationKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := h.user(c)
		if !ok {
			return
		}
		var req service.SendMessageRequest
		if !h.bindJSON(c, &req) {
			return
		}
		conv := model.Conversation{Kind: kind, ID: c.Param("id")}
		message, err := h.messages.Create(c.Request.Context(), user, conv, &req)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, message)
	}
}

func (h *MessageHandler) Delete(c *gin.Context) {
	user, ok := h.user(c)
	if !ok {
		return
	}
	id, ok := parseMessageID(c, c.Param("id"))
	if !ok {
		return
	}
	if err := h.messages.Remove(c.Request.Context(), user, id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Typing lists who else is typing in the conversation
func (h *MessageHandler) Typing(kind model.ConversationKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := h.user(c)
		if !ok {
			return
		}
		names, err := h.typing.List(c.Request.Context(), user, model.Conversation{Kind: kind, ID: c.Param("id")})
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"usernames": names})
	}
}

// StartTyping marks the caller as typing for the next few seconds
func (h *MessageHandler) StartTyping(kind model.ConversationKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := h.user(c)
		if !ok {
			return
		}
		expiresAt, err := h.typing.Upsert(c.Request.Context(), user, model.Conversation{Kind: kind, ID: c.Param("id")})
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"expires_at": expiresAt})
	}
}
