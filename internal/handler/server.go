package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/Guildhall/internal/service"
	logger "github.com/Gopher0727/Guildhall/middleware/log"
)

type ServerHandler struct {
	responder
	servers  service.IServerService
	channels service.IChannelService
}

func NewServerHandler(servers service.IServerService, channels service.IChannelService, log *logger.Logger) *ServerHandler {
	return &ServerHandler{responder: responder{log: log}, servers: servers, channels: channels}
}

// ListServers returns the servers the caller belongs to
func (h *ServerHandler) ListServers(c *gin.Context) {
	user, ok := h.user(c)
	if !ok {
		return
	}
	servers, err := h.servers.List(c.Request.Context(), user)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, servers)
}

// CreateServer handles server creation
func (h *ServerHandler) CreateServer(c *gin.Context) {
	user, ok := h.user(c)
	if !ok {
		return
	}
	var req service.CreateServerRequest
	if !h.bindJSON(c, &req) {
		return
	}
	res, err := h.servers.Create(c.Request.Context(), user, &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *ServerHandler) GetServer(c *gin.Context) {
	user, ok := h.user(c)
	if !ok {
		return
	}
	server, err := h.servers.Get(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, server)
}

func (h *ServerHandler) DeleteServer(c *gin.Context) {
	user, ok := h.user(c)
	if !ok {
		return
	}
	if err := h.servers.Remove(c.Request.Context(), user, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Members lists the server's members with their call toggles
func (h *ServerHandler) Members(c *gin.Context) {
	user, ok := h.user(c)
	if !ok {
		return
	}
	members, err := h.servers.Members(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, members)
}

func (h *ServerHandler) Leave(c *gin.Context) {
	user, ok := h.user(c)
	if !ok {
		return
	}
	if err := h.servers.Leave(c.Request.Context(), user, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ServerHandler) ListChannels(c *gin.Context) {
	user, ok := h.user(c)
	if !ok {
		return
	}
	channels, err := h.channels.List(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, channels)
}

func (h *ServerHandler) CreateChannel(c *gin.Context) {
	user, ok := h.user(c)
	if !ok {
		return
	}
	var req service.CreateChannelRequest
	if !h.bindJSON(c, &req) {
		return
	}
	channel, err := h.channels.Create(c.Request.Context(), user, c.Param("id"), req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, channel)
}

func (h *ServerHandler) DeleteChannel(c *gin.Context) {
	user, ok := h.user(c)
	if !ok {
		return
	}
	if err := h.channels.Remove(c.Request.Context(), user, c.Param("id"), c.Param("channel_id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ServerHandler) GetChannel(c *gin.Context) {
	user, ok := h.user(c)
	if !ok {
		return
	}
	channel, err := h.channels.Get(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, channel)
}
