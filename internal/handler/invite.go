package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/Guildhall/internal/service"
	logger "github.com/Gopher0727/Guildhall/middleware/log"
)

type InviteHandler struct {
	responder
	invites service.IInviteService
}

func NewInviteHandler(invites service.IInviteService, log *logger.Logger) *InviteHandler {
	return &InviteHandler{responder: responder{log: log}, invites: invites}
}

func (h *InviteHandler) Create(c *gin.Context) {
	user, ok := h.user(c)
	if !ok {
		return
	}
	var req service.CreateInviteRequest
	if !h.bindJSON(c, &req) {
		return
	}
	invite, err := h.invites.Create(c.Request.Context(), user, c.Param("id"), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, invite)
}

func (h *InviteHandler) List(c *gin.Context) {
	user, ok := h.user(c)
	if !ok {
		return
	}
	invites, err := h.invites.List(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, invites)
}

// Preview answers 200 for any invite state. The caller is optional.
func (h *InviteHandler) Preview(c *gin.Context) {
	preview, err := h.invites.Preview(c.Request.Context(), CurrentUser(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

func (h *InviteHandler) Join(c *gin.Context) {
	user, ok := h.user(c)
	if !ok {
		return
	}
	member, err := h.invites.Join(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, member)
}

func (h *InviteHandler) Delete(c *gin.Context) {
	user, ok := h.user(c)
	if !ok {
		return
	}
	if err := h.invites.Remove(c.Request.Context(), user, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
