package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/Guildhall/internal/service"
	logger "github.com/Gopher0727/Guildhall/middleware/log"
)

// SocialHandler serves direct message conversations and friends
type SocialHandler struct {
	responder
	dms     service.IDirectMessageService
	friends service.IFriendService
}

func NewSocialHandler(dms service.IDirectMessageService, friends service.IFriendService, log *logger.Logger) *SocialHandler {
	return &SocialHandler{responder: responder{log: log}, dms: dms, friends: friends}
}

func (h *SocialHandler) ListDMs(c *gin.Context) {
	user, ok := h.user(c)
	if !ok {
		return
	}
	dms, err := h.dms.List(c.Request.Context(), user)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dms)
}

func (h *SocialHandler) OpenDM(c *gin.Context) {
	user, ok := h.user(c)
	if !ok {
		return
	}
	var req service.OpenDirectMessageRequest
	if !h.bindJSON(c, &req) {
		return
	}
	dm, err := h.dms.Open(c.Request.Context(), user, req.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dm)
}

func (h *SocialHandler) GetDM(c *gin.Context) {
	user, ok := h.user(c)
	if !ok {
		return
	}
	dm, err := h.dms.Get(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dm)
}

func (h *SocialHandler) ListFriends(c *gin.Context) {
	user, ok := h.user(c)
	if !ok {
		return
	}
	friends, err := h.friends.List(c.Request.Context(), user)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, friends)
}

func (h *SocialHandler) PendingFriends(c *gin.Context) {
	user, ok := h.user(c)
	if !ok {
		return
	}
	pending, err := h.friends.Pending(c.Request.Context(), user)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pending)
}

func (h *SocialHandler) RequestFriend(c *gin.Context) {
	user, ok := h.user(c)
	if !ok {
		return
	}
	var req service.FriendRequest
	if !h.bindJSON(c, &req) {
		return
	}
	friend, err := h.friends.Request(c.Request.Context(), user, req.Username)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, friend)
}

func (h *SocialHandler) RespondFriend(c *gin.Context) {
	user, ok := h.user(c)
	if !ok {
		return
	}
	var req service.RespondFriendRequest
	if !h.bindJSON(c, &req) {
		return
	}
	friend, err := h.friends.Respond(c.Request.Context(), user, c.Param("id"), *req.Accept)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, friend)
}
