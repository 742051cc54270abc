package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/Guildhall/internal/service"
	logger "github.com/Gopher0727/Guildhall/middleware/log"
)

// MediaHandler serves uploads and call state
type MediaHandler struct {
	responder
	storage service.IStorageService
	calls   service.ICallService
}

func NewMediaHandler(storage service.IStorageService, calls service.ICallService, log *logger.Logger) *MediaHandler {
	return &MediaHandler{responder: responder{log: log}, storage: storage, calls: calls}
}

// CreateUpload returns a presigned upload URL and its storage id
func (h *MediaHandler) CreateUpload(c *gin.Context) {
	user, ok := h.user(c)
	if !ok {
		return
	}
	slot, err := h.storage.GenerateUploadURL(c.Request.Context(), user)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, slot)
}

func (h *MediaHandler) DeleteUpload(c *gin.Context) {
	user, ok := h.user(c)
	if !ok {
		return
	}
	if err := h.storage.Remove(c.Request.Context(), user, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *MediaHandler) CallToken(c *gin.Context) {
	user, ok := h.user(c)
	if !ok {
		return
	}
	token, err := h.calls.Token(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, token)
}

func (h *MediaHandler) SetCallState(c *gin.Context) {
	user, ok := h.user(c)
	if !ok {
		return
	}
	var req service.CallStateRequest
	if !h.bindJSON(c, &req) {
		return
	}
	member, err := h.calls.SetMemberState(c.Request.Context(), user, c.Param("id"), *req.Audio, *req.Video)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, member)
}
