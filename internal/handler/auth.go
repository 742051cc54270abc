package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/Guildhall/internal/service"
	logger "github.com/Gopher0727/Guildhall/middleware/log"
)

type AuthHandler struct {
	responder
	identity service.IIdentityService
}

func NewAuthHandler(identity service.IIdentityService, log *logger.Logger) *AuthHandler {
	return &AuthHandler{responder: responder{log: log}, identity: identity}
}

// Register handles local account creation
func (h *AuthHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if !h.bindJSON(c, &req) {
		return
	}
	resp, err := h.identity.Register(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Login handles local username/password login
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if !h.bindJSON(c, &req) {
		return
	}
	resp, err := h.identity.Login(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Refresh exchanges a token close to expiry for a new one
func (h *AuthHandler) Refresh(c *gin.Context) {
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
		return
	}
	refreshed, err := h.identity.Refresh(c.Request.Context(), token)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": refreshed})
}

// Sync creates or updates the caller from the verified token claims
func (h *AuthHandler) Sync(c *gin.Context) {
	user, err := h.identity.Sync(c.Request.Context(), currentClaims(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// Me returns the current user
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := h.user(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, user)
}
