package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"go.uber.org/zap"

	"github.com/Gopher0727/Guildhall/internal/model"
	"github.com/Gopher0727/Guildhall/internal/service"
	"github.com/Gopher0727/Guildhall/middleware/jwt"
	logger "github.com/Gopher0727/Guildhall/middleware/log"
)

// Context keys set by the auth middleware.
const (
	ContextClaimsKey = "claims"
	ContextUserKey   = "user"
	ContextUserIDKey = "user_id"
)

// RegisterValidators adds the custom binding tags to gin's validator.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected binding validator engine")
	}
	return v.RegisterValidation("notblank", validators.NotBlank)
}

// CurrentUser returns the user resolved by the auth middleware, or nil.
func CurrentUser(c *gin.Context) *model.User {
	if v, ok := c.Get(ContextUserKey); ok {
		if u, ok := v.(*model.User); ok {
			return u
		}
	}
	return nil
}

func currentClaims(c *gin.Context) *jwt.Claims {
	if v, ok := c.Get(ContextClaimsKey); ok {
		if claims, ok := v.(*jwt.Claims); ok {
			return claims
		}
	}
	return nil
}

var errorStatus = []struct {
	err    error
	status int
}{
	{service.ErrUnauthorized, http.StatusUnauthorized},
	{service.ErrInvalidCredentials, http.StatusUnauthorized},
	{service.ErrLocalAuthDisabled, http.StatusNotFound},

	{service.ErrUserNotFound, http.StatusNotFound},
	{service.ErrServerNotFound, http.StatusNotFound},
	{service.ErrChannelNotFound, http.StatusNotFound},
	{service.ErrMessageNotFound, http.StatusNotFound},
	{service.ErrInviteNotFound, http.StatusNotFound},
	{service.ErrDirectMessageNotFound, http.StatusNotFound},
	{service.ErrAttachmentNotFound, http.StatusNotFound},
	{service.ErrUploadNotFound, http.StatusNotFound},
	{service.ErrFriendRequestNotFound, http.StatusNotFound},

	{service.ErrNotMember, http.StatusForbidden},
	{service.ErrNotOwner, http.StatusForbidden},
	{service.ErrNotSender, http.StatusForbidden},
	{service.ErrNotAddressee, http.StatusForbidden},

	{service.ErrInviteExpired, http.StatusGone},
	{service.ErrInviteExhausted, http.StatusGone},

	{service.ErrAlreadyMember, http.StatusConflict},
	{service.ErrAlreadyRequested, http.StatusConflict},
	{service.ErrAlreadyResponded, http.StatusConflict},
	{service.ErrUserAlreadyExists, http.StatusConflict},
	{service.ErrOwnerCannotLeave, http.StatusConflict},
	{service.ErrDefaultChannelProtected, http.StatusConflict},
	{service.ErrUploadInUse, http.StatusConflict},

	{service.ErrCannotMessageSelf, http.StatusBadRequest},
	{service.ErrCannotBefriendSelf, http.StatusBadRequest},
	{service.ErrValidation, http.StatusBadRequest},

	{service.ErrMediaNotConfigured, http.StatusServiceUnavailable},
	{service.ErrStorageNotConfigured, http.StatusServiceUnavailable},
}

// StatusFor maps a service error onto an HTTP status.
func StatusFor(err error) int {
	for _, m := range errorStatus {
		if errors.Is(err, m.err) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// responder is embedded by every handler for uniform error bodies.
type responder struct {
	log *logger.Logger
}

func (r responder) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		r.log.ErrorContext(c.Request.Context(), "request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// bindJSON decodes the body into req and answers 400 on failure. Field
// validation failures are reported as a field -> tag map.
func (r responder) bindJSON(c *gin.Context, req any) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, e := range verrs {
			fields[e.Field()] = e.Tag()
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": service.ErrValidation.Error(), "fields": fields})
		return false
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	return false
}

// user returns the authenticated user or answers 401.
func (r responder) user(c *gin.Context) (*model.User, bool) {
	u := CurrentUser(c)
	if u == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return nil, false
	}
	return u, true
}

func parseMessageID(c *gin.Context, raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return 0, false
	}
	return id, true
}
