package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/Guildhall/internal/handler"
	"github.com/Gopher0727/Guildhall/internal/model"
	"github.com/Gopher0727/Guildhall/internal/pkg/gateway"
	"github.com/Gopher0727/Guildhall/utils/ratelimit"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth     *handler.AuthHandler
	Servers  *handler.ServerHandler
	Invites  *handler.InviteHandler
	Messages *handler.MessageHandler
	Social   *handler.SocialHandler
	Media    *handler.MediaHandler
	Gateway  *gateway.Handler
}

// NewRouter builds the gin engine with global middleware and every route.
func NewRouter(mw *MiddlewareManager, h *Handlers, rules ratelimit.Rules) *gin.Engine {
	r := gin.New()
	r.Use(mw.Recovery(), mw.TraceID(), mw.Logger(), mw.CORS())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ws", h.Gateway.ServeWS)

	RegisterRoutes(r.Group("/api/v1"), mw, h, rules)
	return r
}

// RegisterRoutes registers all API routes
func RegisterRoutes(api *gin.RouterGroup, mw *MiddlewareManager, h *Handlers, rules ratelimit.Rules) {
	// Public routes
	auth := api.Group("/auth")
	{
		auth.POST("/register", mw.RateLimit(rules.Register), h.Auth.Register)
		auth.POST("/login", mw.RateLimit(rules.Login), h.Auth.Login)
		auth.POST("/refresh", mw.RateLimit(rules.Login), h.Auth.Refresh)
	}

	api.GET("/invites/:id", mw.OptionalAuth(), mw.RateLimit(rules.API), h.Invites.Preview)

	// Token only; the user may not exist yet
	api.POST("/users/sync", mw.JWTAuth(), mw.RateLimit(rules.API), h.Auth.Sync)

	// Protected routes
	protected := api.Group("")
	protected.Use(mw.JWTAuth(), mw.RequireUser(), mw.RateLimit(rules.API))

	protected.GET("/users/me", h.Auth.Me)

	servers := protected.Group("/servers")
	{
		servers.GET("", h.Servers.ListServers)
		servers.POST("", h.Servers.CreateServer)
		servers.GET("/:id", h.Servers.GetServer)
		servers.DELETE("/:id", h.Servers.DeleteServer)
		servers.GET("/:id/members", h.Servers.Members)
		servers.POST("/:id/leave", h.Servers.Leave)

		servers.GET("/:id/channels", h.Servers.ListChannels)
		servers.POST("/:id/channels", h.Servers.CreateChannel)
		servers.DELETE("/:id/channels/:channel_id", h.Servers.DeleteChannel)

		servers.POST("/:id/invites", h.Invites.Create)
		servers.GET("/:id/invites", h.Invites.List)

		servers.GET("/:id/call/token", h.Media.CallToken)
		servers.PUT("/:id/call/state", h.Media.SetCallState)
	}

	invites := protected.Group("/invites")
	{
		invites.POST("/:id/join", h.Invites.Join)
		invites.DELETE("/:id", h.Invites.Delete)
	}

	send := mw.RateLimit(rules.Message)

	channels := protected.Group("/channels")
	{
		channels.GET("/:id", h.Servers.GetChannel)
		channels.GET("/:id/messages", h.Messages.List(model.ConversationChannel))
		channels.POST("/:id/messages", send, h.Messages.Send(model.ConversationChannel))
		channels.GET("/:id/typing", h.Messages.Typing(model.ConversationChannel))
		channels.PUT("/:id/typing", h.Messages.StartTyping(model.ConversationChannel))
	}

	dms := protected.Group("/dms")
	{
		dms.GET("", h.Social.ListDMs)
		dms.POST("", h.Social.OpenDM)
		dms.GET("/:id", h.Social.GetDM)
		dms.GET("/:id/messages", h.Messages.List(model.ConversationDM))
		dms.POST("/:id/messages", send, h.Messages.Send(model.ConversationDM))
		dms.GET("/:id/typing", h.Messages.Typing(model.ConversationDM))
		dms.PUT("/:id/typing", h.Messages.StartTyping(model.ConversationDM))
	}

	protected.DELETE("/messages/:id", h.Messages.Delete)

	friends := protected.Group("/friends")
	{
		friends.GET("", h.Social.ListFriends)
		friends.GET("/pending", h.Social.PendingFriends)
		friends.POST("", h.Social.RequestFriend)
		friends.POST("/:id/respond", h.Social.RespondFriend)
	}

	storage := protected.Group("/storage")
	{
		storage.POST("/uploads", h.Media.CreateUpload)
		storage.DELETE("/uploads/:id", h.Media.DeleteUpload)
	}
}
