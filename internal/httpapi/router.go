package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/minchat/minchat/internal/common"
	"github.com/minchat/minchat/internal/httpapi/handlers"
	"github.com/minchat/minchat/internal/httpapi/middleware"
)

func NewRouter(h *handlers.Handler, authSecret string, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.Recovery(log))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, "not_found", "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	api := r.Group("/")
	if authSecret != "" {
		api.Use(middleware.AuthRequired(authSecret))
	}

	api.POST("/conversations", h.CreateConversation)
	api.GET("/conversations", h.ListConversations)
	api.DELETE("/conversations/:id", h.DeleteConversation)
	api.GET("/conversations/:id/messages", h.GetConversationMessages)
	api.POST("/conversations/:id/messages", h.SendMessage)
	api.POST("/conversations/:id/messages/async", h.SendMessageAsync)
	api.GET("/jobs/:id", h.GetJob)

	return r
}
