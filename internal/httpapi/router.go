package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bravohq/dispatch/internal/common"
	"github.com/bravohq/dispatch/internal/config"
	"github.com/bravohq/dispatch/internal/conversation"
	"github.com/bravohq/dispatch/internal/events"
	"github.com/bravohq/dispatch/internal/httpapi/handlers"
	"github.com/bravohq/dispatch/internal/httpapi/middleware"
	"github.com/bravohq/dispatch/internal/orchestrate"
	"github.com/bravohq/dispatch/internal/queue"
	"github.com/bravohq/dispatch/internal/upload"
)

func NewRouter(
	db *gorm.DB,
	cfg *config.Config,
	pipeline *orchestrate.Pipeline,
	convs *conversation.Repo,
	uploads *upload.Registry,
	store *upload.LocalStore,
	rabbit *queue.Publisher,
	notifier *events.RedisNotifier,
	logger *zap.Logger,
) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h := handlers.NewHandler(db, cfg, pipeline, convs, uploads, store, rabbit, notifier, logger)

	r.GET("/ping", h.Ping)

	r.POST("/chat", h.Chat)
	r.POST("/chat/async", h.ChatAsync)
	r.GET("/chat/jobs/:job_id", h.GetChatJob)

	r.POST("/conversations/new", h.NewConversation)
	r.GET("/conversations/:session_id", h.GetConversation)

	r.GET("/events", h.Events)

	// Uploads are scoped to the owning session by a signed token.
	uploadGroup := r.Group("/uploads")
	uploadGroup.Use(middleware.SessionAuth(cfg.Server.SessionSecret))
	uploadGroup.GET("/:filename", h.GetUpload)

	return r
}
