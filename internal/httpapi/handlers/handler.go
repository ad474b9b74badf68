package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bravohq/dispatch/internal/common"
	"github.com/bravohq/dispatch/internal/config"
	"github.com/bravohq/dispatch/internal/conversation"
	"github.com/bravohq/dispatch/internal/events"
	"github.com/bravohq/dispatch/internal/orchestrate"
	"github.com/bravohq/dispatch/internal/queue"
	"github.com/bravohq/dispatch/internal/upload"
)

type Handler struct {
	DB       *gorm.DB
	Cfg      *config.Config
	Pipeline *orchestrate.Pipeline
	Convs    *conversation.Repo
	Uploads  *upload.Registry
	Store    *upload.LocalStore
	Rabbit   *queue.Publisher      // nil disables async jobs
	Notifier *events.RedisNotifier // nil disables the SSE endpoint
	Logger   *zap.Logger
}

func NewHandler(
	db *gorm.DB,
	cfg *config.Config,
	pipeline *orchestrate.Pipeline,
	convs *conversation.Repo,
	uploads *upload.Registry,
	store *upload.LocalStore,
	rabbit *queue.Publisher,
	notifier *events.RedisNotifier,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		DB:       db,
		Cfg:      cfg,
		Pipeline: pipeline,
		Convs:    convs,
		Uploads:  uploads,
		Store:    store,
		Rabbit:   rabbit,
		Notifier: notifier,
		Logger:   logger,
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}
