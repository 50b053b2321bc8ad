package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/healthlink/healthlink-backend/internal/chat"
	"github.com/healthlink/healthlink-backend/internal/common"
	"github.com/healthlink/healthlink-backend/internal/config"
	"github.com/healthlink/healthlink-backend/internal/email"
	"github.com/healthlink/healthlink-backend/internal/httpapi/middleware"
	"github.com/healthlink/healthlink-backend/internal/identity"
	"github.com/healthlink/healthlink-backend/internal/models"
	"github.com/healthlink/healthlink-backend/internal/relay"
	"github.com/healthlink/healthlink-backend/internal/store/rabbitmq"
	"github.com/healthlink/healthlink-backend/internal/store/redisstore"
	"gorm.io/gorm"
)

type Handler struct {
	DB          *gorm.DB
	Cfg         config.Config
	Redis       *redisstore.Store
	SMTPSetting email.SMTPConfig
	Ids         *identity.Resolver
	ChatSvc     *chat.Service
	Relay       relay.Relay
	Rabbit      *rabbitmq.Publisher
}

func NewHandler(db *gorm.DB, cfg config.Config, rds *redisstore.Store, rly relay.Relay, rabbit *rabbitmq.Publisher) *Handler {
	ids := identity.NewResolver(db)
	chatSvc := chat.NewService(chat.NewRepo(db), ids, rly)
	return &Handler{
		DB:    db,
		Cfg:   cfg,
		Redis: rds,
		SMTPSetting: email.SMTPConfig{
			Host: cfg.SMTPHost,
			Port: cfg.SMTPPort,
			User: cfg.SMTPUser,
			Pass: cfg.SMTPPass,
			From: cfg.SMTPFrom,
		},
		Ids:     ids,
		ChatSvc: chatSvc,
		Relay:   rly,
		Rabbit:  rabbit,
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

func userIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}

// enqueueNotification records a durable notification row and hands its id to
// the queue. Best-effort from the caller's point of view: failures are logged,
// the triggering request is not.
func (h *Handler) enqueueNotification(ctx context.Context, user *models.User, subject, body string) {
	nid, err := common.NewULID()
	if err != nil {
		log.Printf("notification: ulid failed user=%d err=%v", user.ID, err)
		return
	}
	n := models.Notification{
		ID:      nid,
		UserID:  user.ID,
		Email:   user.Email,
		Subject: subject,
		Body:    body,
		Status:  models.NotificationQueued,
	}
	if err := h.DB.WithContext(ctx).Create(&n).Error; err != nil {
		log.Printf("notification: create failed user=%d err=%v", user.ID, err)
		return
	}
	if h.Rabbit == nil {
		return
	}
	if err := h.Rabbit.PublishNotification(ctx, n.ID); err != nil {
		log.Printf("notification: enqueue failed id=%s err=%v", n.ID, err)
	}
}

func failInternal(c *gin.Context, msg string) {
	common.Fail(c, http.StatusInternalServerError, 50001, msg)
}
