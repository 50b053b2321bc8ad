package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/healthlink/healthlink-backend/internal/common"
	"github.com/healthlink/healthlink-backend/internal/config"
	"github.com/healthlink/healthlink-backend/internal/httpapi/handlers"
	"github.com/healthlink/healthlink-backend/internal/httpapi/middleware"
	"github.com/healthlink/healthlink-backend/internal/relay"
	"github.com/healthlink/healthlink-backend/internal/store/rabbitmq"
	"github.com/healthlink/healthlink-backend/internal/store/redisstore"
	"gorm.io/gorm"
)

func NewRouter(db *gorm.DB, cfg config.Config, rds *redisstore.Store, rly relay.Relay, rabbit *rabbitmq.Publisher) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())

	h := handlers.NewHandler(db, cfg, rds, rly, rabbit)

	r.GET("/ping", h.Ping)

	// captcha
	r.POST("/captcha", h.SendCaptcha)

	// registration + auth
	r.POST("/users", h.CreateUser)
	r.POST("/login", h.Login)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.GET("/me", h.Me)

	// appointments
	authGroup.GET("/doctors", h.ListDoctors)
	authGroup.POST("/appointments", h.CreateAppointment)
	authGroup.GET("/appointments", h.ListAppointments)
	authGroup.PATCH("/appointments/:id/status", h.UpdateAppointmentStatus)

	// chat (JWT required)
	authGroup.POST("/conversations", h.CreateConversation)
	authGroup.GET("/conversations", h.ListConversations)
	authGroup.GET("/conversations/:conversation_id/messages", h.ListConversationMessages)
	authGroup.POST("/conversations/:conversation_id/messages", h.SendConversationMessage)
	authGroup.POST("/relay/auth", h.RelayAuth)

	return r
}
