package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/healthlink/healthlink-backend/internal/chat"
	"github.com/healthlink/healthlink-backend/internal/common"
	"github.com/healthlink/healthlink-backend/internal/relay"
)

// failChat maps the chat error taxonomy onto HTTP statuses. Anything outside
// the taxonomy is a persistence/internal failure.
func failChat(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrValidation), errors.Is(err, chat.ErrInvalidRole):
		common.Fail(c, http.StatusBadRequest, 10010, err.Error())
	case errors.Is(err, chat.ErrUnauthenticated):
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
	case errors.Is(err, chat.ErrForbidden):
		common.Fail(c, http.StatusForbidden, 40303, err.Error())
	case errors.Is(err, chat.ErrNotFound):
		common.Fail(c, http.StatusNotFound, 40405, err.Error())
	default:
		failInternal(c, "internal error")
	}
}

type createConversationReq struct {
	AppointmentID     uint64 `json:"appointment_id"`
	CounterpartUserID uint64 `json:"counterpart_user_id" binding:"required"`
}

func (h *Handler) CreateConversation(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req createConversationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	conv, err := h.ChatSvc.EnsureConversation(c.Request.Context(), uid, req.AppointmentID, req.CounterpartUserID)
	if err != nil {
		failChat(c, err)
		return
	}

	common.OK(c, gin.H{
		"conversation": conv,
		"channel":      relay.ChannelForConversation(conv.ConversationID),
	})
}

func (h *Handler) ListConversations(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	summaries, err := h.ChatSvc.ListConversations(c.Request.Context(), uid)
	if err != nil {
		failChat(c, err)
		return
	}

	common.OK(c, gin.H{"conversations": summaries})
}

func (h *Handler) ListConversationMessages(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	conversationID := c.Param("conversation_id")
	msgs, err := h.ChatSvc.ListMessages(c.Request.Context(), uid, conversationID)
	if err != nil {
		failChat(c, err)
		return
	}

	common.OK(c, gin.H{"messages": msgs})
}

type sendMessageReq struct {
	Body string `json:"body"`
}

func (h *Handler) SendConversationMessage(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	conversationID := c.Param("conversation_id")
	msg, err := h.ChatSvc.Append(c.Request.Context(), uid, conversationID, req.Body)
	if err != nil {
		failChat(c, err)
		return
	}

	// 201 once the durable write confirmed; broadcast outcome is not part of
	// the send's success signal.
	common.Created(c, gin.H{"message": msg})
}

type relayAuthReq struct {
	SocketID    string `json:"socket_id" binding:"required"`
	ChannelName string `json:"channel_name" binding:"required"`
}

// RelayAuth intermediates the relay's private-channel handshake: it verifies
// the requesting user is a participant of the channel's conversation, then
// signs the grant the relay requires. Subscribers that merely know a
// conversation id are turned away here.
func (h *Handler) RelayAuth(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req relayAuthReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	conversationID, ok := relay.ConversationForChannel(req.ChannelName)
	if !ok {
		common.Fail(c, http.StatusBadRequest, 10011, "unknown channel")
		return
	}

	if err := h.ChatSvc.AuthorizeParticipant(c.Request.Context(), uid, conversationID); err != nil {
		failChat(c, err)
		return
	}

	grant, err := h.Relay.AuthorizeSubscription(req.SocketID, req.ChannelName)
	if err != nil {
		failInternal(c, "failed to authorize subscription")
		return
	}

	common.OK(c, grant)
}
