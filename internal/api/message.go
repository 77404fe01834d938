package api

import (
	"net/http"
	"strconv"

	"whatsapp-clone-demo/backend/internal/models"
	"whatsapp-clone-demo/backend/internal/presence"
	"whatsapp-clone-demo/backend/internal/service"
	apperrors "whatsapp-clone-demo/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

// MessageController exposes the message delivery pipeline over HTTP.
type MessageController struct {
	messages *service.MessageService
	typing   *presence.Tracker
}

func NewMessageController(messages *service.MessageService, typing *presence.Tracker) *MessageController {
	return &MessageController{messages: messages, typing: typing}
}

// RegisterRoutes mounts the message routes behind the given auth middleware.
func (mc *MessageController) RegisterRoutes(r *gin.Engine, auth gin.HandlerFunc) {
	group := r.Group("/api")
	group.Use(auth)
	{
		group.POST("/messages", mc.Send)
		group.GET("/messages/conversation/:userId", mc.Conversation)
		group.POST("/messages/delivered", mc.MarkDelivered)
		group.POST("/messages/:senderId/seen", mc.MarkSeen)
		group.PUT("/messages/:id", mc.Edit)
		group.DELETE("/messages/:id", mc.Delete)
		group.POST("/typing", mc.Typing)
	}
}

type sendRequest struct {
	ReceiverID uint               `json:"receiver_id" binding:"required"`
	Content    string             `json:"content"`
	Attachment *models.Attachment `json:"attachment"`
}

// Send creates a message and notifies the receiver's private channel.
func (mc *MessageController) Send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewValidationError("invalid request body"))
		return
	}

	message, err := mc.messages.Send(service.SendInput{
		SenderID:   c.GetUint("userID"),
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
		Attachment: req.Attachment,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, message)
}

// Conversation returns the ordered message history with another user.
func (mc *MessageController) Conversation(c *gin.Context) {
	otherID, err := parseID(c.Param("userId"))
	if err != nil {
		c.Error(apperrors.NewValidationError("invalid user id"))
		return
	}

	requesterID := c.GetUint("userID")

	var messages []models.Message
	if limit, _ := strconv.Atoi(c.Query("limit")); limit > 0 {
		offset, _ := strconv.Atoi(c.Query("offset"))
		messages, err = mc.messages.ConversationPage(requesterID, requesterID, otherID, limit, offset)
	} else {
		messages, err = mc.messages.Conversation(requesterID, requesterID, otherID)
	}
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": messages,
		"count":    len(messages),
	})
}

type deliveredRequest struct {
	MessageID uint `json:"message_id" binding:"required"`
}

// MarkDelivered records a delivery acknowledgement. Redundant acks return
// the unchanged message.
func (mc *MessageController) MarkDelivered(c *gin.Context) {
	var req deliveredRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewValidationError("message_id is required"))
		return
	}

	message, err := mc.messages.MarkDelivered(req.MessageID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, message)
}

// MarkSeen marks every unseen message from the given sender as seen.
func (mc *MessageController) MarkSeen(c *gin.Context) {
	senderID, err := parseID(c.Param("senderId"))
	if err != nil {
		c.Error(apperrors.NewValidationError("invalid sender id"))
		return
	}

	transitioned, err := mc.messages.MarkSeen(c.GetUint("userID"), senderID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "messages marked as seen",
		"count":   len(transitioned),
	})
}

type editRequest struct {
	Content string `json:"content" binding:"required"`
}

// Edit revises a message's content. Sender only.
func (mc *MessageController) Edit(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.Error(apperrors.NewValidationError("invalid message id"))
		return
	}

	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewValidationError("content is required"))
		return
	}

	message, err := mc.messages.EditContent(id, c.GetUint("userID"), req.Content)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, message)
}

// Delete removes a message. Either participant may delete.
func (mc *MessageController) Delete(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.Error(apperrors.NewValidationError("invalid message id"))
		return
	}

	if err := mc.messages.Delete(id, c.GetUint("userID")); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

type typingRequest struct {
	ReceiverID uint `json:"receiver_id" binding:"required"`
}

// Typing relays an ephemeral typing signal to the receiver.
func (mc *MessageController) Typing(c *gin.Context) {
	var req typingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewValidationError("receiver_id is required"))
		return
	}

	mc.typing.NotifyTyping(c.Request.Context(), c.GetUint("userID"), req.ReceiverID)

	c.JSON(http.StatusOK, gin.H{"status": "typing"})
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, apperrors.NewValidationError("invalid id")
	}
	return uint(id), nil
}
