package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/converseapp/converse/internal/model"
	"github.com/converseapp/converse/internal/service"
)

// ChatHandler handles conversation and message endpoints
type ChatHandler struct {
	chatService    *service.ChatService
	receiptService *service.ReceiptService
}

func NewChatHandler(chatService *service.ChatService, receiptService *service.ReceiptService) *ChatHandler {
	return &ChatHandler{chatService: chatService, receiptService: receiptService}
}

// GetConversations godoc
// @Summary Get the current user's inbox
// @Description Conversations ordered by latest activity, each with last-message preview and unread count.
// @Tags Conversations
// @Produce json
// @Security BearerAuth
// @Success 200 {array} model.ConversationResponse
// @Router /conversations [get]
func (h *ChatHandler) GetConversations(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	conversations, err := h.chatService.GetConversations(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Failed to get conversations"})
		return
	}

	c.JSON(http.StatusOK, conversations)
}

// GetConversation godoc
// @Summary Get a specific conversation
// @Tags Conversations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Success 200 {object} model.Conversation
// @Router /conversations/{id} [get]
func (h *ChatHandler) GetConversation(c *gin.Context) {
	convID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid conversation ID"})
		return
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	conv, err := h.chatService.GetConversation(convID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, conv)
}

// SendMessage godoc
// @Summary Send a message into an existing conversation
// @Tags Messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param body body model.SendMessageRequest true "Send message request"
// @Success 201 {object} model.Message
// @Failure 403 {object} model.ErrorResponse
// @Router /conversations/{id}/messages [post]
func (h *ChatHandler) SendMessage(c *gin.Context) {
	convID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid conversation ID"})
		return
	}

	var req model.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	msg, err := h.chatService.Send(convID, userID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// SendDirectMessage godoc
// @Summary Send a direct message, lazily creating the conversation
// @Description First direct message between two users creates their conversation.
// @Tags Messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param peerId path string true "Peer user ID"
// @Param body body model.SendMessageRequest true "Send message request"
// @Success 201 {object} model.Message
// @Router /conversations/direct/{peerId}/messages [post]
func (h *ChatHandler) SendDirectMessage(c *gin.Context) {
	peerID, err := uuid.Parse(c.Param("peerId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid peer ID"})
		return
	}

	var req model.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	msg, err := h.chatService.SendDirect(userID, peerID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// SendAIMessage godoc
// @Summary Send a message into the caller's assistant thread
// @Tags Messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body model.SendMessageRequest true "Send message request"
// @Success 201 {object} model.Message
// @Router /conversations/ai/messages [post]
func (h *ChatHandler) SendAIMessage(c *gin.Context) {
	var req model.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	msg, err := h.chatService.SendToAIThread(userID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// GetMessages godoc
// @Summary Get conversation history
// @Description Messages ascending by creation time with reaction groups and read markers projected in.
// @Tags Messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conversation ID"
// @Param before query string false "Cursor: message ID to page before"
// @Param limit query int false "Number of messages to return (default: 50)"
// @Success 200 {array} model.MessageResponse
// @Failure 403 {object} model.ErrorResponse
// @Router /conversations/{id}/messages [get]
func (h *ChatHandler) GetMessages(c *gin.Context) {
	convID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid conversation ID"})
		return
	}

	var req model.MessageListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request"})
		return
	}

	var before *uuid.UUID
	if req.Before != "" {
		parsed, err := uuid.Parse(req.Before)
		if err == nil {
			before = &parsed
		}
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	messages, err := h.chatService.History(convID, userID, before, req.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, messages)
}

// DeleteMessage godoc
// @Summary Delete a message (sender only)
// @Tags Messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Message ID"
// @Success 200 {object} model.SuccessResponse
// @Failure 403 {object} model.ErrorResponse
// @Router /messages/{id} [delete]
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	msgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid message ID"})
		return
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	if err := h.chatService.DeleteMessage(msgID, userID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.SuccessResponse{Message: "Message deleted"})
}

// MarkRead godoc
// @Summary Mark a message as read
// @Description Upsert: re-marking refreshes the read timestamp and never errors.
// @Tags Messages
// @Produce json
// @Security BearerAuth
// @Param id path string true "Message ID"
// @Success 200 {object} model.MessageReadEvent
// @Router /messages/{id}/read [post]
func (h *ChatHandler) MarkRead(c *gin.Context) {
	msgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid message ID"})
		return
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	event, err := h.receiptService.MarkRead(msgID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, event)
}
