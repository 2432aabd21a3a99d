package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/converseapp/converse/internal/model"
	"github.com/converseapp/converse/internal/service"
)

// ReactionHandler handles reaction endpoints
type ReactionHandler struct {
	reactionService *service.ReactionService
}

func NewReactionHandler(reactionService *service.ReactionService) *ReactionHandler {
	return &ReactionHandler{reactionService: reactionService}
}

// AddReaction godoc
// @Summary React to a message with an emoji
// @Description A user may hold several different emojis on one message, but the same emoji only once.
// @Tags Reactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Message ID"
// @Param body body model.ReactionRequest true "Emoji"
// @Success 201 {object} model.Reaction
// @Failure 409 {object} model.ErrorResponse
// @Router /messages/{id}/reactions [post]
func (h *ReactionHandler) AddReaction(c *gin.Context) {
	msgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid message ID"})
		return
	}

	var req model.ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	reaction, err := h.reactionService.Add(msgID, userID, req.Emoji)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, reaction)
}

// RemoveReaction godoc
// @Summary Remove the caller's reaction from a message
// @Tags Reactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Message ID"
// @Param body body model.ReactionRequest true "Emoji"
// @Success 200 {object} model.SuccessResponse
// @Failure 404 {object} model.ErrorResponse
// @Router /messages/{id}/reactions [delete]
func (h *ReactionHandler) RemoveReaction(c *gin.Context) {
	msgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid message ID"})
		return
	}

	var req model.ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	if err := h.reactionService.Remove(msgID, userID, req.Emoji); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.SuccessResponse{Message: "Reaction removed"})
}

// ListReactions godoc
// @Summary Get a message's reactions grouped by emoji
// @Tags Reactions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Message ID"
// @Success 200 {array} model.ReactionGroup
// @Router /messages/{id}/reactions [get]
func (h *ReactionHandler) ListReactions(c *gin.Context) {
	msgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "Invalid message ID"})
		return
	}

	userID := c.MustGet("user_id").(uuid.UUID)
	groups, err := h.reactionService.ProjectCounts(msgID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, groups)
}
