package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/converseapp/converse/internal/apperr"
	"github.com/converseapp/converse/internal/model"
)

// respondError maps the service error taxonomy onto HTTP statuses.
// Everything unrecognized is a 500 so taxonomy gaps surface loudly.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound),
		errors.Is(err, apperr.ErrNotAdmin):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrForbidden),
		errors.Is(err, apperr.ErrNotParticipant),
		errors.Is(err, apperr.ErrPermissionDenied),
		errors.Is(err, apperr.ErrCannotRemoveOwner):
		status = http.StatusForbidden
	case errors.Is(err, apperr.ErrDuplicateReaction),
		errors.Is(err, apperr.ErrAlreadyMember),
		errors.Is(err, apperr.ErrAlreadyAdmin):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		c.JSON(status, model.ErrorResponse{Error: "Internal server error"})
		return
	}
	c.JSON(status, model.ErrorResponse{Error: err.Error()})
}
