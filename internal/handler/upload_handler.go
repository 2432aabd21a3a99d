package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/converseapp/converse/internal/model"
	"github.com/converseapp/converse/pkg/storage"
)

// Max upload size: 50MB
const maxUploadSize = 50 << 20

// UploadHandler handles file uploads backing file messages
type UploadHandler struct {
	storage *storage.MinIOStorage
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(storage *storage.MinIOStorage) *UploadHandler {
	return &UploadHandler{storage: storage}
}

// UploadFile godoc
// @Summary Upload a file for a file message
// @Description Uploads to storage and returns the metadata (url, name, size, mime) to attach to a message.
// @Tags Upload
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "File to upload"
// @Success 200 {object} model.UploadResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 413 {object} model.ErrorResponse
// @Router /upload [post]
func (h *UploadHandler) UploadFile(c *gin.Context) {
	if h.storage == nil {
		c.JSON(http.StatusServiceUnavailable, model.ErrorResponse{Error: "File storage is not available"})
		return
	}

	// Limit request body size
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		if err.Error() == "http: request body too large" {
			c.JSON(http.StatusRequestEntityTooLarge, model.ErrorResponse{Error: "File too large (max 50MB)"})
			return
		}
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "File is required", Message: err.Error()})
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	folder := determineFolder(contentType)

	result, err := h.storage.Upload(c.Request.Context(), file, header, folder)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: "Failed to upload file", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, model.UploadResponse{
		URL:      result.URL,
		FileName: result.FileName,
		FileSize: result.FileSize,
		MimeType: result.MimeType,
	})
}

// determineFolder buckets objects by rough content class
func determineFolder(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return "images"
	case strings.HasPrefix(contentType, "video/"):
		return "videos"
	case strings.HasPrefix(contentType, "audio/"):
		return "audio"
	default:
		return "files"
	}
}
