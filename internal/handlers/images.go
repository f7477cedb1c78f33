package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gallery/internal/ids"
	"gallery/internal/models"
	"gallery/internal/service"
)

type messageResponse struct {
	Message string `json:"message"`
}

type uploadResponse struct {
	URL     string `json:"url"`
	Message string `json:"message"`
}

type imageResponse struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	UploadDate time.Time `json:"uploadDate"`
}

func toImageResponse(record models.ImageRecord) imageResponse {
	return imageResponse{
		ID:         record.ID,
		URL:        record.URL,
		UploadDate: record.UploadedAt,
	}
}

// multipartOverhead is the room left for boundaries and part headers on top
// of the configured file size limit.
const multipartOverhead = 1 << 20

func (h HandlerSet) UploadImage(c *gin.Context) {
	if h.cfg.Upload.Enforce {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.Upload.MaxBytes+multipartOverhead)
	}

	header, err := c.FormFile(h.cfg.Upload.FormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusBadRequest, messageResponse{Message: "File is too large"})
			return
		}
		c.JSON(http.StatusBadRequest, messageResponse{Message: "No file uploaded"})
		return
	}

	file, err := header.Open()
	if err != nil {
		h.log.Error().Err(err).Str("filename", header.Filename).Msg("open upload failed")
		c.JSON(http.StatusInternalServerError, messageResponse{Message: "Upload failed"})
		return
	}
	defer file.Close()

	result, err := h.gallery.Upload(c.Request.Context(), service.UploadInput{
		Filename: header.Filename,
		Header:   header.Header,
		Reader:   file,
	})
	if err != nil {
		status, message := uploadError(err)
		if status >= http.StatusInternalServerError {
			h.log.Error().Err(err).Str("filename", header.Filename).Msg("upload failed")
		}
		c.JSON(status, messageResponse{Message: message})
		return
	}

	h.log.Info().
		Str("image_id", result.Record.ID).
		Str("url", result.URL).
		Int64("size", header.Size).
		Msg("image uploaded")

	c.JSON(http.StatusOK, uploadResponse{
		URL:     result.URL,
		Message: "Upload successful",
	})
}

func uploadError(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrNoFile):
		return http.StatusBadRequest, "No file uploaded"
	case errors.Is(err, service.ErrFileTooLarge):
		return http.StatusBadRequest, "File is too large"
	case errors.Is(err, service.ErrInvalidFile):
		return http.StatusBadRequest, "Invalid file type"
	default:
		return http.StatusInternalServerError, "Upload failed"
	}
}

func (h HandlerSet) ListImages(c *gin.Context) {
	records, err := h.gallery.List(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("list images failed")
		c.JSON(http.StatusInternalServerError, messageResponse{Message: "Error fetching images"})
		return
	}

	resp := make([]imageResponse, 0, len(records))
	for _, record := range records {
		resp = append(resp, toImageResponse(record))
	}
	c.JSON(http.StatusOK, resp)
}

func (h HandlerSet) DeleteImage(c *gin.Context) {
	id := c.Param("id")
	if !ids.Valid(id) {
		c.JSON(http.StatusNotFound, messageResponse{Message: "Image not found"})
		return
	}

	if err := h.gallery.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, messageResponse{Message: "Image not found"})
			return
		}
		h.log.Error().Err(err).Str("image_id", id).Msg("delete image failed")
		c.JSON(http.StatusInternalServerError, messageResponse{Message: "Error deleting image"})
		return
	}

	h.log.Info().Str("image_id", id).Msg("image deleted")
	c.JSON(http.StatusOK, messageResponse{Message: "Image deleted successfully"})
}
