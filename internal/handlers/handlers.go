package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"gallery/internal/config"
	"gallery/internal/models"
	"gallery/internal/service"
)

// Gallery is the workflow surface the HTTP layer drives.
type Gallery interface {
	Upload(ctx context.Context, input service.UploadInput) (service.UploadResult, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]models.ImageRecord, error)
}

// Pinger is a dependency the health endpoint probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HandlerSet struct {
	log     zerolog.Logger
	cfg     *config.AppConfig
	gallery Gallery
	checks  map[string]Pinger
}

func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, gallery Gallery, checks map[string]Pinger) HandlerSet {
	return HandlerSet{
		log:     log,
		cfg:     cfg,
		gallery: gallery,
		checks:  checks,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	router.POST("/upload", h.UploadImage)
	router.GET("/images", h.ListImages)
	router.DELETE("/images/:id", h.DeleteImage)
}
