package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gallery/internal/config"
	"gallery/internal/ids"
	"gallery/internal/media/sniffer"
	"gallery/internal/media/svg"
	"gallery/internal/metrics"
	"gallery/internal/models"
	"gallery/internal/queue"
	"gallery/internal/repository"
	"gallery/internal/storage"
)

// MetadataStore holds image records. GetByID and Delete return
// repository.ErrImageNotFound for unknown ids.
type MetadataStore interface {
	Create(ctx context.Context, image models.ImageRecord) error
	GetByID(ctx context.Context, id string) (models.ImageRecord, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]models.ImageRecord, error)
	ExistsByStorageKey(ctx context.Context, key string) (bool, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, task queue.Task) error
}

type UploadPolicy struct {
	MaxBytes int64
	Allowed  map[sniffer.MediaType]struct{}
	Enforce  bool
}

func NewUploadPolicy(cfg config.UploadConfig) UploadPolicy {
	return UploadPolicy{
		MaxBytes: cfg.MaxBytes,
		Allowed:  sniffer.ParseTypes(cfg.AllowedTypes),
		Enforce:  cfg.Enforce,
	}
}

type Deps struct {
	Blobs   storage.BlobStore
	Records MetadataStore
	// Compensate turns on cleanup of half-finished workflows: an uploaded
	// object whose record could not be written is deleted again, and work that
	// cannot be finished inline is handed to Reconciler.
	Compensate bool
	Reconciler Enqueuer
	Policy     UploadPolicy
	Log        zerolog.Logger
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

type GalleryService struct {
	blobs      storage.BlobStore
	records    MetadataStore
	compensate bool
	reconciler Enqueuer
	policy     UploadPolicy
	log        zerolog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewGalleryService(deps Deps) *GalleryService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &GalleryService{
		blobs:      deps.Blobs,
		records:    deps.Records,
		compensate: deps.Compensate,
		reconciler: deps.Reconciler,
		policy:     deps.Policy,
		log:        deps.Log,
		metrics:    deps.Metrics,
		now:        now,
	}
}

type UploadInput struct {
	Filename string
	Header   textproto.MIMEHeader
	Reader   io.Reader
}

type UploadResult struct {
	Record models.ImageRecord
	URL    string
}

// Upload stores the payload on the media host and then records it. The record
// is only written after the object exists, so a failed object upload never
// leaves a record behind.
func (s *GalleryService) Upload(ctx context.Context, input UploadInput) (UploadResult, error) {
	if input.Reader == nil {
		s.metrics.Workflow("upload", "no_file")
		return UploadResult{}, ErrNoFile
	}

	data, err := s.readPayload(input.Reader)
	if err != nil {
		s.metrics.Workflow("upload", "invalid")
		return UploadResult{}, err
	}

	blob, err := s.describe(data, input.Header)
	if err != nil {
		s.metrics.Workflow("upload", "invalid")
		return UploadResult{}, err
	}

	object, err := s.blobs.Upload(ctx, blob)
	if err != nil {
		s.metrics.Workflow("upload", "blob_error")
		return UploadResult{}, fmt.Errorf("%w: store object: %w", ErrUploadFailed, err)
	}

	record := models.ImageRecord{
		ID:         ids.New(),
		URL:        object.URL,
		StorageKey: object.Key,
		UploadedAt: s.now().UTC().Truncate(time.Microsecond),
	}

	if err := s.records.Create(ctx, record); err != nil {
		s.metrics.Workflow("upload", "record_error")
		s.discardOrphan(ctx, object.Key)
		return UploadResult{}, fmt.Errorf("%w: save record: %w", ErrUploadFailed, err)
	}

	s.metrics.Workflow("upload", "ok")
	return UploadResult{Record: record, URL: record.URL}, nil
}

func (s *GalleryService) readPayload(r io.Reader) ([]byte, error) {
	if s.policy.Enforce && s.policy.MaxBytes > 0 {
		r = io.LimitReader(r, s.policy.MaxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read payload: %w", ErrUploadFailed, err)
	}
	if len(data) == 0 {
		return nil, ErrNoFile
	}
	if s.policy.Enforce && s.policy.MaxBytes > 0 && int64(len(data)) > s.policy.MaxBytes {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

// describe works out the content type from the bytes themselves. With
// enforcement off any payload is accepted and falls back to the type the
// client declared. SVG is sanitized, and declared types a browser would
// execute are stored as application/octet-stream.
func (s *GalleryService) describe(data []byte, header textproto.MIMEHeader) (storage.Blob, error) {
	detected, err := sniffer.DetectHead(data)
	if err == nil {
		if _, ok := s.policy.Allowed[detected.Type]; ok || !s.policy.Enforce {
			body := data
			if detected.Type == sniffer.TypeSVG {
				body, err = svg.Sanitize(data)
			}
			if err == nil {
				return storage.Blob{
					Reader:      bytes.NewReader(body),
					Size:        int64(len(body)),
					ContentType: detected.MIME,
					Extension:   detected.Extension(),
				}, nil
			}
		}
	}
	if s.policy.Enforce {
		return storage.Blob{}, ErrUnsupportedType
	}

	blob := storage.Blob{
		Reader:      bytes.NewReader(data),
		Size:        int64(len(data)),
		ContentType: "application/octet-stream",
	}
	if declared := sniffer.MimeTypeFromHTTP(http.Header(header)); declared != "" && !activeContent(declared) {
		blob.ContentType = declared
	}
	return blob, nil
}

var activeTypes = map[string]struct{}{
	"text/html":              {},
	"application/xhtml+xml":  {},
	"image/svg+xml":          {},
	"text/xml":               {},
	"application/xml":        {},
	"text/javascript":        {},
	"application/javascript": {},
	"application/ecmascript": {},
}

func activeContent(mime string) bool {
	_, ok := activeTypes[strings.ToLower(mime)]
	return ok
}

// discardOrphan removes an object whose record could not be written. A failed
// Create may still have committed, so the object is only removed once the store
// confirms no record points at it. The request may already be cancelled, so
// cleanup runs on a detached context.
func (s *GalleryService) discardOrphan(ctx context.Context, key string) {
	if !s.compensate {
		s.log.Warn().Str("storage_key", key).Msg("record write failed, object left orphaned")
		return
	}

	ctx = context.WithoutCancel(ctx)
	task := queue.Task{Type: queue.TaskOrphanBlob, StorageKey: key}

	referenced, err := s.records.ExistsByStorageKey(ctx, key)
	if err != nil {
		s.log.Error().Err(err).Str("storage_key", key).Msg("check record for orphaned object failed")
		s.enqueue(ctx, task)
		return
	}
	if referenced {
		s.log.Warn().Str("storage_key", key).Msg("record write reported failure but the record exists, object kept")
		return
	}

	if err := s.blobs.Delete(ctx, key); err != nil {
		s.log.Error().Err(err).Str("storage_key", key).Msg("orphaned object removal failed")
		s.enqueue(ctx, task)
		return
	}
	s.log.Info().Str("storage_key", key).Msg("orphaned object removed")
}

// Delete removes the stored object first and the record second. When the
// object cannot be removed the record is kept, so the delete can be retried.
func (s *GalleryService) Delete(ctx context.Context, id string) error {
	record, err := s.records.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrImageNotFound) {
			s.metrics.Workflow("delete", "not_found")
			return ErrNotFound
		}
		s.metrics.Workflow("delete", "record_error")
		return fmt.Errorf("%w: lookup record: %w", ErrDeleteFailed, err)
	}

	if err := s.blobs.Delete(ctx, record.StorageKey); err != nil {
		s.metrics.Workflow("delete", "blob_error")
		return fmt.Errorf("%w: delete object: %w", ErrDeleteFailed, err)
	}

	if err := s.records.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrImageNotFound) {
			s.metrics.Workflow("delete", "not_found")
			return ErrNotFound
		}
		s.metrics.Workflow("delete", "record_error")
		if s.compensate {
			s.enqueue(context.WithoutCancel(ctx), queue.Task{Type: queue.TaskStaleRecord, ImageID: id, StorageKey: record.StorageKey})
		}
		return fmt.Errorf("%w: delete record: %w", ErrDeleteFailed, err)
	}

	s.metrics.Workflow("delete", "ok")
	return nil
}

// List returns every record, newest upload first.
func (s *GalleryService) List(ctx context.Context) ([]models.ImageRecord, error) {
	records, err := s.records.List(ctx)
	if err != nil {
		s.metrics.Workflow("list", "error")
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	s.metrics.Workflow("list", "ok")
	return records, nil
}

func (s *GalleryService) enqueue(ctx context.Context, task queue.Task) {
	if s.reconciler == nil {
		s.log.Warn().Str("task", task.Type).Str("image_id", task.ImageID).Str("storage_key", task.StorageKey).Msg("no reconciler configured, task dropped")
		return
	}
	if err := s.reconciler.Enqueue(ctx, task); err != nil {
		s.log.Error().Err(err).Str("task", task.Type).Str("image_id", task.ImageID).Str("storage_key", task.StorageKey).Msg("enqueue reconcile task failed")
		return
	}
	s.log.Info().Str("task", task.Type).Str("image_id", task.ImageID).Str("storage_key", task.StorageKey).Msg("reconcile task enqueued")
}
