package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"gallery/internal/metrics"
	"gallery/internal/queue"
	"gallery/internal/repository"
	"gallery/internal/storage"
)

// RecordStore is the part of the image repository the worker needs.
type RecordStore interface {
	Delete(ctx context.Context, id string) error
	ExistsByStorageKey(ctx context.Context, key string) (bool, error)
}

// Processor repairs the two inconsistencies the request path can leave
// behind: objects without a record and records without an object.
type Processor struct {
	blobs       storage.BlobStore
	records     RecordStore
	orphanGrace time.Duration
	now         func() time.Time
	logger      zerolog.Logger
	metrics     *metrics.Metrics
}

func NewProcessor(blobs storage.BlobStore, records RecordStore, orphanGrace time.Duration, logger zerolog.Logger, m *metrics.Metrics) *Processor {
	return &Processor{
		blobs:       blobs,
		records:     records,
		orphanGrace: orphanGrace,
		now:         time.Now,
		logger:      logger,
		metrics:     m,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	task, err := queue.DecodeTask(msg)
	if err != nil {
		// A malformed entry will never succeed; let it be acked.
		p.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("dropping malformed task")
		return nil
	}

	switch task.Type {
	case queue.TaskOrphanBlob:
		err = p.handleOrphanBlob(ctx, task)
	case queue.TaskStaleRecord:
		err = p.handleStaleRecord(ctx, task)
	case queue.TaskSweep:
		err = p.handleSweep(ctx)
	default:
		p.logger.Warn().Str("type", task.Type).Msg("unknown task type")
		p.metrics.ReconcileTask(task.Type, "unknown")
		return nil
	}

	if err != nil {
		p.metrics.ReconcileTask(task.Type, "error")
		return fmt.Errorf("%s: %w", task.Type, err)
	}
	p.metrics.ReconcileTask(task.Type, "ok")
	return nil
}

func (p *Processor) handleOrphanBlob(ctx context.Context, task queue.Task) error {
	if task.StorageKey == "" {
		return nil
	}
	referenced, err := p.records.ExistsByStorageKey(ctx, task.StorageKey)
	if err != nil {
		return fmt.Errorf("check record: %w", err)
	}
	if referenced {
		p.logger.Info().Str("storage_key", task.StorageKey).Msg("object is referenced, keeping it")
		return nil
	}
	if err := p.blobs.Delete(ctx, task.StorageKey); err != nil {
		return err
	}
	p.logger.Info().Str("storage_key", task.StorageKey).Msg("orphaned object removed")
	return nil
}

func (p *Processor) handleStaleRecord(ctx context.Context, task queue.Task) error {
	if task.ImageID == "" {
		return nil
	}
	if err := p.records.Delete(ctx, task.ImageID); err != nil && !errors.Is(err, repository.ErrImageNotFound) {
		return err
	}
	p.logger.Info().Str("image_id", task.ImageID).Msg("stale record removed")
	return nil
}

// handleSweep deletes objects older than the grace period that no record
// points to. Younger objects may belong to an upload still in flight.
func (p *Processor) handleSweep(ctx context.Context) error {
	objects, err := p.blobs.List(ctx)
	if err != nil {
		return err
	}

	cutoff := p.now().Add(-p.orphanGrace)
	removed := 0
	var errs []error
	for _, obj := range objects {
		if obj.LastModified.After(cutoff) {
			continue
		}
		referenced, err := p.records.ExistsByStorageKey(ctx, obj.Key)
		if err != nil {
			errs = append(errs, fmt.Errorf("check %s: %w", obj.Key, err))
			continue
		}
		if referenced {
			continue
		}
		if err := p.blobs.Delete(ctx, obj.Key); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	p.logger.Info().
		Int("scanned", len(objects)).
		Int("removed", removed).
		Int("failed", len(errs)).
		Msg("sweep finished")
	return errors.Join(errs...)
}
