package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gallery/internal/models"
)

var ErrImageNotFound = errors.New("image not found")

type ImageRepository struct {
	pool *pgxpool.Pool
}

func NewImageRepository(pool *pgxpool.Pool) *ImageRepository {
	return &ImageRepository{pool: pool}
}

func (r *ImageRepository) Create(ctx context.Context, image models.ImageRecord) error {
	const query = `
		INSERT INTO images (id, url, storage_key, uploaded_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.pool.Exec(ctx, query, image.ID, image.URL, image.StorageKey, image.UploadedAt)
	return err
}

func (r *ImageRepository) GetByID(ctx context.Context, id string) (models.ImageRecord, error) {
	const query = `
		SELECT id, url, storage_key, uploaded_at
		FROM images WHERE id = $1
	`

	var image models.ImageRecord
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&image.ID,
		&image.URL,
		&image.StorageKey,
		&image.UploadedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ImageRecord{}, ErrImageNotFound
		}
		return models.ImageRecord{}, err
	}
	return image, nil
}

// Delete removes the record. A record that is already gone, for example after
// a concurrent delete, reports ErrImageNotFound.
func (r *ImageRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM images WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrImageNotFound
	}
	return nil
}

// List returns every record, newest upload first.
func (r *ImageRepository) List(ctx context.Context) ([]models.ImageRecord, error) {
	const query = `
		SELECT id, url, storage_key, uploaded_at
		FROM images
		ORDER BY uploaded_at DESC, id DESC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	images := make([]models.ImageRecord, 0)
	for rows.Next() {
		var image models.ImageRecord
		if err := rows.Scan(
			&image.ID,
			&image.URL,
			&image.StorageKey,
			&image.UploadedAt,
		); err != nil {
			return nil, err
		}
		images = append(images, image)
	}
	return images, rows.Err()
}

func (r *ImageRepository) ExistsByStorageKey(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM images WHERE storage_key = $1)`, key).Scan(&exists)
	return exists, err
}

func (r *ImageRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
