package models

import "time"

// ImageRecord is the metadata kept for one stored image. StorageKey is the
// handle the media host needs to delete the object and is never sent to clients.
type ImageRecord struct {
	ID         string
	URL        string
	StorageKey string
	UploadedAt time.Time
}
