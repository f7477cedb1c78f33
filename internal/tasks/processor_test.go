package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gallery/internal/repository"
	"gallery/internal/storage"
)

type memBlobs struct {
	mu        sync.Mutex
	objects   map[string]storage.ObjectInfo
	deleteErr error
}

func (m *memBlobs) Upload(context.Context, storage.Blob) (storage.StoredObject, error) {
	return storage.StoredObject{}, errors.New("not used")
}

func (m *memBlobs) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.objects, key)
	return nil
}

func (m *memBlobs) List(context.Context) ([]storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]storage.ObjectInfo, 0, len(m.objects))
	for _, obj := range m.objects {
		out = append(out, obj)
	}
	return out, nil
}

type memRecords struct {
	byID  map[string]string
	byKey map[string]bool
}

func (m *memRecords) Delete(_ context.Context, id string) error {
	key, ok := m.byID[id]
	if !ok {
		return repository.ErrImageNotFound
	}
	delete(m.byID, id)
	delete(m.byKey, key)
	return nil
}

func (m *memRecords) ExistsByStorageKey(_ context.Context, key string) (bool, error) {
	return m.byKey[key], nil
}

func message(values map[string]interface{}) redis.XMessage {
	return redis.XMessage{ID: "1-0", Values: values}
}

func newProcessor(blobs *memBlobs, records *memRecords, now time.Time) *Processor {
	p := NewProcessor(blobs, records, time.Hour, zerolog.Nop(), nil)
	p.now = func() time.Time { return now }
	return p
}

func TestOrphanBlobRemovesUnreferencedObject(t *testing.T) {
	now := time.Now()
	blobs := &memBlobs{objects: map[string]storage.ObjectInfo{
		"a.jpg": {Key: "a.jpg"},
		"b.jpg": {Key: "b.jpg"},
	}}
	records := &memRecords{byID: map[string]string{"r1": "b.jpg"}, byKey: map[string]bool{"b.jpg": true}}
	p := newProcessor(blobs, records, now)

	require.NoError(t, p.Handle(context.Background(), message(map[string]interface{}{"type": "orphan_blob", "storageKey": "a.jpg"})))
	require.NoError(t, p.Handle(context.Background(), message(map[string]interface{}{"type": "orphan_blob", "storageKey": "b.jpg"})))

	assert.NotContains(t, blobs.objects, "a.jpg")
	assert.Contains(t, blobs.objects, "b.jpg")
}

func TestOrphanBlobFailureIsReturned(t *testing.T) {
	blobs := &memBlobs{objects: map[string]storage.ObjectInfo{"a.jpg": {Key: "a.jpg"}}, deleteErr: errors.New("unavailable")}
	p := newProcessor(blobs, &memRecords{byKey: map[string]bool{}}, time.Now())

	err := p.Handle(context.Background(), message(map[string]interface{}{"type": "orphan_blob", "storageKey": "a.jpg"}))
	assert.Error(t, err)
}

func TestStaleRecordRemovesRecord(t *testing.T) {
	records := &memRecords{byID: map[string]string{"r1": "a.jpg"}, byKey: map[string]bool{"a.jpg": true}}
	p := newProcessor(&memBlobs{objects: map[string]storage.ObjectInfo{}}, records, time.Now())

	require.NoError(t, p.Handle(context.Background(), message(map[string]interface{}{"type": "stale_record", "imageId": "r1"})))
	assert.Empty(t, records.byID)

	// Already gone counts as done.
	require.NoError(t, p.Handle(context.Background(), message(map[string]interface{}{"type": "stale_record", "imageId": "r1"})))
}

func TestSweepHonoursGracePeriod(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	blobs := &memBlobs{objects: map[string]storage.ObjectInfo{
		"old-orphan.jpg":   {Key: "old-orphan.jpg", LastModified: now.Add(-2 * time.Hour)},
		"old-kept.jpg":     {Key: "old-kept.jpg", LastModified: now.Add(-2 * time.Hour)},
		"fresh-orphan.jpg": {Key: "fresh-orphan.jpg", LastModified: now.Add(-time.Minute)},
	}}
	records := &memRecords{byID: map[string]string{"r1": "old-kept.jpg"}, byKey: map[string]bool{"old-kept.jpg": true}}
	p := newProcessor(blobs, records, now)

	require.NoError(t, p.Handle(context.Background(), message(map[string]interface{}{"type": "sweep"})))

	assert.NotContains(t, blobs.objects, "old-orphan.jpg")
	assert.Contains(t, blobs.objects, "old-kept.jpg")
	assert.Contains(t, blobs.objects, "fresh-orphan.jpg")
}

func TestUnknownAndMalformedTasksAreAcked(t *testing.T) {
	p := newProcessor(&memBlobs{objects: map[string]storage.ObjectInfo{}}, &memRecords{}, time.Now())

	assert.NoError(t, p.Handle(context.Background(), message(map[string]interface{}{"type": "thumbnail"})))
	assert.NoError(t, p.Handle(context.Background(), message(map[string]interface{}{})))
}
