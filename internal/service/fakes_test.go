package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"gallery/internal/models"
	"gallery/internal/queue"
	"gallery/internal/repository"
	"gallery/internal/storage"
)

var errBoom = errors.New("boom")

type fakeBlobs struct {
	mu        sync.Mutex
	objects   map[string][]byte
	types     map[string]string
	seq       int
	uploadErr error
	deleteErr error
	uploads   int
	deletes   []string
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeBlobs) Upload(_ context.Context, blob storage.Blob) (storage.StoredObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	if f.uploadErr != nil {
		return storage.StoredObject{}, f.uploadErr
	}
	data, err := io.ReadAll(blob.Reader)
	if err != nil {
		return storage.StoredObject{}, err
	}
	f.seq++
	key := fmt.Sprintf("obj%d.%s", f.seq, blob.Extension)
	f.objects[key] = data
	f.types[key] = blob.ContentType
	return storage.StoredObject{
		Key:  key,
		URL:  "https://media.example.com/" + key,
		Size: int64(len(data)),
	}, nil
}

func (f *fakeBlobs) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, key)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.objects, key)
	return nil
}

func (f *fakeBlobs) List(context.Context) ([]storage.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]storage.ObjectInfo, 0, len(f.objects))
	for key, data := range f.objects {
		out = append(out, storage.ObjectInfo{Key: key, Size: int64(len(data))})
	}
	return out, nil
}

func (f *fakeBlobs) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

type fakeRecords struct {
	mu        sync.Mutex
	records   map[string]models.ImageRecord
	createErr error
	getErr    error
	deleteErr error
	listErr   error
	existsErr error

	// commitOnErr persists the record even when Create reports createErr.
	commitOnErr bool
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{records: map[string]models.ImageRecord{}}
}

func (f *fakeRecords) Create(_ context.Context, image models.ImageRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		if f.commitOnErr {
			f.records[image.ID] = image
		}
		return f.createErr
	}
	f.records[image.ID] = image
	return nil
}

func (f *fakeRecords) ExistsByStorageKey(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	for _, image := range f.records {
		if image.StorageKey == key {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRecords) GetByID(_ context.Context, id string) (models.ImageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return models.ImageRecord{}, f.getErr
	}
	image, ok := f.records[id]
	if !ok {
		return models.ImageRecord{}, repository.ErrImageNotFound
	}
	return image, nil
}

func (f *fakeRecords) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.records[id]; !ok {
		return repository.ErrImageNotFound
	}
	delete(f.records, id)
	return nil
}

func (f *fakeRecords) List(context.Context) ([]models.ImageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]models.ImageRecord, 0, len(f.records))
	for _, image := range f.records {
		out = append(out, image)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UploadedAt.After(out[j].UploadedAt)
	})
	return out, nil
}

func (f *fakeRecords) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type fakeQueue struct {
	mu    sync.Mutex
	tasks []queue.Task
	err   error
}

func (f *fakeQueue) Enqueue(_ context.Context, task queue.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, task)
	return nil
}
