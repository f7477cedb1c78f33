package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	// TaskOrphanBlob asks the worker to delete a stored object that no record
	// references.
	TaskOrphanBlob = "orphan_blob"
	// TaskStaleRecord asks the worker to delete a record whose object is gone.
	TaskStaleRecord = "stale_record"
	// TaskSweep asks the worker to compare the bucket against the records.
	TaskSweep = "sweep"
)

type Task struct {
	Type       string
	ImageID    string
	StorageKey string
}

func (t Task) values() map[string]any {
	return map[string]any{
		"type":       t.Type,
		"imageId":    t.ImageID,
		"storageKey": t.StorageKey,
	}
}

// DecodeTask reads a Task back from stream entry fields.
func DecodeTask(msg redis.XMessage) (Task, error) {
	typ, ok := msg.Values["type"].(string)
	if !ok || typ == "" {
		return Task{}, fmt.Errorf("message %s: missing type", msg.ID)
	}
	task := Task{Type: typ}
	if v, ok := msg.Values["imageId"].(string); ok {
		task.ImageID = v
	}
	if v, ok := msg.Values["storageKey"].(string); ok {
		task.StorageKey = v
	}
	return task, nil
}

type Publisher struct {
	client *redis.Client
	stream string
}

func NewPublisher(client *redis.Client, stream string) *Publisher {
	return &Publisher{client: client, stream: stream}
}

func (p *Publisher) Enqueue(ctx context.Context, task Task) error {
	if p == nil || p.client == nil {
		return nil
	}
	_, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: task.values(),
	}).Result()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}
