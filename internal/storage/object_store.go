package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"gallery/internal/config"
	"gallery/internal/ids"
)

// ObjectStore keeps images in a single bucket of an S3-compatible host.
type ObjectStore struct {
	client *minio.Client
	cfg    config.StorageConfig
	now    func() time.Time
}

var _ BlobStore = (*ObjectStore)(nil)

func NewObjectStore(cfg config.StorageConfig) (*ObjectStore, error) {
	endpoint, useSSL, err := splitEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	cfg.Endpoint = endpoint
	cfg.UseSSL = useSSL

	return &ObjectStore{
		client: client,
		cfg:    cfg,
		now:    time.Now,
	}, nil
}

func splitEndpoint(endpoint string, useSSL bool) (string, bool, error) {
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return endpoint, useSSL, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("parse endpoint: %w", err)
	}
	return u.Host, u.Scheme == "https", nil
}

// EnsureBucket creates the bucket when missing and makes its objects publicly
// readable, since clients fetch images straight from the returned URLs.
func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("bucket exists %s: %w", s.cfg.Bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.cfg.Bucket, err)
		}
	}
	if err := s.client.SetBucketPolicy(ctx, s.cfg.Bucket, publicReadPolicy(s.cfg.Bucket)); err != nil {
		return fmt.Errorf("set bucket policy %s: %w", s.cfg.Bucket, err)
	}
	return nil
}

func (s *ObjectStore) Upload(ctx context.Context, blob Blob) (StoredObject, error) {
	key := buildObjectKey(s.now(), ids.New(), blob.Extension)

	info, err := s.client.PutObject(ctx, s.cfg.Bucket, key, blob.Reader, blob.Size, minio.PutObjectOptions{
		ContentType: blob.ContentType,
	})
	if err != nil {
		return StoredObject{}, fmt.Errorf("put object %s: %w", key, err)
	}

	return StoredObject{
		Key:  key,
		URL:  buildPublicURL(s.cfg, key),
		Size: info.Size,
	}, nil
}

// Delete removes the object. S3 treats a missing key as success, so repeated
// deletes are safe.
func (s *ObjectStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.cfg.Bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

func (s *ObjectStore) List(ctx context.Context) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	for obj := range s.client.ListObjects(ctx, s.cfg.Bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects: %w", obj.Err)
		}
		objects = append(objects, ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}
	return objects, nil
}

func (s *ObjectStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	return err
}

func buildObjectKey(now time.Time, name, ext string) string {
	datePrefix := now.UTC().Format("2006/01/02")
	if ext == "" {
		return path.Join(datePrefix, name)
	}
	return path.Join(datePrefix, fmt.Sprintf("%s.%s", name, ext))
}

func buildPublicURL(cfg config.StorageConfig, key string) string {
	if cfg.PublicBase != "" {
		return strings.TrimSuffix(cfg.PublicBase, "/") + "/" + key
	}

	base := strings.TrimSuffix(cfg.Endpoint, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		scheme := "http://"
		if cfg.UseSSL {
			scheme = "https://"
		}
		base = scheme + base
	}
	return fmt.Sprintf("%s/%s/%s", base, cfg.Bucket, key)
}

func publicReadPolicy(bucket string) string {
	policy := map[string]any{
		"Version": "2012-10-17",
		"Statement": []map[string]any{
			{
				"Effect":    "Allow",
				"Principal": map[string]any{"AWS": []string{"*"}},
				"Action":    []string{"s3:GetObject"},
				"Resource":  []string{fmt.Sprintf("arn:aws:s3:::%s/*", bucket)},
			},
		},
	}
	b, _ := json.Marshal(policy)
	return string(b)
}
