package watcher

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// ObjectStore reads and writes bucket objects
type ObjectStore interface {
	Download(ctx context.Context, bucket, name string, dst io.Writer) error
	Upload(ctx context.Context, bucket, name, contentType string, src io.Reader) error
	Close() error
}

// GCSStore is an ObjectStore on Google Cloud Storage. Credentials come from
// the environment (GOOGLE_APPLICATION_CREDENTIALS or the metadata server).
type GCSStore struct {
	client *storage.Client
}

func NewGCSStore(ctx context.Context) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSStore{client: client}, nil
}

func (s *GCSStore) Download(ctx context.Context, bucket, name string, dst io.Writer) error {
	r, err := s.client.Bucket(bucket).Object(name).NewReader(ctx)
	if err != nil {
		return err
	}
	defer r.Close()

	_, err = io.Copy(dst, r)
	return err
}

func (s *GCSStore) Upload(ctx context.Context, bucket, name, contentType string, src io.Reader) error {
	w := s.client.Bucket(bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, src); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
