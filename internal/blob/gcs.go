// Package blob archives raw source payloads in object storage.
package blob

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
)

// GCS implements catalog.BlobStore on a Google Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCS opens a storage client against the given bucket. Credentials come
// from the ambient environment.
func NewGCS(ctx context.Context, bucket, prefix string) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCS{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

// PutObject writes data under prefix/path and returns its gs:// URI.
func (g *GCS) PutObject(ctx context.Context, path, contentType string, data []byte) (string, error) {
	object := strings.TrimLeft(path, "/")
	if g.prefix != "" {
		object = g.prefix + "/" + object
	}

	w := g.client.Bucket(g.bucket).Object(object).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write object %q: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize object %q: %w", object, err)
	}
	return fmt.Sprintf("gs://%s/%s", g.bucket, object), nil
}

// Close releases the underlying client.
func (g *GCS) Close() error {
	return g.client.Close()
}
