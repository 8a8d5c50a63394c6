//go:build gcp

package contentstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSStore keeps blobs in a Google Cloud Storage bucket, keyed by digest.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

type GCSStoreConfig struct {
	Bucket string
	Prefix string
}

// NewGCSStore uses Application Default Credentials.
func NewGCSStore(ctx context.Context, cfg GCSStoreConfig) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *GCSStore) object(digest string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(s.prefix + digest + ".blob")
}

func (s *GCSStore) Put(ctx context.Context, data []byte) (CID, error) {
	cid := ComputeCID(data)
	digest, _ := cid.Digest()
	obj := s.object(digest)

	if _, err := obj.Attrs(ctx); err == nil {
		return cid, nil
	}

	// DoesNotExist guards against a concurrent writer of the same blob.
	w := obj.If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write %s: %w", cid, err)
	}
	if err := w.Close(); err != nil {
		if exists, _ := s.Exists(ctx, cid); exists {
			return cid, nil
		}
		return "", fmt.Errorf("gcs close %s: %w", cid, err)
	}
	return cid, nil
}

func (s *GCSStore) Get(ctx context.Context, cid CID) ([]byte, error) {
	digest, err := cid.Digest()
	if err != nil {
		return nil, err
	}

	r, err := s.object(digest).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, cid)
		}
		return nil, fmt.Errorf("gcs get %s: %w", cid, err)
	}
	defer func() { _ = r.Close() }()

	return io.ReadAll(r)
}

func (s *GCSStore) Exists(ctx context.Context, cid CID) (bool, error) {
	digest, err := cid.Digest()
	if err != nil {
		return false, err
	}

	if _, err := s.object(digest).Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("gcs attrs %s: %w", cid, err)
	}
	return true, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
