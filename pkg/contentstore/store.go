package contentstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store is an immutable content-addressed blob store.
type Store interface {
	// Put persists data and returns its CID. Storing the same bytes twice is a no-op.
	Put(ctx context.Context, data []byte) (CID, error)
	// Get returns the bytes for cid, or ErrNotFound.
	Get(ctx context.Context, cid CID) ([]byte, error)
	Exists(ctx context.Context, cid CID) (bool, error)
}

// FileStore keeps blobs under baseDir/<first two hex chars>/<digest>.blob.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

func NewFileStore(baseDir string) (*FileStore, error) {
	//nolint:gosec // G301: shared content directory
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to ensure content dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) path(digest string) string {
	return filepath.Join(s.baseDir, digest[:2], digest+".blob")
}

func (s *FileStore) Put(ctx context.Context, data []byte) (CID, error) {
	cid := ComputeCID(data)
	digest, _ := cid.Digest()
	path := s.path(digest)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(path); err == nil {
		return cid, nil
	}

	//nolint:gosec // G301: shared content directory
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create shard dir: %w", err)
	}

	// Write to temp, then rename
	tmp := path + ".tmp"
	//nolint:gosec // G306: blobs are public content
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("failed to commit blob: %w", err)
	}
	return cid, nil
}

func (s *FileStore) Get(ctx context.Context, cid CID) ([]byte, error) {
	digest, err := cid.Digest()
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(digest))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, cid)
	}
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", cid, err)
	}
	return data, nil
}

func (s *FileStore) Exists(ctx context.Context, cid CID) (bool, error) {
	digest, err := cid.Digest()
	if err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err = os.Stat(s.path(digest))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat blob %s: %w", cid, err)
	}
}
