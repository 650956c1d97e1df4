package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store is the blob store collaborator. The console persists only the
// returned URL and path; blob content never enters the document store.
type Store interface {
	// Put writes data under path and returns a durable retrieval URL.
	Put(ctx context.Context, path string, data []byte) (string, error)
	// Delete removes the blob at path. Deleting an absent blob is a no-op.
	Delete(ctx context.Context, path string) error
}

// DiskStore is a local-filesystem blob store. Blobs are served by the API
// process under the configured base URL.
type DiskStore struct {
	root    string
	baseURL string
}

// NewDiskStore creates a blob store rooted at dir, with retrieval URLs
// prefixed by baseURL (e.g. "/blobs").
func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}
	return &DiskStore{root: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Root returns the directory blobs are written under.
func (s *DiskStore) Root() string {
	return s.root
}

func (s *DiskStore) resolve(path string) (string, error) {
	clean := filepath.Clean("/" + path)
	if clean == "/" {
		return "", fmt.Errorf("invalid blob path %q", path)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *DiskStore) Put(ctx context.Context, path string, data []byte) (string, error) {
	full, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("failed to create blob directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write blob %s: %w", path, err)
	}
	return s.baseURL + "/" + strings.TrimLeft(path, "/"), nil
}

func (s *DiskStore) Delete(ctx context.Context, path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob %s: %w", path, err)
	}
	return nil
}
