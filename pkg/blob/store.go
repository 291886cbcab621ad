package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var ErrUploadFailed = errors.New("upload failed")

// Store is the attachment collaborator: bytes go in before any message
// referencing them is recorded, and a retrievable URL comes back.
type Store interface {
	Upload(ctx context.Context, r io.Reader, path string) (string, error)
}

// FileStore keeps blobs on local disk under root and serves them under
// baseURL (wired to a static route in main).
type FileStore struct {
	root    string
	baseURL string
}

func NewFileStore(root, baseURL string) *FileStore {
	return &FileStore{root: root, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (s *FileStore) Upload(ctx context.Context, r io.Reader, path string) (string, error) {
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("%w: invalid path %q", ErrUploadFailed, path)
	}
	clean := filepath.Clean("/" + path)

	dest := filepath.Join(s.root, clean)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	return s.baseURL + clean, nil
}
