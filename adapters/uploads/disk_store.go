package uploads

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/layer-3/agora/ports"
)

// URLPrefix is the public path uploaded files are served under.
const URLPrefix = "/uploads/"

// ErrUnsupportedType is returned for files that are not images.
var ErrUnsupportedType = errors.New("unsupported image type")

var allowedExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true}

// DiskStore keeps uploaded images in a local directory.
type DiskStore struct {
	dir string
}

var _ ports.ImageStore = (*DiskStore)(nil)

func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

// Dir returns the directory served at URLPrefix.
func (s *DiskStore) Dir() string {
	return s.dir
}

// Save stores r under a fresh name that keeps the original extension.
func (s *DiskStore) Save(filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, filename)
	}

	name := uuid.NewString() + ext
	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create upload: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	return URLPrefix + name, nil
}

// Delete removes a file previously returned by Save. Unknown URLs are ignored.
func (s *DiskStore) Delete(url string) error {
	if !strings.HasPrefix(url, URLPrefix) {
		return nil
	}
	name := path.Base(url)
	if name == "." || name == "/" || name == ".." {
		return nil
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	return nil
}
