package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/layer-3/agora/core"
	"github.com/layer-3/agora/ports"
)

// FileStore keeps the wallet session as a JSON file, the CLI counterpart of browser local storage.
type FileStore struct {
	path string
	mu   sync.Mutex
}

var _ ports.SessionStore = (*FileStore)(nil)

// NewFileStore creates a store backed by path. The file is created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the session file; a missing file means no session.
func (s *FileStore) Load(ctx context.Context) (*core.WalletSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read wallet session: %w", err)
	}

	var session core.WalletSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrCorruptSession, err)
	}
	return &session, nil
}

// Save replaces the session file atomically.
func (s *FileStore) Save(ctx context.Context, session core.WalletSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode wallet session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write wallet session: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace wallet session: %w", err)
	}
	return nil
}

// Clear removes the session file. Clearing an absent file is not an error.
func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to clear wallet session: %w", err)
	}
	return nil
}
