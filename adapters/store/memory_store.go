package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/agora/core"
	"github.com/layer-3/agora/ports"
)

// MemoryStore is an in-memory implementation of the Store interface
type MemoryStore struct {
	invalidatedTokens map[string]time.Time
	mu                sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() ports.Store {
	return &MemoryStore{
		invalidatedTokens: make(map[string]time.Time),
	}
}

// InvalidateToken marks a token as invalidated until expiry has passed.
func (s *MemoryStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.invalidatedTokens[tokenID] = now.Add(expiry)

	// Expired entries are dropped lazily on write instead of one goroutine per token.
	for id, until := range s.invalidatedTokens {
		if now.After(until) {
			delete(s.invalidatedTokens, id)
		}
	}

	return nil
}

// IsTokenInvalidated checks if a token is invalidated
func (s *MemoryStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expiryTime, exists := s.invalidatedTokens[tokenID]
	if !exists {
		return false, nil
	}

	return !time.Now().After(expiryTime), nil
}

// MemorySessionStore holds the wallet session in process memory, so the
// session ends with the process.
type MemorySessionStore struct {
	mu      sync.Mutex
	session *core.WalletSession
}

var _ ports.SessionStore = (*MemorySessionStore)(nil)

// NewMemorySessionStore creates an empty session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{}
}

// Load returns a copy of the stored session, or nil.
func (s *MemorySessionStore) Load(ctx context.Context) (*core.WalletSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, nil
	}
	session := *s.session
	return &session, nil
}

// Save overwrites the stored session.
func (s *MemorySessionStore) Save(ctx context.Context, session core.WalletSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = &session
	return nil
}

// Clear removes the stored session.
func (s *MemorySessionStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = nil
	return nil
}
