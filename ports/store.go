package ports

import (
	"context"
	"errors"
	"time"

	"github.com/layer-3/agora/core"
)

// Store interface for token invalidation
type Store interface {
	InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error
	IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error)
}

// ErrCorruptSession is returned by SessionStore.Load when a stored record cannot be decoded.
var ErrCorruptSession = errors.New("corrupt wallet session")

// SessionStore persists the single wallet session record.
// Implementations do not validate the address.
type SessionStore interface {
	// Load returns nil without error when no session is stored, and an error
	// wrapping ErrCorruptSession when the record is unreadable.
	Load(ctx context.Context) (*core.WalletSession, error)
	Save(ctx context.Context, session core.WalletSession) error
	Clear(ctx context.Context) error
}
