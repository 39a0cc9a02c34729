package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/agora/core"
	"github.com/layer-3/agora/internal/logger"
	"github.com/layer-3/agora/ports"
	"go.uber.org/zap"
)

// AuthService handles wallet sign-in for the marketplace API
type AuthService struct {
	tokenizer ports.Tokenizer
	store     ports.Store
	eventPub  ports.EventPublisher
	log       *zap.Logger

	challengeTTL time.Duration
	accessTTL    time.Duration
	refreshTTL   time.Duration
}

type AuthOption func(*AuthService)

// WithAuthLogger sets the service logger.
func WithAuthLogger(log *zap.Logger) AuthOption {
	return func(s *AuthService) { s.log = logger.OrNop(log) }
}

// WithTokenTTLs overrides the challenge, access and refresh lifetimes. Zero keeps the default.
func WithTokenTTLs(challenge, access, refresh time.Duration) AuthOption {
	return func(s *AuthService) {
		if challenge > 0 {
			s.challengeTTL = challenge
		}
		if access > 0 {
			s.accessTTL = access
		}
		if refresh > 0 {
			s.refreshTTL = refresh
		}
	}
}

// NewAuthService creates a new authentication service
func NewAuthService(
	tokenizer ports.Tokenizer,
	store ports.Store,
	eventPub ports.EventPublisher,
	opts ...AuthOption,
) *AuthService {
	s := &AuthService{
		tokenizer:    tokenizer,
		store:        store,
		eventPub:     eventPub,
		log:          zap.NewNop(),
		challengeTTL: 5 * time.Minute,
		accessTTL:    5 * time.Minute,
		refreshTTL:   5 * 24 * time.Hour, // 5 days
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AccessTTL is the lifetime of issued access tokens.
func (s *AuthService) AccessTTL() time.Duration {
	return s.accessTTL
}

// CreateChallenge issues a challenge for address. It returns the challenge token
// and the message the wallet has to sign.
func (s *AuthService) CreateChallenge(address string) (string, string, error) {
	canonical, err := core.CanonicalAddress(address)
	if err != nil {
		return "", "", err
	}

	nonceBytes := make([]byte, 32)
	if _, err := rand.Read(nonceBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	now := time.Now()
	challenge := &core.Challenge{
		ID:        uuid.New().String(),
		Address:   canonical,
		Nonce:     hex.EncodeToString(nonceBytes),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.challengeTTL),
	}

	token, err := s.tokenizer.ChallengeToToken(challenge)
	if err != nil {
		return "", "", fmt.Errorf("failed to create token: %w", err)
	}

	return token, challenge.SignInMessage(), nil
}

// Login authenticates a user using their signed challenge
func (s *AuthService) Login(ctx context.Context, challengeToken, signature, address string) (string, string, error) {
	challenge, err := s.tokenizer.TokenToChallenge(challengeToken)
	if err != nil {
		return "", "", fmt.Errorf("invalid challenge token: %w", err)
	}

	if err := s.tokenizer.VerifySignature(challenge, signature, address); err != nil {
		return "", "", fmt.Errorf("signature verification failed: %w", err)
	}

	s.log.Info("wallet signed in", zap.String("address", challenge.Address))
	return s.issue(challenge.Address)
}

// Refresh rotates the refresh token and issues new access and refresh tokens
func (s *AuthService) Refresh(ctx context.Context, refreshTokenStr string) (string, string, error) {
	session, err := s.tokenizer.RefreshTokenToSession(refreshTokenStr)
	if err != nil {
		return "", "", fmt.Errorf("invalid refresh token: %w", err)
	}

	if time.Now().After(session.RefreshExpiry) {
		return "", "", core.ErrTokenExpired
	}

	invalidated, err := s.store.IsTokenInvalidated(ctx, session.RefreshID)
	if err != nil {
		return "", "", fmt.Errorf("failed to check token invalidation: %w", err)
	}
	if invalidated {
		return "", "", core.ErrTokenInvalidated
	}

	// The old refresh token stays invalid for as long as it would have been valid.
	if err := s.store.InvalidateToken(ctx, session.RefreshID, time.Until(session.RefreshExpiry)); err != nil {
		return "", "", fmt.Errorf("failed to invalidate old token: %w", err)
	}

	return s.issue(session.Address)
}

// Logout invalidates a refresh token
func (s *AuthService) Logout(ctx context.Context, refreshTokenStr string) error {
	session, err := s.tokenizer.RefreshTokenToSession(refreshTokenStr)
	if err != nil {
		return fmt.Errorf("invalid refresh token: %w", err)
	}

	// Expired tokens are recorded too, with a short TTL to cover clock skew.
	remainingTime := time.Hour
	if time.Now().Before(session.RefreshExpiry) {
		remainingTime = time.Until(session.RefreshExpiry)
	}

	if err := s.store.InvalidateToken(ctx, session.RefreshID, remainingTime); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}

	// The token is already invalidated in the store; the event only informs other instances.
	if err := s.eventPub.PublishLogout(ctx, session.Address, session.RefreshID); err != nil {
		s.log.Warn("failed to publish logout event", zap.String("address", session.Address), zap.Error(err))
	}

	return nil
}

func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (*core.AuthSession, error) {
	session, err := s.tokenizer.AccessTokenToSession(accessToken)
	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}

	if time.Now().After(session.AccessExpiry) {
		return nil, core.ErrTokenExpired
	}

	// Access tokens die with their refresh token.
	if session.RefreshID != "" {
		invalidated, err := s.store.IsTokenInvalidated(ctx, session.RefreshID)
		if err != nil {
			return nil, fmt.Errorf("failed to check token invalidation: %w", err)
		}
		if invalidated {
			return nil, core.ErrTokenInvalidated
		}
	}

	return session, nil
}

func (s *AuthService) issue(address string) (string, string, error) {
	now := time.Now()
	session := &core.AuthSession{
		ID:            uuid.New().String(),
		Address:       address,
		IssuedAt:      now,
		RefreshExpiry: now.Add(s.refreshTTL),
		AccessExpiry:  now.Add(s.accessTTL),
		RefreshID:     uuid.New().String(),
	}

	accessToken, err := s.tokenizer.SessionToAccessToken(session)
	if err != nil {
		return "", "", fmt.Errorf("failed to create access token: %w", err)
	}

	refreshToken, err := s.tokenizer.SessionToRefreshToken(session)
	if err != nil {
		return "", "", fmt.Errorf("failed to create refresh token: %w", err)
	}

	return accessToken, refreshToken, nil
}
