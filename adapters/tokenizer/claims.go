package tokenizer

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/agora/core"
)

// Token audiences. A token is only accepted for the audience it was issued to.
const (
	AudienceChallenge = "agora:challenge"
	AudienceAccess    = "agora:access"
	AudienceRefresh   = "agora:refresh"
)

// ChallengeClaims carry the sign-in nonce; the subject is the checksummed wallet address.
type ChallengeClaims struct {
	jwt.RegisteredClaims
	Nonce string `json:"nonce"`
}

// AccessClaims tie an access token to the refresh token it was issued with,
// so revoking the refresh token also revokes it.
type AccessClaims struct {
	jwt.RegisteredClaims
	RefreshID string `json:"rid"`
}

// RefreshClaims use the token ID as the revocation key.
type RefreshClaims struct {
	jwt.RegisteredClaims
}

func challengeClaims(c *core.Challenge) ChallengeClaims {
	return ChallengeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.Address,
			ID:        c.ID,
			ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(c.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceChallenge},
		},
		Nonce: c.Nonce,
	}
}

func (c *ChallengeClaims) challenge() *core.Challenge {
	return &core.Challenge{
		ID:        c.ID,
		Address:   c.Subject,
		Nonce:     c.Nonce,
		IssuedAt:  timeOf(c.IssuedAt),
		ExpiresAt: c.ExpiresAt.Time,
	}
}

func accessClaims(s *core.AuthSession) AccessClaims {
	return AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.Address,
			ID:        s.ID,
			ExpiresAt: jwt.NewNumericDate(s.AccessExpiry),
			IssuedAt:  jwt.NewNumericDate(s.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceAccess},
		},
		RefreshID: s.RefreshID,
	}
}

func (c *AccessClaims) session() *core.AuthSession {
	return &core.AuthSession{
		ID:           c.ID,
		Address:      c.Subject,
		IssuedAt:     timeOf(c.IssuedAt),
		AccessExpiry: c.ExpiresAt.Time,
		RefreshID:    c.RefreshID,
	}
}

func refreshClaims(s *core.AuthSession) RefreshClaims {
	return RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.Address,
			ID:        s.RefreshID,
			ExpiresAt: jwt.NewNumericDate(s.RefreshExpiry),
			IssuedAt:  jwt.NewNumericDate(s.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceRefresh},
		},
	}
}

// session returns the refresh half of a session; ID and AccessExpiry stay zero.
func (c *RefreshClaims) session() *core.AuthSession {
	return &core.AuthSession{
		Address:       c.Subject,
		IssuedAt:      timeOf(c.IssuedAt),
		RefreshExpiry: c.ExpiresAt.Time,
		RefreshID:     c.ID,
	}
}

func timeOf(d *jwt.NumericDate) time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time
}
