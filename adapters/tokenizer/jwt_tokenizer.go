package tokenizer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/agora/core"
	"github.com/layer-3/agora/ports"
)

// JWTTokenizer implements the Tokenizer interface using JWT
type JWTTokenizer struct {
	signKey *ecdsa.PrivateKey
}

// NewJWTTokenizer creates a new JWT tokenizer. signKey must be a P-256 key.
func NewJWTTokenizer(signKey *ecdsa.PrivateKey) ports.Tokenizer {
	return &JWTTokenizer{signKey: signKey}
}

// GenerateSigningKey creates a fresh P-256 key for ES256 tokens.
func GenerateSigningKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

// ParseSigningKey decodes a hex encoded SEC 1 (DER) P-256 private key.
func ParseSigningKey(hexKey string) (*ecdsa.PrivateKey, error) {
	der, err := hexutil.Decode(ensure0x(hexKey))
	if err != nil {
		return nil, fmt.Errorf("invalid signing key encoding: %w", err)
	}
	key, err := x509.ParseECPrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("invalid signing key: %w", err)
	}
	if key.Curve != elliptic.P256() {
		return nil, errors.New("signing key must use P-256")
	}
	return key, nil
}

// ChallengeToToken converts a Challenge to a JWT token
func (j *JWTTokenizer) ChallengeToToken(challenge *core.Challenge) (string, error) {
	return j.sign(challengeClaims(challenge), "challenge")
}

// TokenToChallenge converts a JWT token to a Challenge
func (j *JWTTokenizer) TokenToChallenge(tokenStr string) (*core.Challenge, error) {
	claims := &ChallengeClaims{}
	if err := j.parse(tokenStr, claims, AudienceChallenge); err != nil {
		return nil, err
	}
	return claims.challenge(), nil
}

// SessionToAccessToken converts a session to an access JWT token
func (j *JWTTokenizer) SessionToAccessToken(session *core.AuthSession) (string, error) {
	return j.sign(accessClaims(session), "access")
}

// SessionToRefreshToken converts a session to a refresh JWT token
func (j *JWTTokenizer) SessionToRefreshToken(session *core.AuthSession) (string, error) {
	return j.sign(refreshClaims(session), "refresh")
}

// AccessTokenToSession parses an access token and returns the associated session
func (j *JWTTokenizer) AccessTokenToSession(tokenStr string) (*core.AuthSession, error) {
	claims := &AccessClaims{}
	if err := j.parse(tokenStr, claims, AudienceAccess); err != nil {
		return nil, err
	}
	return claims.session(), nil
}

// RefreshTokenToSession parses a refresh token and returns the associated session.
func (j *JWTTokenizer) RefreshTokenToSession(tokenStr string) (*core.AuthSession, error) {
	claims := &RefreshClaims{}
	if err := j.parse(tokenStr, claims, AudienceRefresh); err != nil {
		return nil, err
	}
	return claims.session(), nil
}

// VerifySignature checks that signatureStr is a personal_sign (EIP-191) signature
// of the challenge sign-in message made by addressStr.
func (j *JWTTokenizer) VerifySignature(challenge *core.Challenge, signatureStr string, addressStr string) error {
	expected, err := core.ParseAddress(addressStr)
	if err != nil {
		return err
	}
	if !core.SameAddress(challenge.Address, addressStr) {
		return fmt.Errorf("challenge issued to another address: %w", core.ErrInvalidChallenge)
	}

	sig, err := hexutil.Decode(ensure0x(signatureStr))
	if err != nil {
		return fmt.Errorf("failed to decode signature: %w", core.ErrInvalidSignature)
	}
	if len(sig) != crypto.SignatureLength {
		return fmt.Errorf("signature must be %d bytes: %w", crypto.SignatureLength, core.ErrInvalidSignature)
	}

	// Wallets return v as 27/28.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(challenge.SignInMessage())), sig)
	if err != nil {
		return fmt.Errorf("failed to recover signer: %w", core.ErrInvalidSignature)
	}
	if crypto.PubkeyToAddress(*pub) != expected {
		return core.ErrInvalidSignature
	}

	return nil
}

func (j *JWTTokenizer) sign(claims jwt.Claims, kind string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)

	signedToken, err := token.SignedString(j.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", kind, err)
	}

	return signedToken, nil
}

func (j *JWTTokenizer) parse(tokenStr string, claims jwt.Claims, audience string) error {
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &j.signKey.PublicKey, nil
	}, jwt.WithAudience(audience), jwt.WithExpirationRequired())

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return core.ErrTokenExpired
	case err != nil:
		return fmt.Errorf("failed to parse token: %w: %v", core.ErrInvalidToken, err)
	case !token.Valid:
		return core.ErrInvalidToken
	}
	return nil
}

func ensure0x(s string) string {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s
	}
	return "0x" + s
}
