package ports

import "github.com/layer-3/agora/core"

// Tokenizer converts between domain objects and tokens
type Tokenizer interface {
	// Challenge token operations
	ChallengeToToken(challenge *core.Challenge) (string, error)
	TokenToChallenge(token string) (*core.Challenge, error)

	// Session tokens operations
	SessionToAccessToken(session *core.AuthSession) (string, error)
	AccessTokenToSession(token string) (*core.AuthSession, error)
	SessionToRefreshToken(session *core.AuthSession) (string, error)
	RefreshTokenToSession(token string) (*core.AuthSession, error)

	// Verification helpers
	VerifySignature(challenge *core.Challenge, signature string, address string) error
}
