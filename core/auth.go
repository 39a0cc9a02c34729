package core

import "time"

// Challenge represents an authentication challenge
type Challenge struct {
	ID        string    // Unique identifier for the challenge
	Address   string    // Checksummed address of the wallet
	Nonce     string    // Random nonce to be signed
	IssuedAt  time.Time // When the challenge was created
	ExpiresAt time.Time // When the challenge expires
}

// SignInMessage is the text a wallet signs with personal_sign to answer the challenge.
func (c *Challenge) SignInMessage() string {
	return "Sign in to Agora\nAddress: " + c.Address + "\nNonce: " + c.Nonce
}

// AuthSession represents an authenticated API session
type AuthSession struct {
	ID            string    // Unique session identifier
	Address       string    // Checksummed address of the wallet
	IssuedAt      time.Time // When the session was created
	RefreshExpiry time.Time // When the refresh capability expires
	AccessExpiry  time.Time // When the access capability expires
	RefreshID     string    // Unique identifier for the refresh token
}
