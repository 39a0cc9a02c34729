package core

import (
	"context"
	"errors"
	"net"
	"time"
)

// ZeroValueRevertReason is the revert reason of MarketplacePayment.purchase when no ether is attached.
const ZeroValueRevertReason = "Es muss Ether gesendet werden"

// Wallet and purchase failures.
var (
	ErrProviderUnavailable = errors.New("no wallet provider available")
	ErrUserRejected        = errors.New("request rejected by user")
	ErrZeroValue           = errors.New("purchase requires a non-zero value")
	ErrAddressMismatch     = errors.New("stored address does not match wallet account")
	ErrBackend             = errors.New("marketplace backend request failed")
	ErrTimeout             = errors.New("wallet did not respond in time")
	ErrInvalidAddress      = errors.New("invalid ethereum address")
	ErrNoAccounts          = errors.New("wallet returned no accounts")
	ErrSignerChanged       = errors.New("wallet account changed before payment")
	ErrPaymentFailed       = errors.New("payment transaction failed")
	ErrNotConnected        = errors.New("wallet not connected")
	ErrConnectAborted      = errors.New("wallet disconnected while connecting")
)

// Marketplace failures.
var (
	ErrItemNotFound    = errors.New("item not found")
	ErrItemUnavailable = errors.New("item not available")
	ErrNotItemOwner    = errors.New("address does not own item")
	ErrDuplicateTx     = errors.New("transaction already recorded")
)

// Authentication failures.
var (
	ErrTokenExpired     = errors.New("token has expired")
	ErrTokenInvalidated = errors.New("token has been invalidated")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidToken     = errors.New("invalid token")
	ErrInvalidChallenge = errors.New("invalid challenge")
)

// IsTimeout reports whether err, returned by a call made under ctx, means the
// call ran out of time. The transport may fail with its own deadline error
// before ctx itself reports one, so an expired deadline counts as well.
func IsTimeout(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	deadline, ok := ctx.Deadline()
	return ok && !time.Now().Before(deadline)
}

// UserMessage converts an error into the text shown to the user at a flow boundary.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrProviderUnavailable):
		return "No Ethereum wallet found. Please install MetaMask."
	case errors.Is(err, ErrUserRejected):
		return "The wallet request was rejected."
	case errors.Is(err, ErrTimeout):
		return "The wallet did not answer in time. Please try again."
	case errors.Is(err, ErrZeroValue):
		return ZeroValueRevertReason
	case errors.Is(err, ErrConnectAborted):
		return "The wallet was disconnected before the connection completed."
	case errors.Is(err, ErrNotConnected):
		return "Please connect your wallet first."
	case errors.Is(err, ErrPaymentFailed):
		return "The payment transaction failed on-chain."
	case errors.Is(err, ErrSignerChanged):
		return "Your wallet account changed. Please review the purchase and try again."
	case errors.Is(err, ErrItemUnavailable), errors.Is(err, ErrItemNotFound):
		return "Item nicht verfügbar oder nicht gefunden."
	case errors.Is(err, ErrBackend):
		return "The marketplace could not be reached: " + err.Error()
	default:
		return "Error: " + err.Error()
	}
}
