package ports

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/agora/core"
)

// ChainProvider is the injected wallet: accounts, balances and push events.
type ChainProvider interface {
	// IsAvailable reports whether a wallet is present at all.
	IsAvailable() bool
	// RequestAccounts prompts the user to expose accounts.
	RequestAccounts(ctx context.Context) ([]string, error)
	// CurrentAccounts returns the exposed accounts without prompting.
	CurrentAccounts(ctx context.Context) ([]string, error)
	GetBalance(ctx context.Context, addr common.Address) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)

	OnAccountsChanged(fn func(accounts []string))
	OnChainChanged(fn func(chainID *big.Int))
}

// TextSigner signs EIP-191 text messages with a wallet account.
type TextSigner interface {
	SignText(ctx context.Context, addr common.Address, msg []byte) ([]byte, error)
}

// TxSender submits a transaction signed by req.From and waits until it is mined.
type TxSender interface {
	SendTransaction(ctx context.Context, req core.TxRequest) (common.Hash, error)
	WaitMined(ctx context.Context, hash common.Hash) (*MinedTx, error)
}

// MinedTx is the part of a receipt the purchase flow needs.
type MinedTx struct {
	Hash        common.Hash
	BlockNumber *big.Int
	Success     bool
}
