// Package testchain runs an in-memory chain for tests.
package testchain

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/stretchr/testify/require"
)

// ChainID of the simulated backend.
var ChainID = big.NewInt(1337)

// Chain is a simulated backend with a set of funded accounts.
type Chain struct {
	Backend *simulated.Backend
	Client  simulated.Client
	Keys    []*ecdsa.PrivateKey

	mu sync.Mutex
}

// New starts a chain whose first n accounts hold 100 ether each.
func New(t testing.TB, n int) *Chain {
	t.Helper()

	balance := new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18))
	alloc := types.GenesisAlloc{}
	keys := make([]*ecdsa.PrivateKey, n)
	for i := range keys {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		keys[i] = key
		alloc[crypto.PubkeyToAddress(key.PublicKey)] = types.Account{Balance: balance}
	}

	backend := simulated.NewBackend(alloc)
	t.Cleanup(func() { _ = backend.Close() })

	return &Chain{Backend: backend, Client: backend.Client(), Keys: keys}
}

// Address returns the address of account i.
func (c *Chain) Address(i int) common.Address {
	return crypto.PubkeyToAddress(c.Keys[i].PublicKey)
}

// Transactor returns signing options for account i.
func (c *Chain) Transactor(t testing.TB, i int) *bind.TransactOpts {
	t.Helper()
	opts, err := bind.NewKeyedTransactorWithChainID(c.Keys[i], ChainID)
	require.NoError(t, err)
	return opts
}

// Commit seals a block.
func (c *Chain) Commit() common.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Backend.Commit()
}

// AutoCommit seals a block every interval until the test ends, so code that
// waits for receipts can make progress.
func (c *Chain) AutoCommit(t testing.TB, interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Commit()
			}
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// Balance returns the latest balance of addr.
func (c *Chain) Balance(t testing.TB, addr common.Address) *big.Int {
	t.Helper()
	bal, err := c.Client.BalanceAt(context.Background(), addr, nil)
	require.NoError(t, err)
	return bal
}

// Receipt returns the receipt of a mined transaction.
func (c *Chain) Receipt(t testing.TB, hash common.Hash) *types.Receipt {
	t.Helper()
	receipt, err := c.Client.TransactionReceipt(context.Background(), hash)
	require.NoError(t, err)
	return receipt
}
