package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"
)

type rejectedError struct{}

func (rejectedError) Error() string  { return "User rejected the request." }
func (rejectedError) ErrorCode() int { return codeUserRejected }

type revertError struct{ data string }

func (e revertError) Error() string          { return "execution reverted" }
func (e revertError) ErrorCode() int         { return 3 }
func (e revertError) ErrorData() interface{} { return e.data }

// fakeWallet serves the eth_ and personal_ namespaces of an injected wallet.
type fakeWallet struct {
	mu       sync.Mutex
	key      *ecdsa.PrivateKey
	accounts []string
	chainID  *big.Int
	balance  *big.Int
	reject   bool
	block    chan struct{}
	sendErr  error
	sent     []sendTxArgs
	receipts map[common.Hash]*types.Receipt
}

func newFakeWallet(t *testing.T) *fakeWallet {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &fakeWallet{
		key:      key,
		accounts: []string{strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())},
		chainID:  big.NewInt(1337),
		balance:  big.NewInt(0),
		receipts: map[common.Hash]*types.Receipt{},
	}
}

func (w *fakeWallet) address() common.Address {
	return crypto.PubkeyToAddress(w.key.PublicKey)
}

func (w *fakeWallet) setAccounts(accounts ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.accounts = accounts
}

func (w *fakeWallet) setChainID(id int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.chainID = big.NewInt(id)
}

func (w *fakeWallet) mine(hash common.Hash, status uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.receipts[hash] = &types.Receipt{
		Status:      status,
		TxHash:      hash,
		BlockNumber: big.NewInt(7),
		Logs:        []*types.Log{},
	}
}

type ethAPI struct{ w *fakeWallet }

func (api *ethAPI) RequestAccounts(ctx context.Context) ([]string, error) {
	api.w.mu.Lock()
	reject, block := api.w.reject, api.w.block
	api.w.mu.Unlock()
	if reject {
		return nil, rejectedError{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return api.Accounts(), nil
}

func (api *ethAPI) Accounts() []string {
	api.w.mu.Lock()
	defer api.w.mu.Unlock()
	return append([]string{}, api.w.accounts...)
}

func (api *ethAPI) ChainId() *hexutil.Big {
	api.w.mu.Lock()
	defer api.w.mu.Unlock()
	return (*hexutil.Big)(new(big.Int).Set(api.w.chainID))
}

func (api *ethAPI) GetBalance(addr common.Address, block string) (*hexutil.Big, error) {
	api.w.mu.Lock()
	defer api.w.mu.Unlock()
	if addr != api.w.address() {
		return (*hexutil.Big)(new(big.Int)), nil
	}
	return (*hexutil.Big)(new(big.Int).Set(api.w.balance)), nil
}

func (api *ethAPI) SendTransaction(args sendTxArgs) (common.Hash, error) {
	api.w.mu.Lock()
	defer api.w.mu.Unlock()
	if api.w.sendErr != nil {
		return common.Hash{}, api.w.sendErr
	}
	if api.w.reject {
		return common.Hash{}, rejectedError{}
	}
	api.w.sent = append(api.w.sent, args)
	return crypto.Keccak256Hash(big.NewInt(int64(len(api.w.sent))).Bytes()), nil
}

func (api *ethAPI) GetTransactionReceipt(hash common.Hash) (*types.Receipt, error) {
	api.w.mu.Lock()
	defer api.w.mu.Unlock()
	return api.w.receipts[hash], nil
}

type personalAPI struct{ w *fakeWallet }

func (api *personalAPI) Sign(data hexutil.Bytes, addr common.Address) (hexutil.Bytes, error) {
	if addr != api.w.address() {
		return nil, errors.New("unknown account")
	}
	sig, err := crypto.Sign(accounts.TextHash(data), api.w.key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// serve exposes w over an in-process RPC connection. The caller closes the client
// and stops the server.
func serve(t *testing.T, w *fakeWallet) (*rpc.Server, *rpc.Client) {
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", &ethAPI{w: w}))
	require.NoError(t, server.RegisterName("personal", &personalAPI{w: w}))
	return server, rpc.DialInProc(server)
}

// newProvider serves w and returns a provider that is torn down with the test.
func newProvider(t *testing.T, w *fakeWallet, opts ...ProviderOption) *RPCProvider {
	server, client := serve(t, w)
	t.Cleanup(func() {
		client.Close()
		server.Stop()
	})
	return NewRPCProvider(client, opts...)
}
