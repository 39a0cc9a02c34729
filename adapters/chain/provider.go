package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/layer-3/agora/adapters/contract"
	"github.com/layer-3/agora/core"
	"github.com/layer-3/agora/internal/logger"
	"github.com/layer-3/agora/ports"
	"go.uber.org/zap"
)

// codeUserRejected is the EIP-1193 error code of a declined prompt.
const codeUserRejected = 4001

const defaultPollInterval = time.Second

var (
	_ ports.ChainProvider = (*RPCProvider)(nil)
	_ ports.TextSigner    = (*RPCProvider)(nil)
	_ ports.TxSender      = (*RPCProvider)(nil)
)

// RPCProvider talks to an injected-style wallet over JSON-RPC.
// A provider without a client reports itself unavailable.
type RPCProvider struct {
	client       *rpc.Client
	eth          *ethclient.Client
	pollInterval time.Duration
	log          *zap.Logger

	mu               sync.Mutex
	accountListeners []func([]string)
	chainListeners   []func(*big.Int)
}

type ProviderOption func(*RPCProvider)

// WithPollInterval sets how often Watch and WaitMined poll the wallet.
func WithPollInterval(d time.Duration) ProviderOption {
	return func(p *RPCProvider) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

func WithLogger(log *zap.Logger) ProviderOption {
	return func(p *RPCProvider) {
		p.log = logger.OrNop(log)
	}
}

// NewRPCProvider wraps client. client may be nil.
func NewRPCProvider(client *rpc.Client, opts ...ProviderOption) *RPCProvider {
	p := &RPCProvider{
		client:       client,
		pollInterval: defaultPollInterval,
		log:          zap.NewNop(),
	}
	if client != nil {
		p.eth = ethclient.NewClient(client)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DialRPCProvider connects to the wallet endpoint at url. An empty url yields an
// unavailable provider.
func DialRPCProvider(ctx context.Context, url string, opts ...ProviderOption) (*RPCProvider, error) {
	if url == "" {
		return NewRPCProvider(nil, opts...), nil
	}
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to wallet RPC: %w", err)
	}
	return NewRPCProvider(client, opts...), nil
}

// Close releases the underlying connection.
func (p *RPCProvider) Close() {
	if p.client != nil {
		p.client.Close()
	}
}

func (p *RPCProvider) IsAvailable() bool {
	return p.client != nil
}

func (p *RPCProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	return p.accounts(ctx, "eth_requestAccounts")
}

func (p *RPCProvider) CurrentAccounts(ctx context.Context) ([]string, error) {
	return p.accounts(ctx, "eth_accounts")
}

func (p *RPCProvider) accounts(ctx context.Context, method string) ([]string, error) {
	if !p.IsAvailable() {
		return nil, core.ErrProviderUnavailable
	}
	var accounts []string
	if err := p.client.CallContext(ctx, &accounts, method); err != nil {
		return nil, classify(method, err)
	}
	return accounts, nil
}

func (p *RPCProvider) GetBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	if !p.IsAvailable() {
		return nil, core.ErrProviderUnavailable
	}
	balance, err := p.eth.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, classify("eth_getBalance", err)
	}
	return balance, nil
}

func (p *RPCProvider) ChainID(ctx context.Context) (*big.Int, error) {
	if !p.IsAvailable() {
		return nil, core.ErrProviderUnavailable
	}
	id, err := p.eth.ChainID(ctx)
	if err != nil {
		return nil, classify("eth_chainId", err)
	}
	return id, nil
}

// SignText asks the wallet to personal_sign msg with addr.
func (p *RPCProvider) SignText(ctx context.Context, addr common.Address, msg []byte) ([]byte, error) {
	if !p.IsAvailable() {
		return nil, core.ErrProviderUnavailable
	}
	var sig hexutil.Bytes
	if err := p.client.CallContext(ctx, &sig, "personal_sign", hexutil.Bytes(msg), addr); err != nil {
		return nil, classify("personal_sign", err)
	}
	return sig, nil
}

type sendTxArgs struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
}

// SendTransaction asks the wallet to sign and submit req.
func (p *RPCProvider) SendTransaction(ctx context.Context, req core.TxRequest) (common.Hash, error) {
	if !p.IsAvailable() {
		return common.Hash{}, core.ErrProviderUnavailable
	}
	to := req.To
	args := sendTxArgs{From: req.From, To: &to, Data: req.Data}
	if req.Value != nil {
		args.Value = (*hexutil.Big)(req.Value)
	}

	var hash common.Hash
	if err := p.client.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, contract.ClassifyError(classify("eth_sendTransaction", err))
	}
	p.log.Debug("transaction submitted", zap.String("hash", hash.Hex()), zap.String("from", req.From.Hex()))
	return hash, nil
}

func (p *RPCProvider) WaitMined(ctx context.Context, hash common.Hash) (*ports.MinedTx, error) {
	if !p.IsAvailable() {
		return nil, core.ErrProviderUnavailable
	}
	return waitMined(ctx, p.eth, hash, p.pollInterval)
}

func (p *RPCProvider) OnAccountsChanged(fn func(accounts []string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accountListeners = append(p.accountListeners, fn)
}

func (p *RPCProvider) OnChainChanged(fn func(chainID *big.Int)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chainListeners = append(p.chainListeners, fn)
}

func classify(method string, err error) error {
	var rpcErr rpc.Error
	switch {
	case errors.As(err, &rpcErr) && rpcErr.ErrorCode() == codeUserRejected:
		return fmt.Errorf("%s: %w: %s", method, core.ErrUserRejected, rpcErr.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", method, core.ErrTimeout)
	default:
		return fmt.Errorf("%s: %w", method, err)
	}
}
