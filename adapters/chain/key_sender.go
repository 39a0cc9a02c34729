package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/agora/adapters/contract"
	"github.com/layer-3/agora/core"
	"github.com/layer-3/agora/ports"
)

var (
	_ ports.TxSender   = (*KeySender)(nil)
	_ ports.TextSigner = (*KeySender)(nil)
)

// SenderBackend is the node API a KeySender needs. *ethclient.Client and the
// simulated client both satisfy it.
type SenderBackend interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// KeySender signs transactions with a local private key.
type KeySender struct {
	key          *ecdsa.PrivateKey
	address      common.Address
	chainID      *big.Int
	backend      SenderBackend
	pollInterval time.Duration
}

func NewKeySender(key *ecdsa.PrivateKey, chainID *big.Int, backend SenderBackend) *KeySender {
	return &KeySender{
		key:          key,
		address:      crypto.PubkeyToAddress(key.PublicKey),
		chainID:      new(big.Int).Set(chainID),
		backend:      backend,
		pollInterval: defaultPollInterval,
	}
}

// WithPollInterval returns s polling receipts every d.
func (s *KeySender) WithPollInterval(d time.Duration) *KeySender {
	if d > 0 {
		s.pollInterval = d
	}
	return s
}

func (s *KeySender) Address() common.Address {
	return s.address
}

// SignText signs msg with the EIP-191 personal message prefix.
func (s *KeySender) SignText(_ context.Context, addr common.Address, msg []byte) ([]byte, error) {
	if addr != s.address {
		return nil, fmt.Errorf("%w: key signs for %s, not %s", core.ErrSignerChanged, s.address.Hex(), addr.Hex())
	}
	sig, err := crypto.Sign(accounts.TextHash(msg), s.key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

func (s *KeySender) SendTransaction(ctx context.Context, req core.TxRequest) (common.Hash, error) {
	if req.From != s.address {
		return common.Hash{}, fmt.Errorf("%w: key signs for %s, not %s", core.ErrSignerChanged, s.address.Hex(), req.From.Hex())
	}
	to := req.To
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := s.backend.PendingNonceAt(ctx, s.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}
	gas, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{From: s.address, To: &to, Value: value, Data: req.Data})
	if err != nil {
		return common.Hash{}, contract.ClassifyError(fmt.Errorf("failed to estimate gas: %w", err))
	}

	head, err := s.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get head: %w", err)
	}

	var tx *types.Transaction
	if head.BaseFee != nil {
		tip, err := s.backend.SuggestGasTipCap(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to suggest tip: %w", err)
		}
		feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
		tx = types.NewTx(&types.DynamicFeeTx{
			ChainID:   s.chainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gas,
			To:        &to,
			Value:     value,
			Data:      req.Data,
		})
	} else {
		gasPrice, err := s.backend.SuggestGasPrice(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to suggest gas price: %w", err)
		}
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gas,
			To:       &to,
			Value:    value,
			Data:     req.Data,
		})
	}

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, contract.ClassifyError(fmt.Errorf("failed to send transaction: %w", err))
	}
	return signed.Hash(), nil
}

func (s *KeySender) WaitMined(ctx context.Context, hash common.Hash) (*ports.MinedTx, error) {
	return waitMined(ctx, s.backend, hash, s.pollInterval)
}
