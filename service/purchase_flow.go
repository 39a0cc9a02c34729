package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/agora/adapters/contract"
	"github.com/layer-3/agora/core"
	"github.com/layer-3/agora/internal/config"
	"github.com/layer-3/agora/internal/logger"
	"github.com/layer-3/agora/internal/metrics"
	"github.com/layer-3/agora/ports"
	"go.uber.org/zap"
)

// SignerGuard returns the account allowed to pay right now.
type SignerGuard interface {
	RequireSigner(ctx context.Context) (common.Address, error)
}

// PurchaseFlow pays for a listing and reports the payment to the backend.
// Nothing is retried: a failure at any step ends the attempt.
type PurchaseFlow struct {
	market  ports.MarketAPI
	guard   SignerGuard
	sender  ports.TxSender
	mode    string
	metrics metrics.Recorder
	log     *zap.Logger
}

type PurchaseOption func(*PurchaseFlow)

// WithPaymentMode selects config.PaymentContract (default) or config.PaymentDirect.
func WithPaymentMode(mode string) PurchaseOption {
	return func(f *PurchaseFlow) {
		if mode != "" {
			f.mode = mode
		}
	}
}

func WithPurchaseMetrics(r metrics.Recorder) PurchaseOption {
	return func(f *PurchaseFlow) { f.metrics = metrics.OrNoop(r) }
}

func WithPurchaseLogger(log *zap.Logger) PurchaseOption {
	return func(f *PurchaseFlow) { f.log = logger.OrNop(log) }
}

func NewPurchaseFlow(market ports.MarketAPI, guard SignerGuard, sender ports.TxSender, opts ...PurchaseOption) *PurchaseFlow {
	f := &PurchaseFlow{
		market:  market,
		guard:   guard,
		sender:  sender,
		mode:    config.PaymentContract,
		metrics: metrics.NoopRecorder{},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Buy runs one purchase attempt for itemID at price wei.
//
// When the payment is mined but the backend rejects the confirmation, the
// receipt is returned with Recorded=false alongside the error: the ether has
// moved and the caller must tell the user so.
func (f *PurchaseFlow) Buy(ctx context.Context, itemID int64, price *big.Int) (*core.PurchaseReceipt, error) {
	receipt, err := f.buy(ctx, itemID, price)
	f.metrics.IncCounter("purchase", map[string]string{"outcome": purchaseOutcome(receipt, err), "mode": f.mode})
	return receipt, err
}

func (f *PurchaseFlow) buy(ctx context.Context, itemID int64, price *big.Int) (*core.PurchaseReceipt, error) {
	log := f.log.With(zap.Int64("item_id", itemID), zap.String("mode", f.mode))

	rawSeller, err := f.market.SellerAddress(ctx, itemID)
	if err != nil {
		return nil, err
	}
	seller, err := core.ParseAddress(rawSeller)
	if err != nil {
		return nil, fmt.Errorf("seller of item %d: %w", itemID, err)
	}
	if price == nil || price.Sign() <= 0 {
		return nil, core.ErrZeroValue
	}
	intent := core.PurchaseIntent{ItemID: itemID, Price: new(big.Int).Set(price), Seller: seller}

	to, data, err := f.target(ctx, intent)
	if err != nil {
		return nil, err
	}

	buyer, err := f.guard.RequireSigner(ctx)
	if err != nil {
		return nil, err
	}

	hash, err := f.sender.SendTransaction(ctx, core.TxRequest{From: buyer, To: to, Value: intent.Price, Data: data})
	if err != nil {
		return nil, err
	}
	log.Info("payment submitted", zap.String("tx_hash", hash.Hex()), zap.String("buyer", buyer.Hex()))

	mined, err := f.sender.WaitMined(ctx, hash)
	if err != nil {
		return nil, err
	}
	if !mined.Success {
		return nil, fmt.Errorf("%w: %s", core.ErrPaymentFailed, hash.Hex())
	}

	receipt := &core.PurchaseReceipt{
		ItemID: itemID,
		Buyer:  buyer,
		Seller: seller,
		Price:  intent.Price,
		TxHash: hash,
	}
	confirmation := core.PurchaseConfirmation{BuyerAddress: buyer.Hex(), TxHash: hash.Hex()}
	if err := f.market.ConfirmPurchase(ctx, itemID, confirmation); err != nil {
		log.Error("payment mined but not recorded", zap.String("tx_hash", hash.Hex()), zap.Error(err))
		return receipt, err
	}
	receipt.Recorded = true
	return receipt, nil
}

// target returns the recipient and calldata of the payment.
func (f *PurchaseFlow) target(ctx context.Context, intent core.PurchaseIntent) (common.Address, []byte, error) {
	switch f.mode {
	case config.PaymentDirect:
		return intent.Seller, nil, nil
	case config.PaymentContract:
		cfg, err := f.market.ContractConfig(ctx)
		if err != nil {
			return common.Address{}, nil, err
		}
		return contract.PurchaseCall(cfg, intent.Seller)
	default:
		return common.Address{}, nil, fmt.Errorf("unknown payment mode %q", f.mode)
	}
}

func purchaseOutcome(receipt *core.PurchaseReceipt, err error) string {
	switch {
	case err == nil:
		return "ok"
	case receipt != nil:
		return "unrecorded"
	case errors.Is(err, core.ErrZeroValue):
		return "zero_value"
	case errors.Is(err, core.ErrSignerChanged):
		return "signer_changed"
	case errors.Is(err, core.ErrPaymentFailed):
		return "failed"
	default:
		return outcome(err)
	}
}
