package contract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/layer-3/agora/core"
)

// MarketplacePayment is a binding to a deployed forwarding contract.
type MarketplacePayment struct {
	address  common.Address
	contract *bind.BoundContract
	filterer ethereum.LogFilterer
}

// PurchaseEvent is a decoded Purchase log.
type PurchaseEvent struct {
	Seller common.Address
	Buyer  common.Address
	Amount *big.Int
	Raw    types.Log
}

// Deploy creates a new forwarding contract.
func Deploy(opts *bind.TransactOpts, backend bind.ContractBackend) (common.Address, *types.Transaction, *MarketplacePayment, error) {
	address, tx, contract, err := bind.DeployContract(opts, parsedABI, common.FromHex(MarketplacePaymentBin), backend)
	if err != nil {
		return common.Address{}, nil, nil, fmt.Errorf("failed to deploy MarketplacePayment: %w", err)
	}
	return address, tx, &MarketplacePayment{address: address, contract: contract, filterer: backend}, nil
}

// NewMarketplacePayment binds an already deployed contract.
func NewMarketplacePayment(address common.Address, backend bind.ContractBackend) *MarketplacePayment {
	return &MarketplacePayment{
		address:  address,
		contract: bind.NewBoundContract(address, parsedABI, backend, backend, backend),
		filterer: backend,
	}
}

func (m *MarketplacePayment) Address() common.Address {
	return m.address
}

// Config returns the deployment record served to purchase clients.
func (m *MarketplacePayment) Config() core.ContractConfig {
	return core.ContractConfig{
		ContractAddress: m.address.Hex(),
		ABI:             json.RawMessage(MarketplacePaymentABI),
	}
}

// Purchase pays opts.Value to seller through the contract.
// A missing or zero value fails with core.ErrZeroValue without sending anything.
func (m *MarketplacePayment) Purchase(opts *bind.TransactOpts, seller common.Address) (*types.Transaction, error) {
	if opts.Value == nil || opts.Value.Sign() <= 0 {
		return nil, core.ErrZeroValue
	}
	tx, err := m.contract.Transact(opts, "purchase", seller)
	if err != nil {
		return nil, ClassifyError(err)
	}
	return tx, nil
}

// ParsePurchase decodes a Purchase log emitted by the contract.
func (m *MarketplacePayment) ParsePurchase(log types.Log) (*PurchaseEvent, error) {
	event := new(PurchaseEvent)
	if err := m.contract.UnpackLog(event, "Purchase", log); err != nil {
		return nil, err
	}
	event.Raw = log
	return event, nil
}

// FilterPurchases returns the Purchase events in the block range, optionally
// restricted to the given sellers and buyers.
func (m *MarketplacePayment) FilterPurchases(ctx context.Context, from uint64, to *uint64, sellers, buyers []common.Address) ([]PurchaseEvent, error) {
	var sellerRule, buyerRule []interface{}
	for _, s := range sellers {
		sellerRule = append(sellerRule, s)
	}
	for _, b := range buyers {
		buyerRule = append(buyerRule, b)
	}
	topics, err := abi.MakeTopics(sellerRule, buyerRule)
	if err != nil {
		return nil, err
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		Addresses: []common.Address{m.address},
		Topics:    append([][]common.Hash{{parsedABI.Events["Purchase"].ID}}, topics...),
	}
	if to != nil {
		query.ToBlock = new(big.Int).SetUint64(*to)
	}

	logs, err := m.filterer.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to filter Purchase logs: %w", err)
	}

	events := make([]PurchaseEvent, 0, len(logs))
	for _, log := range logs {
		event, err := m.ParsePurchase(log)
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}
	return events, nil
}

// PackPurchase returns the calldata of purchase(seller).
func PackPurchase(seller common.Address) ([]byte, error) {
	return parsedABI.Pack("purchase", seller)
}

// PurchaseCall resolves a deployment record into the contract address and the
// calldata of purchase(seller), using the ABI the record carries.
func PurchaseCall(cfg *core.ContractConfig, seller common.Address) (common.Address, []byte, error) {
	if cfg == nil {
		return common.Address{}, nil, errors.New("missing contract config")
	}
	address, err := core.ParseAddress(cfg.ContractAddress)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("contract address: %w", err)
	}
	contractABI := parsedABI
	if len(cfg.ABI) > 0 {
		if contractABI, err = abi.JSON(strings.NewReader(string(cfg.ABI))); err != nil {
			return common.Address{}, nil, fmt.Errorf("contract abi: %w", err)
		}
	}
	data, err := contractABI.Pack("purchase", seller)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("contract abi: %w", err)
	}
	return address, data, nil
}

// RevertReason extracts the Error(string) reason of a reverted call.
func RevertReason(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if s, ok := dataErr.ErrorData().(string); ok {
			if data, derr := hexutil.Decode(s); derr == nil {
				if reason, uerr := abi.UnpackRevert(data); uerr == nil {
					return reason, true
				}
			}
		}
	}
	// bind flattens estimation errors with %v, so the rpc error data is gone by now.
	if strings.Contains(err.Error(), core.ZeroValueRevertReason) {
		return core.ZeroValueRevertReason, true
	}
	return "", false
}

// ClassifyError maps the zero-value revert onto core.ErrZeroValue.
func ClassifyError(err error) error {
	if err == nil || errors.Is(err, core.ErrZeroValue) {
		return err
	}
	if reason, ok := RevertReason(err); ok && reason == core.ZeroValueRevertReason {
		return fmt.Errorf("%w: %v", core.ErrZeroValue, err)
	}
	return err
}
