package service

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/agora/core"
	"github.com/layer-3/agora/ports"
)

type fakeProvider struct {
	mu          sync.Mutex
	unavailable bool
	accounts    []string
	requestErr  error
	currentErr  error
	balance     *big.Int
	chainID     *big.Int
	block       chan struct{}

	requests atomic.Int32
	current  atomic.Int32

	onAccounts []func([]string)
	onChain    []func(*big.Int)
}

func newFakeProvider(accounts ...string) *fakeProvider {
	return &fakeProvider{
		accounts: accounts,
		balance:  big.NewInt(1_500_000_000_000_000_000),
		chainID:  big.NewInt(1337),
	}
}

func (p *fakeProvider) IsAvailable() bool { return !p.unavailable }

func (p *fakeProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	p.requests.Add(1)
	p.mu.Lock()
	block, accounts, err := p.block, p.accounts, p.requestErr
	p.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return append([]string(nil), accounts...), nil
}

func (p *fakeProvider) CurrentAccounts(context.Context) ([]string, error) {
	p.current.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.currentErr != nil {
		return nil, p.currentErr
	}
	return append([]string(nil), p.accounts...), nil
}

func (p *fakeProvider) GetBalance(context.Context, common.Address) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.balance == nil {
		return nil, errors.New("balance unavailable")
	}
	return new(big.Int).Set(p.balance), nil
}

func (p *fakeProvider) ChainID(context.Context) (*big.Int, error) {
	return p.chainID, nil
}

func (p *fakeProvider) OnAccountsChanged(fn func([]string)) {
	p.onAccounts = append(p.onAccounts, fn)
}

func (p *fakeProvider) OnChainChanged(fn func(*big.Int)) {
	p.onChain = append(p.onChain, fn)
}

func (p *fakeProvider) setAccounts(accounts ...string) {
	p.mu.Lock()
	p.accounts = accounts
	p.mu.Unlock()
}

// emitAccounts mimics a wallet push.
func (p *fakeProvider) emitAccounts(accounts ...string) {
	p.setAccounts(accounts...)
	for _, fn := range p.onAccounts {
		fn(accounts)
	}
}

func (p *fakeProvider) emitChain(id int64) {
	for _, fn := range p.onChain {
		fn(big.NewInt(id))
	}
}

type recordingBinder struct {
	mu    sync.Mutex
	views []core.WalletView
}

func (b *recordingBinder) Render(view core.WalletView) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.views = append(b.views, view)
}

func (b *recordingBinder) last() core.WalletView {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.views) == 0 {
		return core.WalletView{}
	}
	return b.views[len(b.views)-1]
}

type recordingPublisher struct {
	mu        sync.Mutex
	wallet    []core.WalletEvent
	purchases []core.PurchaseRecorded
	logouts   []string
	err       error
}

var _ ports.EventPublisher = (*recordingPublisher)(nil)

func (p *recordingPublisher) PublishLogout(_ context.Context, address, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logouts = append(p.logouts, address)
	return p.err
}

func (p *recordingPublisher) PublishWalletEvent(_ context.Context, event core.WalletEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wallet = append(p.wallet, event)
	return p.err
}

func (p *recordingPublisher) PublishPurchase(_ context.Context, event core.PurchaseRecorded) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.purchases = append(p.purchases, event)
	return p.err
}

func (p *recordingPublisher) walletTypes() []core.WalletEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]core.WalletEventType, 0, len(p.wallet))
	for _, e := range p.wallet {
		types = append(types, e.Type)
	}
	return types
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) IncCounter(name string, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[name+"/"+labels["outcome"]]++
}

func (r *countingRecorder) ObserveLatency(string, time.Duration, map[string]string) {}

func (r *countingRecorder) get(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}
