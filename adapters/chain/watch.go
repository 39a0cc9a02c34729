package chain

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/layer-3/agora/core"
	"go.uber.org/zap"
)

// Watch polls eth_accounts and eth_chainId and notifies the registered listeners
// whenever either changes. It blocks until ctx is done.
func (p *RPCProvider) Watch(ctx context.Context) error {
	if !p.IsAvailable() {
		return core.ErrProviderUnavailable
	}

	var w watchState
	p.poll(ctx, &w)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.poll(ctx, &w)
		}
	}
}

// watchState holds the last observed values. The first successful read only
// sets the baseline.
type watchState struct {
	accounts     []string
	chainID      *big.Int
	haveAccounts bool
	haveChain    bool
}

func (p *RPCProvider) poll(ctx context.Context, w *watchState) {
	accounts, err := p.CurrentAccounts(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Debug("failed to poll accounts", zap.Error(err))
		}
	} else {
		changed := w.haveAccounts && !sameAccounts(w.accounts, accounts)
		w.accounts, w.haveAccounts = accounts, true
		if changed {
			p.dispatchAccounts(accounts)
		}
	}

	chainID, err := p.ChainID(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Debug("failed to poll chain id", zap.Error(err))
		}
		return
	}
	changed := w.haveChain && w.chainID.Cmp(chainID) != 0
	w.chainID, w.haveChain = chainID, true
	if changed {
		p.dispatchChain(chainID)
	}
}

func (p *RPCProvider) dispatchAccounts(accounts []string) {
	p.mu.Lock()
	listeners := append([]func([]string){}, p.accountListeners...)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(append([]string(nil), accounts...))
	}
}

func (p *RPCProvider) dispatchChain(chainID *big.Int) {
	p.mu.Lock()
	listeners := append([]func(*big.Int){}, p.chainListeners...)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(new(big.Int).Set(chainID))
	}
}

func sameAccounts(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}
