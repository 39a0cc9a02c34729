package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/agora/core"
	"github.com/layer-3/agora/internal/logger"
	"github.com/layer-3/agora/internal/metrics"
	"github.com/layer-3/agora/ports"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const defaultPromptTimeout = 2 * time.Minute

// WalletController owns the wallet session: it is the only writer of the
// session store and the only caller of the binder.
//
// Addresses are compared as parsed common.Address values everywhere, so the
// spelling a wallet or the store uses never matters.
type WalletController struct {
	provider      ports.ChainProvider
	store         ports.SessionStore
	binder        ports.Binder
	events        ports.EventPublisher
	metrics       metrics.Recorder
	log           *zap.Logger
	promptTimeout time.Duration
	now           func() time.Time

	connects singleflight.Group

	mu      sync.Mutex
	gen     uint64 // bumped on every teardown
	state   core.WalletState
	address common.Address
	balance *big.Int
	chainID *big.Int
}

type WalletOption func(*WalletController)

func WithBinder(b ports.Binder) WalletOption {
	return func(c *WalletController) { c.binder = b }
}

func WithWalletEvents(p ports.EventPublisher) WalletOption {
	return func(c *WalletController) { c.events = p }
}

func WithWalletMetrics(r metrics.Recorder) WalletOption {
	return func(c *WalletController) { c.metrics = metrics.OrNoop(r) }
}

func WithWalletLogger(log *zap.Logger) WalletOption {
	return func(c *WalletController) { c.log = logger.OrNop(log) }
}

// WithPromptTimeout bounds every wallet request made by the controller.
func WithPromptTimeout(d time.Duration) WalletOption {
	return func(c *WalletController) {
		if d > 0 {
			c.promptTimeout = d
		}
	}
}

func WithClock(now func() time.Time) WalletOption {
	return func(c *WalletController) { c.now = now }
}

// NewWalletController builds a controller in the Disconnected state and
// subscribes it to the provider's account and chain events.
func NewWalletController(provider ports.ChainProvider, store ports.SessionStore, opts ...WalletOption) *WalletController {
	c := &WalletController{
		provider:      provider,
		store:         store,
		metrics:       metrics.NoopRecorder{},
		log:           zap.NewNop(),
		promptTimeout: defaultPromptTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	provider.OnAccountsChanged(func(accounts []string) {
		ctx, cancel := context.WithTimeout(context.Background(), c.promptTimeout)
		defer cancel()
		if err := c.HandleAccountsChanged(ctx, accounts); err != nil {
			c.log.Warn("failed to apply account change", zap.Error(err))
		}
	})
	provider.OnChainChanged(func(chainID *big.Int) {
		ctx, cancel := context.WithTimeout(context.Background(), c.promptTimeout)
		defer cancel()
		c.HandleChainChanged(ctx, chainID)
	})

	return c
}

// State returns the current controller state.
func (c *WalletController) State() core.WalletState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Address returns the connected address, or false when not connected.
func (c *WalletController) Address() (common.Address, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.address, c.state == core.WalletConnected
}

// View returns the projection the binder last received.
func (c *WalletController) View() core.WalletView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return core.ProjectWallet(c.state, c.address, c.balance)
}

// Restore rehydrates a stored session without prompting. The session survives
// only if the wallet still exposes the stored address as its first account;
// otherwise the store is cleared and the controller stays Disconnected.
func (c *WalletController) Restore(ctx context.Context) error {
	if !c.provider.IsAvailable() {
		c.count("restore", "unavailable")
		return core.ErrProviderUnavailable
	}
	gen := c.generation()

	session, err := c.store.Load(ctx)
	if errors.Is(err, ports.ErrCorruptSession) {
		c.log.Debug("discarding unreadable wallet session", zap.Error(err))
		c.count("restore", "corrupt")
		return c.discard(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to load wallet session: %w", err)
	}
	if session == nil {
		c.setDisconnected()
		return nil
	}

	stored, err := core.ParseAddress(session.Address)
	if !session.Connected || err != nil {
		c.log.Debug("discarding unusable wallet session", zap.String("address", session.Address))
		return c.discard(ctx)
	}

	pctx, cancel := context.WithTimeout(ctx, c.promptTimeout)
	defer cancel()
	accounts, err := c.provider.CurrentAccounts(pctx)
	if err != nil {
		err = c.timeout(pctx, err)
		if clearErr := c.discard(ctx); clearErr != nil {
			c.log.Warn("failed to clear wallet session", zap.Error(clearErr))
		}
		c.count("restore", "error")
		return err
	}

	live, ok := firstAccount(accounts)
	if !ok || live != stored {
		c.log.Debug("stored wallet session no longer matches", zap.Error(core.ErrAddressMismatch),
			zap.String("stored", stored.Hex()), zap.Strings("accounts", accounts))
		c.count("restore", "mismatch")
		return c.discard(ctx)
	}

	if err := c.connected(ctx, live, core.WalletEventRestored, gen); err != nil {
		return err
	}
	c.count("restore", "ok")
	return nil
}

// Connect prompts the wallet for accounts. Concurrent calls share one prompt.
// Connecting while already connected returns the current address.
func (c *WalletController) Connect(ctx context.Context) (common.Address, error) {
	if addr, ok := c.Address(); ok {
		return addr, nil
	}

	// The shared prompt outlives any single caller; each caller only stops waiting.
	results := c.connects.DoChan("connect", func() (interface{}, error) {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.promptTimeout)
		defer cancel()
		return c.connect(pctx)
	})

	select {
	case <-ctx.Done():
		return common.Address{}, ctx.Err()
	case res := <-results:
		if res.Shared {
			c.log.Debug("connect request coalesced")
		}
		if res.Err != nil {
			return common.Address{}, res.Err
		}
		return res.Val.(common.Address), nil
	}
}

func (c *WalletController) connect(ctx context.Context) (common.Address, error) {
	start := c.now()
	if !c.provider.IsAvailable() {
		c.fail(ctx, core.ErrProviderUnavailable)
		return common.Address{}, core.ErrProviderUnavailable
	}

	c.mu.Lock()
	c.state = core.WalletConnecting
	gen := c.gen
	c.mu.Unlock()
	c.render()

	accounts, err := c.provider.RequestAccounts(ctx)
	var addr common.Address
	if err == nil {
		var ok bool
		if addr, ok = firstAccount(accounts); !ok {
			err = core.ErrNoAccounts
			if len(accounts) > 0 {
				err = fmt.Errorf("%w: %q", core.ErrInvalidAddress, accounts[0])
			}
		}
	}
	if err == nil {
		err = c.connected(ctx, addr, core.WalletEventConnected, gen)
	}
	switch {
	case errors.Is(err, core.ErrConnectAborted), err != nil && c.superseded(gen):
		c.log.Info("wallet connect aborted by disconnect")
		c.count("connect", "aborted")
		return common.Address{}, core.ErrConnectAborted
	case err != nil:
		err = c.timeout(ctx, err)
		c.fail(context.WithoutCancel(ctx), err)
		return common.Address{}, err
	}

	c.metrics.ObserveLatency("wallet_connect", c.now().Sub(start), map[string]string{"outcome": "ok"})
	c.count("connect", "ok")
	return addr, nil
}

// Disconnect clears the session. Disconnecting while disconnected does nothing.
func (c *WalletController) Disconnect(ctx context.Context) error {
	if c.State() == core.WalletDisconnected {
		return nil
	}
	return c.teardown(ctx, "user disconnected")
}

// HandleAccountsChanged applies a wallet account-list change. An empty list (or
// an unusable first entry) disconnects; a different first account becomes the
// connected account.
func (c *WalletController) HandleAccountsChanged(ctx context.Context, accounts []string) error {
	addr, ok := firstAccount(accounts)
	if !ok {
		return c.teardown(ctx, "wallet exposes no account")
	}

	c.mu.Lock()
	same := c.state == core.WalletConnected && c.address == addr
	gen := c.gen
	c.mu.Unlock()
	if same {
		return nil
	}

	if err := c.connected(ctx, addr, core.WalletEventSwitched, gen); err != nil {
		return err
	}
	c.count("switch", "ok")
	return nil
}

// HandleChainChanged drops chain-dependent values and reloads them for the
// current address.
func (c *WalletController) HandleChainChanged(ctx context.Context, chainID *big.Int) {
	c.mu.Lock()
	c.chainID = chainID
	c.balance = nil
	addr, connected := c.address, c.state == core.WalletConnected
	c.mu.Unlock()

	if connected {
		c.refreshBalance(ctx, addr)
	}
	c.render()

	event := core.WalletEvent{Type: core.WalletEventChainChanged}
	if chainID != nil {
		event.ChainID = chainID.String()
	}
	if connected {
		event.Address = addr.Hex()
	}
	c.publish(ctx, event)
	c.count("chain_changed", "ok")
}

// RequireSigner re-reads the wallet's first account right before a payment.
// If the account moved, the change is applied and ErrSignerChanged returned so
// the caller can ask the user to review the purchase.
func (c *WalletController) RequireSigner(ctx context.Context) (common.Address, error) {
	expected, ok := c.Address()
	if !ok {
		return common.Address{}, core.ErrNotConnected
	}

	pctx, cancel := context.WithTimeout(ctx, c.promptTimeout)
	defer cancel()
	accounts, err := c.provider.CurrentAccounts(pctx)
	if err != nil {
		return common.Address{}, c.timeout(pctx, err)
	}

	if live, ok := firstAccount(accounts); !ok || live != expected {
		if err := c.HandleAccountsChanged(ctx, accounts); err != nil {
			c.log.Warn("failed to apply account change", zap.Error(err))
		}
		return common.Address{}, fmt.Errorf("%w: expected %s", core.ErrSignerChanged, expected.Hex())
	}
	return expected, nil
}

// connected persists addr and moves to Connected.
// A teardown since gen was read wins: the saved record is cleared again and
// ErrConnectAborted returned.
func (c *WalletController) connected(ctx context.Context, addr common.Address, kind core.WalletEventType, gen uint64) error {
	session := core.WalletSession{Connected: true, Address: addr.Hex(), ObservedAt: c.now()}
	if err := c.store.Save(ctx, session); err != nil {
		return fmt.Errorf("failed to save wallet session: %w", err)
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		if err := c.store.Clear(ctx); err != nil {
			c.log.Warn("failed to clear wallet session", zap.Error(err))
		}
		return core.ErrConnectAborted
	}
	c.state = core.WalletConnected
	c.address = addr
	c.balance = nil
	c.mu.Unlock()

	c.refreshBalance(ctx, addr)
	c.render()
	c.publish(ctx, core.WalletEvent{Type: kind, Address: addr.Hex()})
	c.log.Info("wallet connected", zap.String("address", addr.Hex()), zap.String("event", string(kind)))
	return nil
}

// fail handles a failed Connect: clear, Disconnected, surface.
func (c *WalletController) fail(ctx context.Context, cause error) {
	if err := c.store.Clear(ctx); err != nil {
		c.log.Warn("failed to clear wallet session", zap.Error(err))
	}
	c.setDisconnected()
	c.publish(ctx, core.WalletEvent{Type: core.WalletEventConnectFailed, Reason: cause.Error()})
	c.count("connect", outcome(cause))
	c.log.Info("wallet connect failed", zap.Error(cause))
}

func (c *WalletController) teardown(ctx context.Context, reason string) error {
	c.mu.Lock()
	c.gen++
	wasConnected := c.state != core.WalletDisconnected
	var prev string
	if c.state == core.WalletConnected {
		prev = c.address.Hex()
	}
	c.mu.Unlock()

	err := c.store.Clear(ctx)
	c.setDisconnected()
	if wasConnected {
		c.publish(ctx, core.WalletEvent{Type: core.WalletEventDisconnected, Address: prev, Reason: reason})
		c.count("disconnect", "ok")
		c.log.Info("wallet disconnected", zap.String("reason", reason))
	}
	if err != nil {
		return fmt.Errorf("failed to clear wallet session: %w", err)
	}
	return nil
}

func (c *WalletController) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// superseded reports whether a teardown happened since gen was read.
func (c *WalletController) superseded(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen != gen
}

// discard silently drops a stored session that cannot be restored.
func (c *WalletController) discard(ctx context.Context) error {
	c.setDisconnected()
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear wallet session: %w", err)
	}
	return nil
}

func (c *WalletController) setDisconnected() {
	c.mu.Lock()
	c.state = core.WalletDisconnected
	c.address = common.Address{}
	c.balance = nil
	c.mu.Unlock()
	c.render()
}

func (c *WalletController) refreshBalance(ctx context.Context, addr common.Address) {
	pctx, cancel := context.WithTimeout(ctx, c.promptTimeout)
	defer cancel()
	balance, err := c.provider.GetBalance(pctx, addr)
	if err != nil {
		c.log.Debug("failed to fetch balance", zap.String("address", addr.Hex()), zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == core.WalletConnected && c.address == addr {
		c.balance = balance
	}
}

func (c *WalletController) render() {
	if c.binder == nil {
		return
	}
	c.binder.Render(c.View())
}

func (c *WalletController) publish(ctx context.Context, event core.WalletEvent) {
	if c.events == nil {
		return
	}
	event.OccurredAt = c.now()
	if err := c.events.PublishWalletEvent(ctx, event); err != nil {
		c.log.Warn("failed to publish wallet event", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

func (c *WalletController) count(op, result string) {
	c.metrics.IncCounter("wallet_"+op, map[string]string{"outcome": result})
}

// timeout reports err as core.ErrTimeout when the prompt ran out of time.
func (c *WalletController) timeout(pctx context.Context, err error) error {
	if errors.Is(err, core.ErrTimeout) || !core.IsTimeout(pctx, err) {
		return err
	}
	return fmt.Errorf("%w: %v", core.ErrTimeout, err)
}

func firstAccount(accounts []string) (common.Address, bool) {
	if len(accounts) == 0 {
		return common.Address{}, false
	}
	addr, err := core.ParseAddress(accounts[0])
	if err != nil {
		return common.Address{}, false
	}
	return addr, true
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, core.ErrUserRejected):
		return "rejected"
	case errors.Is(err, core.ErrTimeout):
		return "timeout"
	case errors.Is(err, core.ErrProviderUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
