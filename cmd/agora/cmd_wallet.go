package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/layer-3/agora/adapters/chain"
	"github.com/layer-3/agora/adapters/store"
	"github.com/layer-3/agora/adapters/view"
	"github.com/layer-3/agora/core"
	"github.com/layer-3/agora/ports"
	"github.com/layer-3/agora/service"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// walletCmd groups the wallet session commands
var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage the wallet session",
	Long: `Connect the wallet exposed at WALLET_RPC_URL and keep the session in
AGORA_SESSION_FILE, or under AGORA_SESSION_KEY in Redis when REDIS_URL is set.

Available subcommands:
  status     - Restore the stored session and show it
  connect    - Ask the wallet for an account
  disconnect - Forget the stored session
  watch      - Follow account and chain changes until interrupted`,
}

var (
	ephemeral  bool
	statusHTML bool
)

var walletStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the restored wallet session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !statusHTML {
			w, err := openWallet(cmd.Context(), view.NewTextBinder(os.Stdout))
			if err != nil {
				return err
			}
			defer w.close()
			return w.restore(cmd.Context())
		}

		binder := view.NewHTMLBinder(log)
		w, err := openWallet(cmd.Context(), binder)
		if err != nil {
			return err
		}
		defer w.close()
		if err := w.restore(cmd.Context()); err != nil {
			return err
		}
		fmt.Println(binder.Document())
		return nil
	},
}

func init() {
	walletCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "Keep the wallet session in memory for this command only")
	walletStatusCmd.Flags().BoolVar(&statusHTML, "html", false, "Print the wallet widget as an HTML fragment")
}

var walletConnectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect a wallet account",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		w, err := openWallet(ctx, view.NewTextBinder(os.Stdout))
		if err != nil {
			return err
		}
		defer w.close()
		if err := w.restore(ctx); err != nil {
			return err
		}
		if _, err := w.ctrl.Connect(ctx); err != nil {
			return userError(err)
		}
		return nil
	},
}

var walletDisconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Forget the wallet session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		w, err := openWallet(ctx, view.NewTextBinder(os.Stdout))
		if err != nil {
			return err
		}
		defer w.close()
		if err := w.restore(ctx); err != nil {
			return err
		}
		return w.ctrl.Disconnect(ctx)
	},
}

var walletWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow account and chain changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		w, err := openWallet(ctx, view.NewTextBinder(os.Stdout))
		if err != nil {
			return err
		}
		defer w.close()
		if err := w.restore(ctx); err != nil {
			return err
		}
		return w.provider.Watch(ctx)
	},
}

type walletSession struct {
	provider *chain.RPCProvider
	ctrl     *service.WalletController
	closers  []func()
}

// openWallet wires the controller to the wallet endpoint, the session store
// and binder.
func openWallet(ctx context.Context, binder ports.Binder) (*walletSession, error) {
	sessions, closeStore, err := sessionStore()
	if err != nil {
		return nil, err
	}

	provider, err := chain.DialRPCProvider(ctx, cfg.WalletRPCURL,
		chain.WithPollInterval(cfg.PollInterval),
		chain.WithLogger(log))
	if err != nil {
		closeStore()
		return nil, err
	}

	ctrl := service.NewWalletController(provider, sessions,
		service.WithBinder(binder),
		service.WithPromptTimeout(cfg.PromptTimeout),
		service.WithWalletLogger(log))

	return &walletSession{provider: provider, ctrl: ctrl, closers: []func(){provider.Close, closeStore}}, nil
}

// sessionStore picks where the wallet session lives: process memory with
// --ephemeral, Redis when REDIS_URL is set, the session file otherwise.
func sessionStore() (ports.SessionStore, func(), error) {
	switch {
	case ephemeral:
		return store.NewMemorySessionStore(), func() {}, nil
	case cfg.RedisURL != "":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		client := redis.NewClient(opts)
		return store.NewRedisStore(client).WithSessionKey(cfg.SessionKey), func() { _ = client.Close() }, nil
	default:
		return store.NewFileStore(cfg.SessionFile), func() {}, nil
	}
}

func (w *walletSession) close() {
	for _, fn := range w.closers {
		fn()
	}
}

// restore rehydrates the stored session. A missing wallet is reported to the
// user and ends the command.
func (w *walletSession) restore(ctx context.Context) error {
	err := w.ctrl.Restore(ctx)
	if err != nil {
		log.Debug("restore failed", zap.Error(err))
		return userError(err)
	}
	return nil
}

// userError converts err into the message shown to the user.
func userError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%s", core.UserMessage(err))
}
