package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/layer-3/agora/internal/config"
	"github.com/layer-3/agora/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfg *config.Config
	log *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:           "agora",
	Short:         "Wallet-connected marketplace",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(); err != nil {
			return err
		}
		if log, err = logger.New(cfg.Env); err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	walletCmd.AddCommand(walletStatusCmd, walletConnectCmd, walletDisconnectCmd, walletWatchCmd)
	itemCmd.AddCommand(itemUpdateCmd, itemDeleteCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(walletCmd)
	rootCmd.AddCommand(buyCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(itemCmd)
	rootCmd.AddCommand(deployCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
