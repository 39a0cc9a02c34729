package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/layer-3/agora/adapters/contract"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// deployCmd deploys MarketplacePayment and writes the deployment record
var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy the MarketplacePayment contract",
	Long: `Deploy MarketplacePayment to ETH_RPC_URL with DEPLOYER_KEY and write
{contractAddress, abi} to AGORA_DEPLOYMENT_FILE, where the backend serves it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if cfg.DeployerKey == "" {
			return fmt.Errorf("DEPLOYER_KEY is not set")
		}
		key, err := parseKey(cfg.DeployerKey)
		if err != nil {
			return err
		}

		client, err := ethclient.DialContext(ctx, cfg.EthRPCURL)
		if err != nil {
			return fmt.Errorf("failed to connect to %s: %w", cfg.EthRPCURL, err)
		}
		defer client.Close()

		chainID, err := client.ChainID(ctx)
		if err != nil {
			return fmt.Errorf("failed to read chain id: %w", err)
		}
		opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
		if err != nil {
			return err
		}
		opts.Context = ctx

		_, tx, payment, err := contract.Deploy(opts, client)
		if err != nil {
			return fmt.Errorf("failed to deploy: %w", err)
		}
		log.Info("deployment submitted", zap.String("tx_hash", tx.Hash().Hex()))

		address, err := bind.WaitDeployed(ctx, client, tx)
		if err != nil {
			return fmt.Errorf("deployment not mined: %w", err)
		}

		record, err := json.MarshalIndent(payment.Config(), "", "  ")
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(cfg.DeploymentFile), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(cfg.DeploymentFile, record, 0o644); err != nil {
			return err
		}

		fmt.Printf("MarketplacePayment deployed at %s\n", address.Hex())
		return nil
	},
}
