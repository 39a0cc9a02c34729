package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/layer-3/agora/adapters/chain"
	"github.com/layer-3/agora/adapters/marketapi"
	"github.com/layer-3/agora/adapters/view"
	"github.com/layer-3/agora/core"
	"github.com/layer-3/agora/internal/config"
	"github.com/layer-3/agora/ports"
	"github.com/layer-3/agora/service"
	"github.com/spf13/cobra"
)

var (
	buyDirect bool
	keyHex    string
)

// buyCmd pays for an item and reports the purchase to the backend
var buyCmd = &cobra.Command{
	Use:   "buy <item-id> <price-eth>",
	Short: "Buy a listed item",
	Long: `Pay for an item with the connected wallet and confirm the purchase.

The payment goes through the MarketplacePayment contract unless --direct is
given, in which case the seller is paid with a plain transfer. With --key the
transaction is signed locally and sent to ETH_RPC_URL instead of the wallet.`,
	Args: cobra.ExactArgs(2),
	RunE: runBuy,
}

func init() {
	buyCmd.Flags().BoolVar(&buyDirect, "direct", false, "Pay the seller with a plain transfer")
	for _, c := range []*cobra.Command{buyCmd, itemUpdateCmd, itemDeleteCmd} {
		c.Flags().StringVar(&keyHex, "key", "", "Hex private key that signs instead of the wallet")
		c.Flags().BoolVar(&ephemeral, "ephemeral", false, "Keep the wallet session in memory for this command only")
	}
}

func runBuy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	itemID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid item id %q", args[0])
	}
	price, err := core.ParseEther(args[1])
	if err != nil {
		return err
	}

	mode := cfg.PaymentMode
	if buyDirect {
		mode = config.PaymentDirect
	}

	guard, sender, closeFn, err := payer(ctx)
	if err != nil {
		return userError(err)
	}
	defer closeFn()

	flow := service.NewPurchaseFlow(marketapi.NewClient(cfg.APIURL, 0), guard, sender,
		service.WithPaymentMode(mode),
		service.WithPurchaseLogger(log))

	receipt, err := flow.Buy(ctx, itemID, price)
	if receipt != nil && !receipt.Recorded {
		fmt.Printf("Payment %s is on-chain but the marketplace did not record it.\n", receipt.TxHash.Hex())
	}
	if err != nil {
		return userError(err)
	}

	fmt.Printf("Kauf erfolgreich! %s ETH paid to %s (tx %s)\n",
		core.FormatEther(receipt.Price, 4), receipt.Seller.Hex(), receipt.TxHash.Hex())
	return nil
}

// keyGuard lets a local key pay without a wallet session.
type keyGuard struct {
	addr common.Address
}

func (g keyGuard) RequireSigner(context.Context) (common.Address, error) {
	return g.addr, nil
}

// payer returns who signs the payment: a local key when --key is set, the
// connected wallet otherwise.
func payer(ctx context.Context) (service.SignerGuard, ports.TxSender, func(), error) {
	if keyHex != "" {
		sender, closeFn, err := keySender(ctx, keyHex)
		if err != nil {
			return nil, nil, nil, err
		}
		return keyGuard{addr: sender.Address()}, sender, closeFn, nil
	}

	w, err := openWallet(ctx, view.NewTextBinder(os.Stdout))
	if err != nil {
		return nil, nil, nil, err
	}
	if err := w.restore(ctx); err != nil {
		w.close()
		return nil, nil, nil, err
	}
	if _, err := w.ctrl.Connect(ctx); err != nil {
		w.close()
		return nil, nil, nil, err
	}
	return w.ctrl, w.provider, w.close, nil
}

func keySender(ctx context.Context, hexKey string) (*chain.KeySender, func(), error) {
	key, err := parseKey(hexKey)
	if err != nil {
		return nil, nil, err
	}
	client, err := ethclient.DialContext(ctx, cfg.EthRPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", core.ErrProviderUnavailable, err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to read chain id: %w", err)
	}
	sender := chain.NewKeySender(key, chainID, client).WithPollInterval(cfg.PollInterval)
	return sender, client.Close, nil
}

func parseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

// signer returns the account that signs in to the backend.
func signer(ctx context.Context) (ports.TextSigner, common.Address, func(), error) {
	if keyHex != "" {
		sender, closeFn, err := keySender(ctx, keyHex)
		if err != nil {
			return nil, common.Address{}, nil, err
		}
		return sender, sender.Address(), closeFn, nil
	}

	w, err := openWallet(ctx, view.NewTextBinder(os.Stdout))
	if err != nil {
		return nil, common.Address{}, nil, err
	}
	if err := w.restore(ctx); err != nil {
		w.close()
		return nil, common.Address{}, nil, err
	}
	addr, err := w.ctrl.Connect(ctx)
	if err != nil {
		w.close()
		return nil, common.Address{}, nil, err
	}
	return w.provider, addr, w.close, nil
}

// profileCmd prints the listings and purchases of an address
var profileCmd = &cobra.Command{
	Use:   "profile <address>",
	Short: "Show the sales and purchases of an address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := marketapi.NewClient(cfg.APIURL, 0).Profile(cmd.Context(), args[0])
		if err != nil {
			return userError(err)
		}
		return printJSON(profile)
	},
}

// historyCmd prints the purchase history of an address
var historyCmd = &cobra.Command{
	Use:   "history <address>",
	Short: "Show the purchase history of an address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		views, err := marketapi.NewClient(cfg.APIURL, 0).Transactions(cmd.Context(), args[0])
		if err != nil {
			return userError(err)
		}
		for _, v := range views {
			fmt.Printf("%s  %-24s %s ETH  seller %s\n", v.Date, v.ItemName, v.PriceEth.String(), v.SellerAddress)
		}
		return nil
	},
}

var (
	editName        string
	editDescription string
	editPrice       string
	editImage       string
)

// itemCmd groups the seller commands
var itemCmd = &cobra.Command{
	Use:   "item",
	Short: "Edit or remove your listings",
}

var itemUpdateCmd = &cobra.Command{
	Use:   "update <item-id>",
	Short: "Edit a listing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		itemID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid item id %q", args[0])
		}

		client, owner, closeFn, err := signedInClient(ctx)
		if err != nil {
			return userError(err)
		}
		defer closeFn()

		edit := marketapi.ItemEdit{Name: editName, Description: editDescription, Price: editPrice}
		if editImage != "" {
			f, err := os.Open(editImage)
			if err != nil {
				return err
			}
			defer f.Close()
			edit.ImageFilename, edit.Image = filepath.Base(f.Name()), f
		}

		item, err := client.UpdateItem(ctx, owner.Hex(), itemID, edit)
		if err != nil {
			return userError(err)
		}
		return printJSON(item)
	},
}

var itemDeleteCmd = &cobra.Command{
	Use:   "delete <item-id>",
	Short: "Remove a listing that has not been sold",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		itemID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid item id %q", args[0])
		}

		client, owner, closeFn, err := signedInClient(ctx)
		if err != nil {
			return userError(err)
		}
		defer closeFn()

		if err := client.DeleteItem(ctx, owner.Hex(), itemID); err != nil {
			return userError(err)
		}
		fmt.Printf("Item %d deleted\n", itemID)
		return nil
	},
}

func init() {
	itemUpdateCmd.Flags().StringVar(&editName, "name", "", "New item name")
	itemUpdateCmd.Flags().StringVar(&editDescription, "description", "", "New description")
	itemUpdateCmd.Flags().StringVar(&editPrice, "price", "", "New price in ETH")
	itemUpdateCmd.Flags().StringVar(&editImage, "image", "", "Path of a new image (png, jpg, gif)")
}

func signedInClient(ctx context.Context) (*marketapi.Client, common.Address, func(), error) {
	textSigner, addr, closeFn, err := signer(ctx)
	if err != nil {
		return nil, common.Address{}, nil, err
	}
	client, err := marketapi.NewClient(cfg.APIURL, 0).Authenticate(ctx, textSigner, addr)
	if err != nil {
		closeFn()
		return nil, common.Address{}, nil, err
	}
	return client, addr, closeFn, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
