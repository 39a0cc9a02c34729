package ports

import (
	"context"
	"io"

	"github.com/layer-3/agora/core"
)

// MarketAPI is the client side of the marketplace backend.
type MarketAPI interface {
	SellerAddress(ctx context.Context, itemID int64) (string, error)
	ContractConfig(ctx context.Context) (*core.ContractConfig, error)
	ConfirmPurchase(ctx context.Context, itemID int64, confirmation core.PurchaseConfirmation) error
}

// ItemRepository stores listings and purchases.
type ItemRepository interface {
	CreateItem(ctx context.Context, item *core.Item) error
	GetItem(ctx context.Context, id int64) (*core.Item, error)
	ListItems(ctx context.Context, status core.ItemStatus) ([]core.Item, error)
	ListItemsBySeller(ctx context.Context, seller string) ([]core.Item, error)
	UpdateItem(ctx context.Context, id int64, update core.ItemUpdate) (*core.Item, error)
	DeleteItem(ctx context.Context, id int64) error

	// RecordPurchase marks an available item sold and stores the transaction atomically.
	RecordPurchase(ctx context.Context, itemID int64, buyer, txHash string) (*core.Transaction, *core.Item, error)
	ListTransactionsByBuyer(ctx context.Context, buyer string) ([]core.Transaction, error)
}

// ImageStore keeps uploaded listing images.
type ImageStore interface {
	// Save stores the image and returns the public URL path.
	Save(filename string, r io.Reader) (string, error)
	Delete(url string) error
}
