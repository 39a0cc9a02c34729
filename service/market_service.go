package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/layer-3/agora/core"
	"github.com/layer-3/agora/internal/logger"
	"github.com/layer-3/agora/internal/metrics"
	"github.com/layer-3/agora/ports"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TransactionDateLayout is the date format of the transactions history.
const TransactionDateLayout = "2006-01-02 15:04:05"

// ErrInvalidInput marks a rejected form value.
var ErrInvalidInput = errors.New("invalid input")

// MarketService implements the marketplace backend.
type MarketService struct {
	items   ports.ItemRepository
	images  ports.ImageStore
	events  ports.EventPublisher
	metrics metrics.Recorder
	log     *zap.Logger
	now     func() time.Time
}

type MarketOption func(*MarketService)

func WithMarketLogger(log *zap.Logger) MarketOption {
	return func(s *MarketService) { s.log = logger.OrNop(log) }
}

func WithMarketMetrics(r metrics.Recorder) MarketOption {
	return func(s *MarketService) { s.metrics = metrics.OrNoop(r) }
}

func WithMarketEvents(p ports.EventPublisher) MarketOption {
	return func(s *MarketService) { s.events = p }
}

func NewMarketService(items ports.ItemRepository, images ports.ImageStore, opts ...MarketOption) *MarketService {
	s := &MarketService{
		items:   items,
		images:  images,
		metrics: metrics.NoopRecorder{},
		log:     zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Offer is a new listing as submitted by a seller.
type Offer struct {
	Name          string
	Description   string
	Price         string
	SellerAddress string
}

// Image is an uploaded file. A nil Image or one with an unsupported
// extension leaves the listing without a picture.
type Image struct {
	Filename string
	Content  io.Reader
}

// Edit is a listing change. Empty fields are left unchanged.
type Edit struct {
	Name        string
	Description string
	Price       string
}

// ListAvailable returns all listings that can still be bought.
func (s *MarketService) ListAvailable(ctx context.Context) ([]core.Item, error) {
	return s.items.ListItems(ctx, core.ItemAvailable)
}

// CreateOffer stores a new listing.
func (s *MarketService) CreateOffer(ctx context.Context, offer Offer, image *Image) (*core.Item, error) {
	if strings.TrimSpace(offer.Name) == "" {
		return nil, fmt.Errorf("%w: item name is required", ErrInvalidInput)
	}
	price, err := parsePrice(offer.Price)
	if err != nil {
		return nil, err
	}
	seller, err := core.CanonicalAddress(offer.SellerAddress)
	if err != nil {
		return nil, err
	}

	item := &core.Item{
		Name:          offer.Name,
		Description:   offer.Description,
		PriceEth:      price,
		SellerAddress: seller,
		Status:        core.ItemAvailable,
		CreatedAt:     s.now(),
	}
	if image != nil {
		url, err := s.images.Save(image.Filename, image.Content)
		if err != nil {
			s.log.Info("listing stored without image", zap.String("filename", image.Filename), zap.Error(err))
		}
		item.ImageURL = url
	}

	if err := s.items.CreateItem(ctx, item); err != nil {
		s.discardImage(item.ImageURL)
		return nil, err
	}
	s.metrics.IncCounter("offers_created", map[string]string{"outcome": "ok"})
	s.log.Info("offer created", zap.Int64("item_id", item.ID), zap.String("seller", seller))
	return item, nil
}

// SellerAddress returns the seller of itemID.
func (s *MarketService) SellerAddress(ctx context.Context, itemID int64) (string, error) {
	item, err := s.items.GetItem(ctx, itemID)
	if err != nil {
		return "", err
	}
	return item.SellerAddress, nil
}

// RecordPurchase stores a confirmed purchase and marks the item sold.
func (s *MarketService) RecordPurchase(ctx context.Context, itemID int64, confirmation core.PurchaseConfirmation) (*core.Transaction, error) {
	txHash := strings.TrimSpace(confirmation.TxHash)
	tx, item, err := s.items.RecordPurchase(ctx, itemID, confirmation.BuyerAddress, txHash)
	if err != nil {
		s.metrics.IncCounter("purchases_recorded", map[string]string{"outcome": purchaseRecordOutcome(err)})
		return nil, err
	}
	s.metrics.IncCounter("purchases_recorded", map[string]string{"outcome": "ok"})
	s.log.Info("purchase recorded",
		zap.Int64("item_id", item.ID),
		zap.Int64("transaction_id", tx.ID),
		zap.String("buyer", tx.BuyerAddress),
		zap.String("tx_hash", tx.TxHash))

	if s.events != nil {
		event := core.PurchaseRecorded{
			TransactionID: tx.ID,
			ItemID:        item.ID,
			SellerAddress: tx.SellerAddress,
			BuyerAddress:  tx.BuyerAddress,
			PriceEth:      tx.PriceEth.String(),
			TxHash:        tx.TxHash,
			OccurredAt:    tx.CreatedAt,
		}
		if err := s.events.PublishPurchase(ctx, event); err != nil {
			s.log.Warn("failed to publish purchase", zap.Int64("transaction_id", tx.ID), zap.Error(err))
		}
	}
	return tx, nil
}

// Profile lists the listings of address and the items it bought.
func (s *MarketService) Profile(ctx context.Context, address string) (*core.Profile, error) {
	sales, err := s.items.ListItemsBySeller(ctx, address)
	if err != nil {
		return nil, err
	}
	txs, err := s.items.ListTransactionsByBuyer(ctx, address)
	if err != nil {
		return nil, err
	}

	profile := &core.Profile{Sales: sales, Purchases: make([]core.Item, 0, len(txs))}
	if profile.Sales == nil {
		profile.Sales = []core.Item{}
	}
	for _, tx := range txs {
		item, err := s.items.GetItem(ctx, tx.ItemID)
		if errors.Is(err, core.ErrItemNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		profile.Purchases = append(profile.Purchases, *item)
	}
	return profile, nil
}

// Transactions returns the purchase history of address.
func (s *MarketService) Transactions(ctx context.Context, address string) ([]core.TransactionView, error) {
	txs, err := s.items.ListTransactionsByBuyer(ctx, address)
	if err != nil {
		return nil, err
	}

	views := make([]core.TransactionView, 0, len(txs))
	for _, tx := range txs {
		view := core.TransactionView{
			SellerAddress: tx.SellerAddress,
			Date:          tx.CreatedAt.UTC().Format(TransactionDateLayout),
			PriceEth:      tx.PriceEth,
			TxHash:        tx.TxHash,
		}
		item, err := s.items.GetItem(ctx, tx.ItemID)
		switch {
		case err == nil:
			view.ItemName = item.Name
			view.ImageURL = item.ImageURL
		case !errors.Is(err, core.ErrItemNotFound):
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// UpdateItem edits a listing owned by owner. A new image replaces the old one.
func (s *MarketService) UpdateItem(ctx context.Context, owner string, itemID int64, edit Edit, image *Image) (*core.Item, error) {
	item, err := s.owned(ctx, owner, itemID)
	if err != nil {
		return nil, err
	}

	var update core.ItemUpdate
	if edit.Name != "" {
		update.Name = &edit.Name
	}
	if edit.Description != "" {
		update.Description = &edit.Description
	}
	if edit.Price != "" {
		price, err := parsePrice(edit.Price)
		if err != nil {
			return nil, err
		}
		update.PriceEth = &price
	}
	if image != nil {
		url, err := s.images.Save(image.Filename, image.Content)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		update.ImageURL = &url
	}

	updated, err := s.items.UpdateItem(ctx, itemID, update)
	if err != nil {
		if update.ImageURL != nil {
			s.discardImage(*update.ImageURL)
		}
		return nil, err
	}
	if update.ImageURL != nil {
		s.discardImage(item.ImageURL)
	}
	s.log.Info("item updated", zap.Int64("item_id", itemID))
	return updated, nil
}

// DeleteItem removes a listing owned by owner. Sold items stay on record.
func (s *MarketService) DeleteItem(ctx context.Context, owner string, itemID int64) error {
	item, err := s.owned(ctx, owner, itemID)
	if err != nil {
		return err
	}
	if item.Status != core.ItemAvailable {
		return core.ErrItemUnavailable
	}
	if err := s.items.DeleteItem(ctx, itemID); err != nil {
		return err
	}
	s.discardImage(item.ImageURL)
	s.log.Info("item deleted", zap.Int64("item_id", itemID))
	return nil
}

func (s *MarketService) owned(ctx context.Context, owner string, itemID int64) (*core.Item, error) {
	ownerAddr, err := core.ParseAddress(owner)
	if err != nil {
		return nil, err
	}
	item, err := s.items.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if !core.SameAddress(item.SellerAddress, ownerAddr.Hex()) {
		return nil, core.ErrNotItemOwner
	}
	return item, nil
}

func (s *MarketService) discardImage(url string) {
	if url == "" {
		return
	}
	if err := s.images.Delete(url); err != nil {
		s.log.Warn("failed to delete image", zap.String("url", url), zap.Error(err))
	}
}

func parsePrice(s string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: price %q", ErrInvalidInput, s)
	}
	if !price.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: price must be positive", ErrInvalidInput)
	}
	if price.Exponent() < -18 {
		return decimal.Decimal{}, fmt.Errorf("%w: price has more than 18 decimals", ErrInvalidInput)
	}
	return price, nil
}

func purchaseRecordOutcome(err error) string {
	switch {
	case errors.Is(err, core.ErrItemUnavailable), errors.Is(err, core.ErrItemNotFound):
		return "unavailable"
	case errors.Is(err, core.ErrDuplicateTx):
		return "duplicate"
	case errors.Is(err, core.ErrInvalidAddress):
		return "invalid"
	default:
		return "error"
	}
}
