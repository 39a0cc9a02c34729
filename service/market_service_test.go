package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/layer-3/agora/adapters/sqlite"
	"github.com/layer-3/agora/adapters/uploads"
	"github.com/layer-3/agora/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type marketFixture struct {
	svc    *MarketService
	repo   *sqlite.Repository
	images *uploads.DiskStore
	events *recordingPublisher
}

func newMarketFixture(t *testing.T) *marketFixture {
	t.Helper()
	dir := t.TempDir()
	repo, err := sqlite.Open(filepath.Join(dir, "marketplace.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	images, err := uploads.NewDiskStore(filepath.Join(dir, "uploads"))
	require.NoError(t, err)

	events := &recordingPublisher{}
	return &marketFixture{
		svc:    NewMarketService(repo, images, WithMarketEvents(events)),
		repo:   repo,
		images: images,
		events: events,
	}
}

func (f *marketFixture) offer(t *testing.T, name, price, seller string) *core.Item {
	t.Helper()
	item, err := f.svc.CreateOffer(context.Background(), Offer{Name: name, Description: name + " description", Price: price, SellerAddress: seller}, nil)
	require.NoError(t, err)
	return item
}

func uploadedFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestMarketService_CreateOffer(t *testing.T) {
	f := newMarketFixture(t)
	ctx := context.Background()

	item, err := f.svc.CreateOffer(ctx,
		Offer{Name: "Lamp", Description: "Brass", Price: "0.5", SellerAddress: strings.ToLower(alice)},
		&Image{Filename: "lamp.PNG", Content: strings.NewReader("png")})
	require.NoError(t, err)

	assert.NotZero(t, item.ID)
	assert.Equal(t, alice, item.SellerAddress, "seller stored checksummed")
	assert.Equal(t, core.ItemAvailable, item.Status)
	assert.True(t, strings.HasPrefix(item.ImageURL, "/uploads/"))
	assert.Len(t, uploadedFiles(t, f.images.Dir()), 1)

	noImage, err := f.svc.CreateOffer(ctx,
		Offer{Name: "Chair", Price: "1", SellerAddress: alice},
		&Image{Filename: "chair.exe", Content: strings.NewReader("MZ")})
	require.NoError(t, err)
	assert.Empty(t, noImage.ImageURL, "unsupported upload is dropped")

	available, err := f.svc.ListAvailable(ctx)
	require.NoError(t, err)
	assert.Len(t, available, 2)
}

func TestMarketService_CreateOfferValidation(t *testing.T) {
	f := newMarketFixture(t)
	tests := []struct {
		name  string
		offer Offer
		want  error
	}{
		{"missing name", Offer{Price: "1", SellerAddress: alice}, ErrInvalidInput},
		{"bad price", Offer{Name: "x", Price: "abc", SellerAddress: alice}, ErrInvalidInput},
		{"zero price", Offer{Name: "x", Price: "0", SellerAddress: alice}, ErrInvalidInput},
		{"negative price", Offer{Name: "x", Price: "-1", SellerAddress: alice}, ErrInvalidInput},
		{"bad seller", Offer{Name: "x", Price: "1", SellerAddress: "0x1"}, core.ErrInvalidAddress},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateOffer(context.Background(), tc.offer, nil)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestMarketService_RecordPurchase(t *testing.T) {
	f := newMarketFixture(t)
	ctx := context.Background()
	item := f.offer(t, "Lamp", "0.25", alice)

	seller, err := f.svc.SellerAddress(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, alice, seller)

	tx, err := f.svc.RecordPurchase(ctx, item.ID, core.PurchaseConfirmation{BuyerAddress: strings.ToLower(bob), TxHash: "0xabc"})
	require.NoError(t, err)
	assert.Equal(t, bob, tx.BuyerAddress)
	assert.Equal(t, "0.25", tx.PriceEth.String())

	require.Len(t, f.events.purchases, 1)
	assert.Equal(t, tx.ID, f.events.purchases[0].TransactionID)
	assert.Equal(t, "0xabc", f.events.purchases[0].TxHash)

	_, err = f.svc.RecordPurchase(ctx, item.ID, core.PurchaseConfirmation{BuyerAddress: bob, TxHash: "0xdef"})
	assert.ErrorIs(t, err, core.ErrItemUnavailable, "sold items cannot be bought twice")

	other := f.offer(t, "Chair", "1", alice)
	_, err = f.svc.RecordPurchase(ctx, other.ID, core.PurchaseConfirmation{BuyerAddress: bob, TxHash: "0xabc"})
	assert.ErrorIs(t, err, core.ErrDuplicateTx)

	_, err = f.svc.RecordPurchase(ctx, 404, core.PurchaseConfirmation{BuyerAddress: bob})
	assert.ErrorIs(t, err, core.ErrItemNotFound)

	available, err := f.svc.ListAvailable(ctx)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, other.ID, available[0].ID)
}

func TestMarketService_ProfileAndTransactions(t *testing.T) {
	f := newMarketFixture(t)
	ctx := context.Background()
	f.offer(t, "Lamp", "0.25", alice)
	f.offer(t, "Chair", "1", alice)
	rug := f.offer(t, "Rug", "2", bob)

	_, err := f.svc.RecordPurchase(ctx, rug.ID, core.PurchaseConfirmation{BuyerAddress: alice, TxHash: "0x01"})
	require.NoError(t, err)

	profile, err := f.svc.Profile(ctx, strings.ToLower(alice))
	require.NoError(t, err)
	assert.Len(t, profile.Sales, 2)
	require.Len(t, profile.Purchases, 1)
	assert.Equal(t, rug.ID, profile.Purchases[0].ID)
	assert.Equal(t, core.ItemSold, profile.Purchases[0].Status)

	views, err := f.svc.Transactions(ctx, alice)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Rug", views[0].ItemName)
	assert.Equal(t, bob, views[0].SellerAddress)
	assert.Equal(t, "2", views[0].PriceEth.String())
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`, views[0].Date)

	empty, err := f.svc.Profile(ctx, bob)
	require.NoError(t, err)
	assert.Len(t, empty.Sales, 1)
	assert.Empty(t, empty.Purchases)
	assert.NotNil(t, empty.Purchases)

	_, err = f.svc.Profile(ctx, "nope")
	assert.ErrorIs(t, err, core.ErrInvalidAddress)
}

func TestMarketService_UpdateItem(t *testing.T) {
	f := newMarketFixture(t)
	ctx := context.Background()
	item, err := f.svc.CreateOffer(ctx,
		Offer{Name: "Lamp", Description: "Brass", Price: "0.5", SellerAddress: alice},
		&Image{Filename: "lamp.png", Content: strings.NewReader("v1")})
	require.NoError(t, err)

	_, err = f.svc.UpdateItem(ctx, bob, item.ID, Edit{Name: "Stolen"}, nil)
	assert.ErrorIs(t, err, core.ErrNotItemOwner)

	updated, err := f.svc.UpdateItem(ctx, strings.ToLower(alice), item.ID,
		Edit{Name: "Desk lamp", Price: "0.75"},
		&Image{Filename: "lamp.jpg", Content: strings.NewReader("v2")})
	require.NoError(t, err)

	assert.Equal(t, "Desk lamp", updated.Name)
	assert.Equal(t, "Brass", updated.Description, "empty fields are kept")
	assert.Equal(t, "0.75", updated.PriceEth.String())
	assert.NotEqual(t, item.ImageURL, updated.ImageURL)
	assert.Len(t, uploadedFiles(t, f.images.Dir()), 1, "old image removed")

	_, err = f.svc.UpdateItem(ctx, alice, item.ID, Edit{Price: "free"}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.UpdateItem(ctx, alice, 404, Edit{Name: "x"}, nil)
	assert.ErrorIs(t, err, core.ErrItemNotFound)
}

func TestMarketService_DeleteItem(t *testing.T) {
	f := newMarketFixture(t)
	ctx := context.Background()
	item, err := f.svc.CreateOffer(ctx,
		Offer{Name: "Lamp", Price: "0.5", SellerAddress: alice},
		&Image{Filename: "lamp.gif", Content: strings.NewReader("gif")})
	require.NoError(t, err)
	sold := f.offer(t, "Rug", "1", alice)
	_, err = f.svc.RecordPurchase(ctx, sold.ID, core.PurchaseConfirmation{BuyerAddress: bob})
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.DeleteItem(ctx, bob, item.ID), core.ErrNotItemOwner)
	assert.ErrorIs(t, f.svc.DeleteItem(ctx, alice, sold.ID), core.ErrItemUnavailable)

	require.NoError(t, f.svc.DeleteItem(ctx, alice, item.ID))
	assert.Empty(t, uploadedFiles(t, f.images.Dir()))

	_, err = f.svc.SellerAddress(ctx, item.ID)
	assert.ErrorIs(t, err, core.ErrItemNotFound)
}
