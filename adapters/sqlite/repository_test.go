package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/layer-3/agora/core"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	seller = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	buyer  = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
)

func newRepo(t *testing.T) *Repository {
	repo, err := Open(filepath.Join(t.TempDir(), "db", "marketplace.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func newItem(t *testing.T, repo *Repository, name, price string) *core.Item {
	item := &core.Item{
		Name:          name,
		Description:   name + " description",
		PriceEth:      decimal.RequireFromString(price),
		SellerAddress: strings.ToLower(seller),
		ImageURL:      "/uploads/" + name + ".png",
	}
	require.NoError(t, repo.CreateItem(context.Background(), item))
	return item
}

func TestItems(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	lamp := newItem(t, repo, "lamp", "0.25")
	chair := newItem(t, repo, "chair", "1.000000000000000001")

	assert.NotZero(t, lamp.ID)
	assert.Equal(t, seller, lamp.SellerAddress, "stored checksummed")
	assert.Equal(t, core.ItemAvailable, lamp.Status)

	got, err := repo.GetItem(ctx, chair.ID)
	require.NoError(t, err)
	assert.Equal(t, "chair", got.Name)
	assert.Equal(t, "1.000000000000000001", got.PriceEth.String())
	assert.Equal(t, "1000000000000000001", got.PriceWei().String())
	assert.Equal(t, "/uploads/chair.png", got.ImageURL)
	assert.Empty(t, got.BuyerAddress)

	_, err = repo.GetItem(ctx, 999)
	assert.ErrorIs(t, err, core.ErrItemNotFound)

	bySeller, err := repo.ListItemsBySeller(ctx, strings.ToUpper(seller[2:])) // no prefix, upper case
	require.NoError(t, err)
	assert.Len(t, bySeller, 2)

	_, err = repo.ListItemsBySeller(ctx, "nope")
	assert.ErrorIs(t, err, core.ErrInvalidAddress)

	name := "desk lamp"
	price := decimal.RequireFromString("0.3")
	updated, err := repo.UpdateItem(ctx, lamp.ID, core.ItemUpdate{Name: &name, PriceEth: &price})
	require.NoError(t, err)
	assert.Equal(t, "desk lamp", updated.Name)
	assert.Equal(t, "0.3", updated.PriceEth.String())
	assert.Equal(t, "lamp description", updated.Description)

	unchanged, err := repo.UpdateItem(ctx, lamp.ID, core.ItemUpdate{})
	require.NoError(t, err)
	assert.Equal(t, updated.Name, unchanged.Name)

	_, err = repo.UpdateItem(ctx, 999, core.ItemUpdate{Name: &name})
	assert.ErrorIs(t, err, core.ErrItemNotFound)

	require.NoError(t, repo.DeleteItem(ctx, chair.ID))
	assert.ErrorIs(t, repo.DeleteItem(ctx, chair.ID), core.ErrItemNotFound)

	all, err := repo.ListItems(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRecordPurchase(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	lamp := newItem(t, repo, "lamp", "0.25")
	chair := newItem(t, repo, "chair", "2")

	tx, item, err := repo.RecordPurchase(ctx, lamp.ID, strings.ToLower(buyer), "0xabc")
	require.NoError(t, err)
	assert.NotZero(t, tx.ID)
	assert.Equal(t, buyer, tx.BuyerAddress)
	assert.Equal(t, seller, tx.SellerAddress)
	assert.Equal(t, "0.25", tx.PriceEth.String())
	assert.Equal(t, core.ItemSold, item.Status)
	assert.Equal(t, buyer, item.BuyerAddress)

	_, _, err = repo.RecordPurchase(ctx, lamp.ID, buyer, "0xdef")
	assert.ErrorIs(t, err, core.ErrItemUnavailable)

	_, _, err = repo.RecordPurchase(ctx, chair.ID, buyer, "0xabc")
	assert.ErrorIs(t, err, core.ErrDuplicateTx)

	_, _, err = repo.RecordPurchase(ctx, 999, buyer, "0x999")
	assert.ErrorIs(t, err, core.ErrItemNotFound)

	_, _, err = repo.RecordPurchase(ctx, chair.ID, "bad", "0x1")
	assert.ErrorIs(t, err, core.ErrInvalidAddress)

	// a confirmation without a hash is still recorded
	_, _, err = repo.RecordPurchase(ctx, chair.ID, buyer, "")
	require.NoError(t, err)

	available, err := repo.ListItems(ctx, core.ItemAvailable)
	require.NoError(t, err)
	assert.Empty(t, available)

	txs, err := repo.ListTransactionsByBuyer(ctx, strings.ToLower(buyer))
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "0xabc", txs[0].TxHash)
	assert.Empty(t, txs[1].TxHash)
}

func TestRecordPurchaseConcurrent(t *testing.T) {
	repo := newRepo(t)
	lamp := newItem(t, repo, "lamp", "0.25")

	var wg sync.WaitGroup
	results := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, results[i] = repo.RecordPurchase(context.Background(), lamp.ID, buyer, "0x"+strings.Repeat("a", i+1))
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range results {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, core.ErrItemUnavailable)
	}
	assert.Equal(t, 1, ok)
}
