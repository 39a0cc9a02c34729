package core

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ItemStatus is the listing state of an item.
type ItemStatus string

const (
	ItemAvailable ItemStatus = "available"
	ItemSold      ItemStatus = "sold"
)

// Item is a marketplace listing.
type Item struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	PriceEth      decimal.Decimal `json:"price_eth"`
	SellerAddress string          `json:"seller_address"`
	BuyerAddress  string          `json:"buyer_address,omitempty"`
	Status        ItemStatus      `json:"status"`
	ImageURL      string          `json:"image_url,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// PriceWei returns the listing price in wei.
func (i *Item) PriceWei() *big.Int {
	return i.PriceEth.Shift(etherDecimals).Truncate(0).BigInt()
}

// ItemUpdate carries the editable fields of a listing. Nil fields are left unchanged.
type ItemUpdate struct {
	Name        *string
	Description *string
	PriceEth    *decimal.Decimal
	ImageURL    *string
}

// Transaction is a recorded purchase.
type Transaction struct {
	ID            int64           `json:"id"`
	ItemID        int64           `json:"item_id"`
	SellerAddress string          `json:"seller_address"`
	BuyerAddress  string          `json:"buyer_address"`
	PriceEth      decimal.Decimal `json:"price_eth"`
	TxHash        string          `json:"tx_hash"`
	CreatedAt     time.Time       `json:"created_at"`
}

// TransactionView is one row of a buyer's purchase history.
type TransactionView struct {
	ItemName      string          `json:"item_name"`
	SellerAddress string          `json:"seller_address"`
	Date          string          `json:"date"`
	PriceEth      decimal.Decimal `json:"price_eth"`
	ImageURL      string          `json:"image_url"`
	TxHash        string          `json:"tx_hash,omitempty"`
}

// Profile lists what an address sells and what it bought.
type Profile struct {
	Sales     []Item `json:"sales"`
	Purchases []Item `json:"purchases"`
}

// ContractConfig is the deployment record served at /static/deployedAddress.json.
type ContractConfig struct {
	ContractAddress string          `json:"contractAddress"`
	ABI             json.RawMessage `json:"abi"`
}

// PurchaseIntent lives for a single purchase attempt and is never persisted.
type PurchaseIntent struct {
	ItemID int64
	Price  *big.Int
	Seller common.Address
}

// PurchaseConfirmation is posted to the backend after the payment is mined.
type PurchaseConfirmation struct {
	BuyerAddress string `json:"buyer_address" binding:"required"`
	TxHash       string `json:"tx_hash"`
}

// PurchaseReceipt is the outcome of a purchase flow.
type PurchaseReceipt struct {
	ItemID   int64
	Buyer    common.Address
	Seller   common.Address
	Price    *big.Int
	TxHash   common.Hash
	Recorded bool // false when the payment is on-chain but the backend did not store it
}

// PurchaseRecorded is published by the backend once a purchase is stored.
type PurchaseRecorded struct {
	TransactionID int64     `json:"transaction_id"`
	ItemID        int64     `json:"item_id"`
	SellerAddress string    `json:"seller_address"`
	BuyerAddress  string    `json:"buyer_address"`
	PriceEth      string    `json:"price_eth"`
	TxHash        string    `json:"tx_hash"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// TxRequest is a value transfer or contract call submitted by a wallet.
type TxRequest struct {
	From  common.Address
	To    common.Address
	Value *big.Int
	Data  []byte
}
